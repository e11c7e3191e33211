package batch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/kioskpower/core/model"
	"github.com/kilianp07/kioskpower/core/season"
)

func fixedDefaults(model.Date) model.TimePair {
	return model.TimePair{OnTime: "09:00", OffTime: "22:30"}
}

func TestNormalizeStripsSuffix(t *testing.T) {
	days, rejected := Normalize(RawSchedule{
		"2025-08-04T00:00:00": model.On("08:00", "17:00"),
		"2025-08-05":          model.Off(),
		"garbage":             model.Off(),
	})
	assert.Equal(t, []string{"garbage"}, rejected)
	assert.Equal(t, model.On("08:00", "17:00"), days[model.MustParseDate("2025-08-04")])
	assert.Len(t, days, 2)
}

func TestBuildFullCoversSeason(t *testing.T) {
	s := season.New(2025)
	full := BuildFull(s, model.DayMap{
		model.MustParseDate("2025-08-04"): {Status: model.StatusOn},
		model.MustParseDate("2025-08-05"): model.On("07:00", ""),
		model.MustParseDate("2024-12-01"): model.On("", ""),
	}, fixedDefaults)

	assert.Len(t, full, 365)
	assert.Equal(t, model.On("09:00", "22:30"), full[model.MustParseDate("2025-08-04")])
	assert.Equal(t, model.On("07:00", "22:30"), full[model.MustParseDate("2025-08-05")])
	assert.Equal(t, model.Off(), full[model.MustParseDate("2026-07-31")])
	_, outside := full[model.MustParseDate("2024-12-01")]
	assert.False(t, outside)
}

func TestValidate(t *testing.T) {
	s := season.New(2025)
	full := BuildFull(s, nil, fixedDefaults)
	req := NewRequest(s, []string{"a", "b"}, map[string]model.DayMap{"a": full, "b": full})
	require.NoError(t, req.Validate(s))
	assert.Equal(t, 730, req.Days())

	partial := full.Clone()
	delete(partial, model.MustParseDate("2026-02-01"))
	req.Schedule["b"] = partial
	assert.True(t, errors.Is(req.Validate(s), ErrIncomplete))

	delete(req.Schedule, "b")
	assert.True(t, errors.Is(req.Validate(s), ErrIncomplete))

	assert.ErrorIs(t, WriteRequest{Season: 2025}.Validate(s), ErrNoClients)
	assert.Error(t, NewRequest(season.New(2024), []string{"a"}, map[string]model.DayMap{"a": full}).Validate(s))
}

func TestWriteRequestWireShape(t *testing.T) {
	s := season.New(2025)
	req := NewRequest(s, []string{"7"}, map[string]model.DayMap{
		"7": {model.MustParseDate("2025-08-04"): model.On("08:00", "17:00")},
	})
	b, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"clients":["7"],"season":2025,"schedule":{"7":{"2025-08-04":{"status":"on","onTime":"08:00","offTime":"17:00"}}}}`, string(b))
}
