package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateStripsTimeSuffix(t *testing.T) {
	d, err := ParseDate("2025-08-04T00:00:00")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2025, Month: time.August, Day: 4}, d)

	d, err = ParseDate(" 2025-08-04 ")
	require.NoError(t, err)
	assert.Equal(t, "2025-08-04", d.String())

	_, err = ParseDate("04/08/2025")
	assert.Error(t, err)
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2026, time.February, 28)
	assert.Equal(t, "2026-03-01", d.AddDays(1).String())
	assert.Equal(t, "2025-12-31", NewDate(2026, time.January, 1).AddDays(-1).String())
	assert.True(t, NewDate(2025, time.August, 9).IsWeekend())
	assert.False(t, NewDate(2025, time.August, 4).IsWeekend())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.Equal(t, 0, d.Compare(NewDate(2026, time.February, 28)))
}

func TestDateJSONMapKeys(t *testing.T) {
	m := DayMap{MustParseDate("2025-09-10"): On("08:00", "17:00")}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"2025-09-10":{"status":"on","onTime":"08:00","offTime":"17:00"}}`, string(b))

	var back DayMap
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, m, back)
}

func TestDayResolve(t *testing.T) {
	def := TimePair{OnTime: "09:00", OffTime: "22:30"}
	assert.Equal(t, On("09:00", "22:30"), Day{Status: StatusOn}.Resolve(def))
	assert.Equal(t, On("07:15", "22:30"), On("07:15", "").Resolve(def))
	assert.Equal(t, Off(), Day{Status: StatusOff, OnTime: "08:00"}.Resolve(def))
	assert.Equal(t, Off(), Day{}.Resolve(def))
}

func TestDayMapEqualTreatsAbsentAsOff(t *testing.T) {
	a := DayMap{MustParseDate("2025-08-04"): On("", "")}
	b := a.Clone()
	b[MustParseDate("2025-08-05")] = Off()
	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))

	b[MustParseDate("2025-08-06")] = On("", "")
	assert.False(t, a.Equal(b))
	assert.False(t, b.Equal(a))

	assert.True(t, DayMap(nil).Equal(DayMap{}))
}

func TestDayMapGetAndDates(t *testing.T) {
	m := DayMap{
		MustParseDate("2025-08-06"): On("", ""),
		MustParseDate("2025-08-04"): Off(),
	}
	assert.Equal(t, Off(), m.Get(MustParseDate("2025-08-05")))
	assert.Equal(t, []Date{MustParseDate("2025-08-04"), MustParseDate("2025-08-06")}, m.Dates())
}

func TestValidClock(t *testing.T) {
	for _, s := range []string{"00:00", "08:30", "23:59"} {
		assert.True(t, ValidClock(s), s)
	}
	for _, s := range []string{"", "24:00", "8:30", "08:60", "08-30", "08:30:00"} {
		assert.False(t, ValidClock(s), s)
	}
}

func TestClientDisplayName(t *testing.T) {
	assert.Equal(t, "Lobby", Client{Name: "pi-01", Locality: "Lobby"}.DisplayName())
	assert.Equal(t, "pi-01", Client{Name: "pi-01"}.DisplayName())
	assert.True(t, Client{Status: ApprovalApproved}.Approved())
	assert.False(t, Client{Status: ApprovalPending}.Approved())
}
