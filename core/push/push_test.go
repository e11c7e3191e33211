package push

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/kioskpower/core/batch"
	"github.com/kilianp07/kioskpower/core/defaults"
	"github.com/kilianp07/kioskpower/core/model"
	"github.com/kilianp07/kioskpower/core/season"
	"github.com/kilianp07/kioskpower/infra/mqtt"
)

type clientMap map[string]model.Client

func (m clientMap) Client(id string) (model.Client, bool) {
	c, ok := m[id]
	return c, ok
}

func newPusher(pub *mqtt.MockPublisher, now time.Time) *Pusher {
	return New(Config{
		Publisher: pub,
		Clients: clientMap{
			"1": {ID: "1", UniqueID: "pi-1", KioskURL: "http://k"},
			"2": {ID: "2", UniqueID: "pi-2"},
			"3": {ID: "3"},
		},
		Defaults: func(string) batch.Defaults { return defaults.Fallback },
		Now:      func() time.Time { return now },
	})
}

func TestWrittenPushesToday(t *testing.T) {
	pub := mqtt.NewMockPublisher()
	pub.NoAck["pi-2"] = true
	now := time.Date(2025, 9, 1, 7, 0, 0, 0, time.Local)
	s := season.New(2025)
	full := batch.BuildFull(s, model.DayMap{model.MustParseDate("2025-09-01"): model.On("", "")}, defaults.Fallback)
	req := batch.NewRequest(s, []string{"1", "2", "3"}, map[string]model.DayMap{
		"1": full,
		"2": batch.BuildFull(s, nil, defaults.Fallback),
		"3": full,
	})

	results := newPusher(pub, now).Written(context.Background(), req)
	require.Len(t, results, 3)
	byID := map[string]Result{}
	for _, r := range results {
		byID[r.ClientID] = r
	}
	assert.True(t, byID["1"].Acked)
	assert.NoError(t, byID["1"].Err)
	assert.False(t, byID["2"].Acked)
	assert.Error(t, byID["2"].Err)
	assert.Error(t, byID["3"].Err)

	plan, ok := pub.Sent("pi-1")
	require.True(t, ok)
	assert.Equal(t, "2025-09-01", plan.Date)
	assert.Equal(t, "08:50", plan.Actions[0].At)
	assert.Equal(t, "22:32", plan.Actions[len(plan.Actions)-1].At)

	off, ok := pub.Sent("pi-2")
	require.True(t, ok)
	assert.Empty(t, off.Actions)
}

func TestWrittenOutsideSeason(t *testing.T) {
	pub := mqtt.NewMockPublisher()
	now := time.Date(2027, 1, 1, 0, 0, 0, 0, time.Local)
	req := batch.NewRequest(season.New(2025), []string{"1"}, map[string]model.DayMap{"1": {}})
	assert.Empty(t, newPusher(pub, now).Written(context.Background(), req))
	assert.Empty(t, pub.Plans)
}
