package defaults

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/kioskpower/core/model"
)

func TestResolveFallbackWeekday(t *testing.T) {
	// 2025-08-04 is a Monday.
	got := Resolve(model.MustParseDate("2025-08-04"), nil, nil)
	assert.Equal(t, model.TimePair{OnTime: "09:00", OffTime: "22:30"}, got)
}

func TestResolveWeekendTemplate(t *testing.T) {
	c := &model.Client{ID: "c1", InstitutionID: "school"}
	tpls := map[string]model.TimeTemplate{
		"school": {InstitutionID: "school", Weekend: &model.TimePair{OnTime: "08:30", OffTime: "17:00"}},
	}
	// 2025-08-09 is a Saturday.
	assert.Equal(t, model.TimePair{OnTime: "08:30", OffTime: "17:00"}, Resolve(model.MustParseDate("2025-08-09"), c, tpls))
	// No weekday bucket: fallback.
	assert.Equal(t, FallbackWeekday, Resolve(model.MustParseDate("2025-08-08"), c, tpls))
}

func TestResolveMalformedBucket(t *testing.T) {
	c := &model.Client{ID: "c1", InstitutionID: "school"}
	tpls := map[string]model.TimeTemplate{
		"school": {Weekday: &model.TimePair{OnTime: "9h", OffTime: "22:30"}},
	}
	assert.Equal(t, FallbackWeekday, Resolve(model.MustParseDate("2025-08-05"), c, tpls))
	assert.Equal(t, FallbackWeekend, Resolve(model.MustParseDate("2025-08-10"), &model.Client{InstitutionID: "other"}, tpls))
}

type fakeClients struct {
	list []model.Client
	err  error
}

func (f fakeClients) ListClients(context.Context) ([]model.Client, error) { return f.list, f.err }

type fakeInstitutions struct {
	list  []model.Institution
	tpls  map[string]*model.TimeTemplate
	fail  map[string]bool
	calls atomic.Int32
}

func (f *fakeInstitutions) ListInstitutions(context.Context) ([]model.Institution, error) {
	return f.list, nil
}

func (f *fakeInstitutions) FetchTemplate(_ context.Context, id string) (*model.TimeTemplate, error) {
	f.calls.Add(1)
	if f.fail[id] {
		return nil, errors.New("boom")
	}
	return f.tpls[id], nil
}

func TestDirectoryRefresh(t *testing.T) {
	clients := fakeClients{list: []model.Client{
		{ID: "1", Name: "Hall", InstitutionID: "a", Status: model.ApprovalApproved},
		{ID: "2", Name: "Gym", InstitutionID: "b", Status: model.ApprovalApproved},
		{ID: "3", Name: "New", InstitutionID: "a", Status: model.ApprovalPending},
	}}
	inst := &fakeInstitutions{
		list: []model.Institution{{ID: "a"}, {ID: "b"}},
		tpls: map[string]*model.TimeTemplate{
			"a": {Weekday: &model.TimePair{OnTime: "07:45", OffTime: "16:00"}},
		},
		fail: map[string]bool{"b": true},
	}
	d := NewDirectory(clients, inst, nil)
	require.NoError(t, d.Refresh(context.Background()))

	assert.EqualValues(t, 2, inst.calls.Load())
	assert.Len(t, d.Clients(""), 2)
	assert.Len(t, d.Clients("a"), 1)
	_, ok := d.Client("3")
	assert.False(t, ok)

	mon := model.MustParseDate("2025-08-04")
	assert.Equal(t, model.TimePair{OnTime: "07:45", OffTime: "16:00"}, d.Times(mon, "1"))
	assert.Equal(t, FallbackWeekday, d.Times(mon, "2"))
	assert.Equal(t, FallbackWeekday, d.For("missing")(mon))
}

func TestDirectoryRefreshClientFailureKeepsState(t *testing.T) {
	inst := &fakeInstitutions{list: []model.Institution{{ID: "a"}}}
	d := NewDirectory(fakeClients{list: []model.Client{{ID: "1", Status: model.ApprovalApproved}}}, inst, nil)
	require.NoError(t, d.Refresh(context.Background()))

	d.clients = fakeClients{err: errors.New("down")}
	require.Error(t, d.Refresh(context.Background()))
	assert.Len(t, d.Clients(""), 1)
}
