package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/kioskpower/core/batch"
	"github.com/kilianp07/kioskpower/core/batch/batchtest"
	"github.com/kilianp07/kioskpower/core/defaults"
	"github.com/kilianp07/kioskpower/core/model"
	"github.com/kilianp07/kioskpower/core/push"
	"github.com/kilianp07/kioskpower/core/season"
	"github.com/kilianp07/kioskpower/infra/httpapi"
	"github.com/kilianp07/kioskpower/infra/store"
)

type recordingPusher struct {
	mu   sync.Mutex
	reqs []batch.WriteRequest
}

func (p *recordingPusher) Written(_ context.Context, req batch.WriteRequest) []push.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	return []push.Result{{ClientID: req.Clients[0]}}
}

func (p *recordingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reqs)
}

func fullRequest(s season.Season, clients ...string) batch.WriteRequest {
	days := model.DayMap{model.NewDate(2025, 8, 4): model.On("", "")}
	schedule := map[string]model.DayMap{}
	for _, id := range clients {
		schedule[id] = batch.BuildFull(s, days, defaults.Fallback)
	}
	return batch.NewRequest(s, clients, schedule)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cal.db"))
	require.NoError(t, err)
	defer st.Close()
	pusher := &recordingPusher{}
	h := NewHandler(Config{Store: st, Pusher: pusher})
	defer h.Close()
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	client := httpapi.New(httpapi.Config{BaseURL: srv.URL, Timeout: time.Second}, nil)
	s := season.New(2025)
	require.NoError(t, client.SaveSchedules(context.Background(), fullRequest(s, "c1", "c2")))
	h.Wait()
	assert.Equal(t, 1, pusher.count())

	raw, err := client.FetchSchedule(context.Background(), batch.Query{Season: 2025, ClientID: "c2"})
	require.NoError(t, err)
	days, rejected := batch.Normalize(raw)
	assert.Empty(t, rejected)
	assert.Len(t, days, len(s.Dates()))
	assert.Equal(t, model.On("09:00", "22:30"), days[model.NewDate(2025, 8, 4)])
	assert.Equal(t, model.Off(), days[model.NewDate(2025, 8, 5)])
}

func TestReadReportsLastWrite(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cal.db"))
	require.NoError(t, err)
	defer st.Close()
	h := NewHandler(Config{Store: st})
	defer h.Close()

	read := func(client string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/calendar/marked-days?season=2025&client_id="+client, nil))
		require.Equal(t, http.StatusOK, rr.Code)
		return rr
	}
	assert.Empty(t, read("c1").Header().Get("Last-Modified"))

	before := time.Now().Add(-time.Second).Truncate(time.Second)
	require.NoError(t, st.SaveSchedules(context.Background(), fullRequest(season.New(2025), "c1")))
	at, err := http.ParseTime(read("c1").Header().Get("Last-Modified"))
	require.NoError(t, err)
	assert.False(t, at.Before(before))
	assert.Empty(t, read("c2").Header().Get("Last-Modified"))
}

func TestReadEmitsLegacyKeys(t *testing.T) {
	st := batchtest.New()
	st.Legacy = true
	st.Seed(2025, "c1", model.DayMap{model.NewDate(2025, 8, 4): model.On("08:00", "16:00")})
	h := NewHandler(Config{Store: st, LegacyKeys: true})
	defer h.Close()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/calendar/marked-days?season=2025&client_id=c1", nil)
	h.Routes().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var out map[string]map[string]model.Day
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Contains(t, out["markedDays"], "2025-08-04T00:00:00")
	assert.Contains(t, out["schedule"], "2025-08-04T00:00:00")
}

func TestWriteRejectsIncompleteSchedule(t *testing.T) {
	st := batchtest.New()
	pusher := &recordingPusher{}
	h := NewHandler(Config{Store: st, Pusher: pusher})
	defer h.Close()

	body, err := json.Marshal(batch.WriteRequest{
		Clients:  []string{"c1"},
		Schedule: map[string]model.DayMap{"c1": {model.NewDate(2025, 8, 4): model.Off()}},
		Season:   2025,
	})
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/calendar/marked-days", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, st.Writes())
	h.Wait()
	assert.Zero(t, pusher.count())
}

func TestWriteStoreFailure(t *testing.T) {
	st := batchtest.New()
	st.FailWrites(1)
	h := NewHandler(Config{Store: st})
	defer h.Close()

	body, err := json.Marshal(fullRequest(season.New(2025), "c1"))
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/calendar/marked-days", bytes.NewReader(body)))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestReadValidation(t *testing.T) {
	h := NewHandler(Config{Store: batchtest.New()})
	defer h.Close()
	for _, target := range []string{
		"/api/calendar/marked-days?client_id=c1",
		"/api/calendar/marked-days?season=2025",
		"/api/calendar/marked-days?season=2025&client_id=c1&start=bad",
	} {
		rr := httptest.NewRecorder()
		h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d", target, rr.Code)
		}
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/calendar/marked-days", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestSeasonsListing(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	h := NewHandler(Config{Store: batchtest.New(), Now: func() time.Time { return now }})
	defer h.Close()
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	client := httpapi.New(httpapi.Config{BaseURL: srv.URL, Timeout: time.Second}, nil)
	seasons, err := client.ListSeasons(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, seasons, 3)
	assert.Equal(t, "2025/26", seasons[0].Label)
	assert.Equal(t, 2027, seasons[2].StartYear)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/calendar/seasons", nil))
	var all []season.Season
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &all))
	assert.Len(t, all, season.DefaultListCount)
}
