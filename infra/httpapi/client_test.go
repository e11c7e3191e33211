package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/kioskpower/auth"
	"github.com/kilianp07/kioskpower/core/batch"
	"github.com/kilianp07/kioskpower/core/model"
	"github.com/kilianp07/kioskpower/core/season"
)

func TestFetchScheduleLegacyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathMarkedDays, r.URL.Path)
		assert.Equal(t, "2025", r.URL.Query().Get("season"))
		assert.Equal(t, "42", r.URL.Query().Get("client_id"))
		assert.Equal(t, "2025-09-01", r.URL.Query().Get("start"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"markedDays":{"2025-09-01T00:00:00":{"status":"on","onTime":"08:00"}}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Token: "secret"}, nil)
	raw, err := c.FetchSchedule(context.Background(), batch.Query{Season: 2025, ClientID: "42", Start: model.MustParseDate("2025-09-01")})
	require.NoError(t, err)
	days, rejected := batch.Normalize(raw)
	assert.Empty(t, rejected)
	assert.Equal(t, model.On("08:00", ""), days[model.MustParseDate("2025-09-01")])
}

func TestFetchScheduleEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	raw, err := New(Config{BaseURL: srv.URL}, nil).FetchSchedule(context.Background(), batch.Query{Season: 2025, ClientID: "1"})
	require.NoError(t, err)
	assert.NotNil(t, raw)
	assert.Empty(t, raw)
}

func TestSaveSchedules(t *testing.T) {
	var got batch.WriteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := season.New(2025)
	req := batch.NewRequest(s, []string{"1", "2"}, map[string]model.DayMap{
		"1": {model.MustParseDate("2025-08-04"): model.On("08:00", "17:00")},
		"2": {model.MustParseDate("2025-08-04"): model.Off()},
	})
	require.NoError(t, New(Config{BaseURL: srv.URL}, nil).SaveSchedules(context.Background(), req))
	assert.Equal(t, req, got)
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()
	err := New(Config{BaseURL: srv.URL}, nil).SaveSchedules(context.Background(), batch.WriteRequest{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "nope", se.Body)
}

func TestRegistries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathClients, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id": 1, "name": "Hall", "locality": "Entrance", "school_id": 3, "status": "approved", "unique_id": "pi-1"},
			{"id": "2", "name": "Gym", "schoolId": "4", "status": "pending"}
		]`))
	})
	mux.HandleFunc(pathSchools, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathSchools:
			_, _ = w.Write([]byte(`[{"id": 3, "name": "North"}, {"id": 4, "name": "South"}]`))
		case pathSchools + "3/times/":
			_, _ = w.Write([]byte(`{"weekday": {"onTime": "07:30", "offTime": "16:00"}, "weekend": null}`))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL + "/"}, nil)
	ctx := context.Background()

	clients, err := c.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, model.Client{ID: "1", Name: "Hall", Locality: "Entrance", InstitutionID: "3", Status: model.ApprovalApproved, UniqueID: "pi-1"}, clients[0])
	assert.Equal(t, "4", clients[1].InstitutionID)

	inst, err := c.ListInstitutions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Institution{{ID: "3", Name: "North"}, {ID: "4", Name: "South"}}, inst)

	tpl, err := c.FetchTemplate(ctx, "3")
	require.NoError(t, err)
	require.NotNil(t, tpl.Weekday)
	assert.Equal(t, "07:30", tpl.Weekday.OnTime)
	assert.Nil(t, tpl.Weekend)
	assert.Equal(t, "3", tpl.InstitutionID)

	tpl, err = c.FetchTemplate(ctx, "4")
	require.NoError(t, err)
	assert.Nil(t, tpl)
}

func TestListSeasons(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("count"))
		_, _ = w.Write([]byte(`[{"id":2025,"label":"2025/26"},{"id":2026,"startYear":2026,"label":"2026/27"}]`))
	}))
	defer srv.Close()
	got, err := New(Config{BaseURL: srv.URL}, nil).ListSeasons(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []season.Season{season.New(2025), season.New(2026)}, got)
}

func TestConfigValidate(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.NoError(t, c.Validate())
	assert.Error(t, Config{BaseURL: "localhost"}.Validate())
}

func TestOAuthCredentials(t *testing.T) {
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"oauth-token","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokens.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer oauth-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	cfg := Config{BaseURL: srv.URL, Token: "ignored", OAuth: auth.Conf{ClientID: "id", ClientSecret: "s", AuthURL: tokens.URL}}
	require.NoError(t, cfg.Validate())
	_, err := New(cfg, nil).ListClients(context.Background())
	require.NoError(t, err)

	cfg.OAuth.AuthURL = ""
	assert.Error(t, cfg.Validate())
}

func TestOAuthRefreshOnUnauthorized(t *testing.T) {
	var issued atomic.Int32
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := issued.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":3600}`, n)
	}))
	defer tokens.Close()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	cfg := Config{BaseURL: srv.URL, OAuth: auth.Conf{ClientID: "id", ClientSecret: "s", AuthURL: tokens.URL}}
	_, err := New(cfg, nil).ListClients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), issued.Load())
	assert.Equal(t, int32(2), calls.Load())
}
