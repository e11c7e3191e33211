// Package calendar serves the marked-days and seasons endpoints consumed by
// the schedule planner.
package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kilianp07/kioskpower/core/batch"
	"github.com/kilianp07/kioskpower/core/logger"
	"github.com/kilianp07/kioskpower/core/model"
	"github.com/kilianp07/kioskpower/core/notify"
	"github.com/kilianp07/kioskpower/core/push"
	"github.com/kilianp07/kioskpower/core/season"
)

// Pusher receives every successful write.
type Pusher interface {
	Written(ctx context.Context, req batch.WriteRequest) []push.Result
}

// writeTimes is implemented by stores that record when a season was last
// replaced.
type writeTimes interface {
	WrittenAt(ctx context.Context, seasonID int, clientID string) (time.Time, bool, error)
}

// Config wires a Handler.
type Config struct {
	Store batch.Store
	// Pusher is optional.
	Pusher Pusher
	// LegacyKeys duplicates the schedule under "markedDays" in read
	// responses.
	LegacyKeys bool
	// Notifier receives one notice per push result.
	Notifier notify.Notifier
	Logger   logger.Logger
	Now      func() time.Time
}

// Handler implements the calendar HTTP API.
type Handler struct {
	cfg    Config
	log    logger.Logger
	notify notify.Notifier

	// pushes run detached from the request on this context
	pushCtx    context.Context
	pushCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewHandler creates a handler. Call Close to stop pending pushes.
func NewHandler(cfg Config) *Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		cfg:        cfg,
		log:        logger.OrNop(cfg.Logger),
		notify:     notify.OrDiscard(cfg.Notifier),
		pushCtx:    ctx,
		pushCancel: cancel,
	}
}

// Routes returns the API mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/calendar/marked-days", h.handleRead)
	mux.HandleFunc("POST /api/calendar/marked-days", h.handleWrite)
	mux.HandleFunc("GET /api/calendar/seasons", h.handleSeasons)
	return mux
}

type readResponse struct {
	Schedule   batch.RawSchedule `json:"schedule"`
	MarkedDays batch.RawSchedule `json:"markedDays,omitempty"`
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	seasonID, err := strconv.Atoi(q.Get("season"))
	if err != nil {
		http.Error(w, "invalid season", http.StatusBadRequest)
		return
	}
	clientID := q.Get("client_id")
	if clientID == "" {
		http.Error(w, "client_id is required", http.StatusBadRequest)
		return
	}
	query := batch.Query{Season: seasonID, ClientID: clientID}
	if query.Start, err = optionalDate(q.Get("start")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if query.End, err = optionalDate(q.Get("end")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	raw, err := h.cfg.Store.FetchSchedule(r.Context(), query)
	if err != nil {
		h.log.Errorf("read schedule %s/%d: %v", clientID, seasonID, err)
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}
	if wt, ok := h.cfg.Store.(writeTimes); ok {
		at, found, err := wt.WrittenAt(r.Context(), seasonID, clientID)
		switch {
		case err != nil:
			h.log.Warnf("write time %s/%d: %v", clientID, seasonID, err)
		case found:
			w.Header().Set("Last-Modified", at.UTC().Format(http.TimeFormat))
		}
	}
	resp := readResponse{Schedule: raw}
	if h.cfg.LegacyKeys {
		resp.MarkedDays = raw
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func optionalDate(s string) (model.Date, error) {
	if s == "" {
		return model.Date{}, nil
	}
	return model.ParseDate(s)
}

type writeResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Days    int    `json:"days"`
}

func (h *Handler) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req batch.WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := req.Validate(season.New(req.Season)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.cfg.Store.SaveSchedules(r.Context(), req); err != nil {
		h.log.Errorf("save schedules season %d: %v", req.Season, err)
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	h.log.Infof("stored season %d for %d clients", req.Season, len(req.Clients))
	h.schedulePush(req)
	h.writeJSON(w, http.StatusOK, writeResponse{Status: "ok", Clients: len(req.Clients), Days: req.Days()})
}

func (h *Handler) schedulePush(req batch.WriteRequest) {
	if h.cfg.Pusher == nil {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for _, res := range h.cfg.Pusher.Written(h.pushCtx, req) {
			if res.Err != nil {
				h.log.Warnf("plan push to %s failed: %v", res.ClientID, res.Err)
				h.notify.Notify(notify.Error("push", res.ClientID, "Terminal did not receive today's plan", res.Err))
				continue
			}
			if res.Acked {
				h.notify.Notify(notify.Success("push", res.ClientID, "Terminal acknowledged today's plan"))
			}
		}
	}()
}

func (h *Handler) handleSeasons(w http.ResponseWriter, r *http.Request) {
	count := season.DefaultListCount
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid count", http.StatusBadRequest)
			return
		}
		count = n
	}
	h.writeJSON(w, http.StatusOK, season.List(h.cfg.Now(), count))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Errorf("encode response: %v", err)
	}
}

// Wait blocks until background pushes have finished.
func (h *Handler) Wait() { h.wg.Wait() }

// Close cancels background pushes and waits for them.
func (h *Handler) Close() {
	h.pushCancel()
	h.wg.Wait()
}
