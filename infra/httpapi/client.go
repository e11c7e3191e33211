// Package httpapi talks to the calendar backend and the client and school
// registries over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/kioskpower/auth"
	"github.com/kilianp07/kioskpower/core/batch"
	"github.com/kilianp07/kioskpower/core/logger"
	"github.com/kilianp07/kioskpower/core/model"
	"github.com/kilianp07/kioskpower/core/season"
)

const (
	pathMarkedDays = "/api/calendar/marked-days"
	pathSeasons    = "/api/calendar/seasons"
	pathClients    = "/api/clients/"
	pathSchools    = "/api/schools/"
)

// Config configures the client.
type Config struct {
	BaseURL string        `koanf:"base_url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
	// OAuth replaces the static token with client-credentials tokens.
	OAuth auth.Conf `koanf:"oauth"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Validate checks the base URL.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", c.BaseURL)
	}
	if err := c.OAuth.Validate(); err != nil {
		return fmt.Errorf("api.oauth: %w", err)
	}
	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client implements batch.Store and both registries.
type Client struct {
	base  string
	token string
	creds *auth.ClientCred
	http  *http.Client
	log   logger.Logger
}

// New creates a client. A nil log discards output.
func New(cfg Config, log logger.Logger) *Client {
	cfg.SetDefaults()
	c := &Client{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		token: cfg.Token,
		http:  &http.Client{Timeout: cfg.Timeout},
		log:   logger.OrNop(log),
	}
	if cfg.OAuth.Enabled() {
		c.creds = auth.NewClientCred(cfg.OAuth)
	}
	return c
}

type scheduleResponse struct {
	Schedule   batch.RawSchedule `json:"schedule"`
	MarkedDays batch.RawSchedule `json:"markedDays"`
}

// FetchSchedule implements batch.Reader.
func (c *Client) FetchSchedule(ctx context.Context, q batch.Query) (batch.RawSchedule, error) {
	v := url.Values{}
	v.Set("season", strconv.Itoa(q.Season))
	v.Set("client_id", q.ClientID)
	if !q.Start.IsZero() {
		v.Set("start", q.Start.String())
	}
	if !q.End.IsZero() {
		v.Set("end", q.End.String())
	}
	var resp scheduleResponse
	if err := c.do(ctx, http.MethodGet, pathMarkedDays+"?"+v.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Schedule != nil {
		return resp.Schedule, nil
	}
	if resp.MarkedDays != nil {
		return resp.MarkedDays, nil
	}
	return batch.RawSchedule{}, nil
}

// SaveSchedules implements batch.Writer.
func (c *Client) SaveSchedules(ctx context.Context, req batch.WriteRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode write request: %w", err)
	}
	return c.do(ctx, http.MethodPost, pathMarkedDays, body, nil)
}

// ListSeasons returns the seasons offered by the backend.
func (c *Client) ListSeasons(ctx context.Context, count int) ([]season.Season, error) {
	var out []season.Season
	path := pathSeasons
	if count > 0 {
		path += "?count=" + strconv.Itoa(count)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].StartYear == 0 {
			out[i].StartYear = out[i].ID
		}
	}
	return out, nil
}

// ListClients implements defaults.ClientRegistry.
func (c *Client) ListClients(ctx context.Context) ([]model.Client, error) {
	var dtos []clientDTO
	if err := c.do(ctx, http.MethodGet, pathClients, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]model.Client, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.model())
	}
	return out, nil
}

// ListInstitutions implements defaults.InstitutionRegistry.
func (c *Client) ListInstitutions(ctx context.Context) ([]model.Institution, error) {
	var dtos []institutionDTO
	if err := c.do(ctx, http.MethodGet, pathSchools, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]model.Institution, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, model.Institution{ID: string(d.ID), Name: d.Name})
	}
	return out, nil
}

// FetchTemplate implements defaults.InstitutionRegistry. A 404 means the
// institution has no template.
func (c *Client) FetchTemplate(ctx context.Context, institutionID string) (*model.TimeTemplate, error) {
	var tpl model.TimeTemplate
	err := c.do(ctx, http.MethodGet, pathSchools+url.PathEscape(institutionID)+"/times/", nil, &tpl)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tpl.InstitutionID = institutionID
	return &tpl, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err == nil && resp.StatusCode == http.StatusUnauthorized && c.creds != nil {
		resp.Body.Close()
		if _, err = c.creds.ForceRefresh(ctx); err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		resp, err = c.send(ctx, method, path, body)
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.creds != nil:
		if err := c.creds.SetAuthHeader(req); err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.log.Debugw("http request", map[string]any{
		"method":     method,
		"path":       path,
		"status":     resp.StatusCode,
		"request_id": reqID,
		"latency_ms": time.Since(start).Milliseconds(),
	})
	return resp, nil
}
