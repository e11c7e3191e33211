package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/kioskpower/config"
	"github.com/kilianp07/kioskpower/core/defaults"
	coremon "github.com/kilianp07/kioskpower/core/monitoring"
	"github.com/kilianp07/kioskpower/core/notify"
	"github.com/kilianp07/kioskpower/core/planner"
	"github.com/kilianp07/kioskpower/core/season"
	"github.com/kilianp07/kioskpower/infra/httpapi"
	"github.com/kilianp07/kioskpower/infra/logger"
	"github.com/kilianp07/kioskpower/infra/monitoring"
)

// Session is an operator planning session against the calendar API.
type Session struct {
	Planner   *planner.Planner
	Directory *defaults.Directory
	API       *httpapi.Client
	Bus       *notify.Bus

	monitor coremon.Monitor
	done    chan struct{}
}

// OpenSession connects to the API, loads the directory and starts a
// planner on the configured season, or the current one.
func OpenSession(ctx context.Context, cfg *config.Config, now time.Time) (*Session, error) {
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	obs, err := NewObservability(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	api := httpapi.New(cfg.API, logger.New("api"))
	dir, err := OpenDirectory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := season.Current(now)
	if cfg.Calendar.Season != 0 {
		s = season.New(cfg.Calendar.Season)
	}
	p := planner.New(ctx, planner.Config{
		Store:         api,
		Season:        s,
		Defaults:      defaultsFor(dir),
		AutoSaveDelay: cfg.Calendar.AutoSaveDelay(),
		OpenDelay:     cfg.Calendar.OpenDelay(),
		CloseDelay:    cfg.Calendar.CloseDelay(),
		Logger:        logger.New("planner"),
		Notifier:      obs.Bus,
		Metrics:       obs.Recorder,
		Monitor:       mon,
	})
	sess := &Session{Planner: p, Directory: dir, API: api, Bus: obs.Bus, monitor: mon, done: make(chan struct{})}
	go sess.logNotices(obs.Bus.Subscribe())
	return sess, nil
}

// OpenDirectory loads approved clients and institution templates from the
// configured registries.
func OpenDirectory(ctx context.Context, cfg *config.Config) (*defaults.Directory, error) {
	clients, inst, err := Registries(cfg)
	if err != nil {
		return nil, err
	}
	dir := defaults.NewDirectory(clients, inst, logger.New("directory"))
	if err := dir.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("load directory: %w", err)
	}
	return dir, nil
}

func (s *Session) logNotices(sub <-chan notify.Notice) {
	defer close(s.done)
	log := logger.New("notice")
	for n := range sub {
		if n.Severity == notify.SeverityError {
			log.Errorf("%s [%s]: %s: %v", n.Source, n.ClientID, n.Message, n.Err)
			continue
		}
		log.Infof("%s [%s]: %s", n.Source, n.ClientID, n.Message)
	}
}

// Close flushes pending writes and stops the planner.
func (s *Session) Close(ctx context.Context) error {
	err := s.Planner.Flush(ctx)
	s.Planner.Close()
	s.Bus.Close()
	<-s.done
	s.monitor.Flush(2 * time.Second)
	return err
}
