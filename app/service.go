package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/kioskpower/api/calendar"
	"github.com/kilianp07/kioskpower/config"
	"github.com/kilianp07/kioskpower/core/batch"
	"github.com/kilianp07/kioskpower/core/defaults"
	coremetrics "github.com/kilianp07/kioskpower/core/metrics"
	coremon "github.com/kilianp07/kioskpower/core/monitoring"
	"github.com/kilianp07/kioskpower/core/notify"
	"github.com/kilianp07/kioskpower/core/push"
	"github.com/kilianp07/kioskpower/infra/httpapi"
	"github.com/kilianp07/kioskpower/infra/logger"
	"github.com/kilianp07/kioskpower/infra/metrics"
	"github.com/kilianp07/kioskpower/infra/monitoring"
	"github.com/kilianp07/kioskpower/infra/mqtt"
	"github.com/kilianp07/kioskpower/infra/registryfile"
	"github.com/kilianp07/kioskpower/infra/store"
)

// directoryRefresh is how often the client directory is reloaded while
// serving.
const directoryRefresh = 5 * time.Minute

// Service runs the calendar API with its store, terminal push and metrics.
type Service struct {
	cfg     *config.Config
	log     logger.Logger
	monitor coremon.Monitor
	obs     *Observability
	store   *store.SQLiteStore
	dir     *defaults.Directory
	pub     *mqtt.PahoClient
	handler *calendar.Handler
	server  *calendar.Server
}

// Observability groups the metrics sinks and the notice bus shared by a
// process.
type Observability struct {
	Recorder coremetrics.Recorder
	Prom     *metrics.PromSink
	Bus      *notify.Bus
}

// NewObservability builds the configured metrics sinks.
func NewObservability(cfg coremetrics.Config) (*Observability, error) {
	var sinks []coremetrics.Recorder
	obs := &Observability{Bus: notify.NewBus(32)}
	if cfg.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		obs.Prom = sink
		sinks = append(sinks, sink)
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg))
	}
	switch len(sinks) {
	case 0:
		obs.Recorder = coremetrics.NopRecorder{}
	case 1:
		obs.Recorder = sinks[0]
	default:
		obs.Recorder = metrics.NewMultiSink(sinks...)
	}
	return obs, nil
}

// Registries returns the client and institution registries: the YAML file
// when configured, the registry endpoints otherwise.
func Registries(cfg *config.Config) (defaults.ClientRegistry, defaults.InstitutionRegistry, error) {
	if cfg.Calendar.Registry != "" {
		reg, err := registryfile.Load(cfg.Calendar.Registry)
		if err != nil {
			return nil, nil, err
		}
		return reg, reg, nil
	}
	api := httpapi.New(cfg.API, logger.New("registry"))
	return api, api, nil
}

func defaultsFor(dir *defaults.Directory) func(clientID string) batch.Defaults {
	return func(clientID string) batch.Defaults { return dir.For(clientID) }
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	obs, err := NewObservability(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(cfg.Server.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	st.LegacyKeys = cfg.Server.Legacy()

	clients, inst, err := Registries(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	dir := defaults.NewDirectory(clients, inst, logger.New("directory"))

	svc := &Service{cfg: cfg, log: logg, monitor: mon, obs: obs, store: st, dir: dir}

	var pusher calendar.Pusher
	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPahoClient(cfg.MQTT, mon)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.pub = pub
		pusher = push.New(push.Config{
			Publisher:  pub,
			Clients:    dir,
			Defaults:   defaultsFor(dir),
			Plan:       cfg.Plan,
			AckTimeout: cfg.MQTT.AckTimeout,
			Logger:     logger.New("push"),
			Metrics:    obs.Recorder,
		})
	}

	svc.handler = calendar.NewHandler(calendar.Config{
		Store:      st,
		Pusher:     pusher,
		LegacyKeys: cfg.Server.Legacy(),
		Notifier:   obs.Bus,
		Logger:     logger.New("calendar-api"),
	})
	svc.server = calendar.NewServer(cfg.Server.Addr, svc.handler)
	return svc, nil
}

// Run serves until ctx is canceled or a server fails.
func (s *Service) Run(ctx context.Context) error {
	if err := s.dir.Refresh(ctx); err != nil {
		s.log.Warnf("initial directory refresh: %v", err)
	}
	if s.obs.Prom != nil {
		metrics.StartNoticeCollector(ctx, s.obs.Bus, s.obs.Prom)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.server.Start(gctx) })
	if s.cfg.Metrics.PrometheusEnabled {
		g.Go(func() error { return metrics.StartPromServer(gctx, s.cfg.Metrics.PrometheusPort) })
	}
	g.Go(func() error {
		t := time.NewTicker(directoryRefresh)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if err := s.dir.Refresh(gctx); err != nil {
					s.log.Warnf("directory refresh: %v", err)
				}
			}
		}
	})
	return g.Wait()
}

// Close releases the store and the broker connection.
func (s *Service) Close() error {
	s.handler.Close()
	if s.pub != nil {
		s.pub.Disconnect()
	}
	s.obs.Bus.Close()
	s.monitor.Flush(2 * time.Second)
	return s.store.Close()
}
