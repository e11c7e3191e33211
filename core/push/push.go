// Package push sends today's power plan to terminals after their schedule
// was written.
package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/kioskpower/core/batch"
	"github.com/kilianp07/kioskpower/core/logger"
	"github.com/kilianp07/kioskpower/core/metrics"
	"github.com/kilianp07/kioskpower/core/model"
	"github.com/kilianp07/kioskpower/core/mqtt"
	"github.com/kilianp07/kioskpower/core/powerplan"
	"github.com/kilianp07/kioskpower/core/season"
)

const maxParallel = 8

// Clients looks up terminal details.
type Clients interface {
	Client(id string) (model.Client, bool)
}

// Result is the outcome for one terminal.
type Result struct {
	ClientID  string
	CommandID string
	Acked     bool
	Err       error
}

// Config wires a Pusher.
type Config struct {
	Publisher  mqtt.Publisher
	Clients    Clients
	Defaults   func(clientID string) batch.Defaults
	Plan       powerplan.Config
	AckTimeout time.Duration
	Logger     logger.Logger
	Metrics    metrics.Recorder
	// Now defaults to time.Now.
	Now func() time.Time
}

// Pusher publishes day plans.
type Pusher struct {
	cfg     Config
	log     logger.Logger
	metrics metrics.Recorder
}

func New(cfg Config) *Pusher {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	cfg.Plan.SetDefaults()
	return &Pusher{cfg: cfg, log: logger.OrNop(cfg.Logger), metrics: metrics.OrNop(cfg.Metrics)}
}

// Written pushes today's plan of every client in req. Nothing is pushed
// when today is outside the written season. Failures are reported per
// client and never abort the others.
func (p *Pusher) Written(ctx context.Context, req batch.WriteRequest) []Result {
	today := model.DateOf(p.cfg.Now())
	if !season.New(req.Season).Contains(today) {
		return nil
	}

	var mu sync.Mutex
	results := make([]Result, 0, len(req.Clients))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, id := range req.Clients {
		day := req.Schedule[id].Get(today)
		g.Go(func() error {
			res := p.pushOne(gctx, id, today, day)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pusher) pushOne(ctx context.Context, clientID string, date model.Date, day model.Day) Result {
	res := Result{ClientID: clientID}
	c, ok := p.cfg.Clients.Client(clientID)
	if !ok || c.UniqueID == "" {
		res.Err = fmt.Errorf("client %s has no terminal id", clientID)
		p.log.Warnf("skip push: %v", res.Err)
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	if day.IsOn() && p.cfg.Defaults != nil {
		day = day.Resolve(p.cfg.Defaults(clientID)(date))
	}
	plan := mqtt.Plan{
		ClientID: clientID,
		Date:     date.String(),
		Actions:  powerplan.Build(p.cfg.Plan, day, c.KioskURL),
	}

	start := time.Now()
	ev := metrics.PushEvent{ClientID: clientID, Date: plan.Date, Actions: len(plan.Actions), Time: start}
	cmdID, err := p.cfg.Publisher.SendPlan(c.UniqueID, plan)
	if err == nil {
		res.CommandID = cmdID
		res.Acked, err = p.cfg.Publisher.WaitForAck(cmdID, p.cfg.AckTimeout)
	}
	res.Err = err
	ev.Acknowledged = res.Acked
	ev.Latency = time.Since(start)
	if err != nil {
		ev.Error = err.Error()
		p.log.Errorf("push plan to %s (%s): %v", clientID, c.UniqueID, err)
	} else {
		p.log.Infof("terminal %s acknowledged plan %s", c.UniqueID, cmdID)
	}
	metrics.RecordPush(p.metrics, ev)
	return res
}
