package defaults

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/kioskpower/core/logger"
	"github.com/kilianp07/kioskpower/core/model"
)

// maxTemplateFetches bounds concurrent template requests during Refresh.
const maxTemplateFetches = 4

// ClientRegistry lists terminals.
type ClientRegistry interface {
	ListClients(ctx context.Context) ([]model.Client, error)
}

// InstitutionRegistry lists institutions and their time templates.
type InstitutionRegistry interface {
	ListInstitutions(ctx context.Context) ([]model.Institution, error)
	FetchTemplate(ctx context.Context, institutionID string) (*model.TimeTemplate, error)
}

// Directory caches approved clients and one template per institution.
type Directory struct {
	clients ClientRegistry
	inst    InstitutionRegistry
	log     logger.Logger

	mu           sync.RWMutex
	approved     []model.Client
	byID         map[string]model.Client
	institutions []model.Institution
	templates    map[string]model.TimeTemplate
}

// NewDirectory builds an empty directory. Call Refresh to populate it.
func NewDirectory(clients ClientRegistry, inst InstitutionRegistry, log logger.Logger) *Directory {
	return &Directory{
		clients:   clients,
		inst:      inst,
		log:       logger.OrNop(log),
		byID:      map[string]model.Client{},
		templates: map[string]model.TimeTemplate{},
	}
}

// Refresh reloads clients and templates. A client or institution listing
// failure aborts the refresh and leaves the previous contents. A failed
// template fetch is kept as "no template" so that lookups fall back.
func (d *Directory) Refresh(ctx context.Context) error {
	all, err := d.clients.ListClients(ctx)
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}
	institutions, err := d.inst.ListInstitutions(ctx)
	if err != nil {
		return fmt.Errorf("list institutions: %w", err)
	}

	var approved []model.Client
	byID := make(map[string]model.Client, len(all))
	for _, c := range all {
		if !c.Approved() {
			continue
		}
		approved = append(approved, c)
		byID[c.ID] = c
	}

	var tplMu sync.Mutex
	templates := make(map[string]model.TimeTemplate, len(institutions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxTemplateFetches)
	for _, inst := range institutions {
		id := inst.ID
		g.Go(func() error {
			tpl, err := d.inst.FetchTemplate(gctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				d.log.Warnf("template for institution %s unavailable: %v", id, err)
				return nil
			}
			if tpl == nil {
				return nil
			}
			t := *tpl
			t.InstitutionID = id
			tplMu.Lock()
			templates[id] = t
			tplMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fetch templates: %w", err)
	}

	d.mu.Lock()
	d.approved = approved
	d.byID = byID
	d.institutions = institutions
	d.templates = templates
	d.mu.Unlock()
	d.log.Infow("directory refreshed", map[string]any{
		"clients":      len(approved),
		"institutions": len(institutions),
		"templates":    len(templates),
	})
	return nil
}

// Times returns the default times of clientID on date. Unknown clients get
// the fallback.
func (d *Directory) Times(date model.Date, clientID string) model.TimePair {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.byID[clientID]
	if !ok {
		return Resolve(date, nil, nil)
	}
	return Resolve(date, &c, d.templates)
}

// For returns a resolver bound to one client.
func (d *Directory) For(clientID string) func(model.Date) model.TimePair {
	return func(date model.Date) model.TimePair { return d.Times(date, clientID) }
}

// Client looks up an approved client.
func (d *Directory) Client(id string) (model.Client, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.byID[id]
	return c, ok
}

// Clients returns approved clients, limited to one institution when
// institutionID is not empty. The result is ordered by display name.
func (d *Directory) Clients(institutionID string) []model.Client {
	d.mu.RLock()
	out := make([]model.Client, 0, len(d.approved))
	for _, c := range d.approved {
		if institutionID == "" || c.InstitutionID == institutionID {
			out = append(out, c)
		}
	}
	d.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayName() < out[j].DisplayName() })
	return out
}

// Institutions returns the last listed institutions.
func (d *Directory) Institutions() []model.Institution {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]model.Institution(nil), d.institutions...)
}
