// Package registryfile serves the client and institution registries from a
// YAML file, for installations without a registry service.
package registryfile

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/kioskpower/core/model"
)

var (
	// ErrDuplicateID is returned when two entries share an id.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrNotMapping is returned when the document is empty or its top level
	// is not a mapping.
	ErrNotMapping = errors.New("registry must be a mapping")
	// ErrUnknownKey is returned for a top-level key other than
	// institutions and clients.
	ErrUnknownKey = errors.New("unknown registry key")
)

type institutionEntry struct {
	ID      string          `yaml:"id"`
	Name    string          `yaml:"name"`
	Weekday *model.TimePair `yaml:"weekday"`
	Weekend *model.TimePair `yaml:"weekend"`
}

type document struct {
	Institutions []institutionEntry `yaml:"institutions"`
	Clients      []model.Client     `yaml:"clients"`
}

// Registry is an immutable in-memory registry loaded from YAML.
type Registry struct {
	clients      []model.Client
	institutions []model.Institution
	templates    map[string]model.TimeTemplate
}

// Load reads the registry file at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return Parse(data)
}

// Parse decodes a registry document. Clients without a status are treated
// as approved.
func Parse(data []byte) (*Registry, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}
	top := root.Content[0]
	for i := 0; i < len(top.Content); i += 2 {
		switch key := top.Content[i].Value; key {
		case "institutions", "clients":
		default:
			return nil, fmt.Errorf("%q: %w", key, ErrUnknownKey)
		}
	}
	var doc document
	if err := root.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	r := &Registry{templates: map[string]model.TimeTemplate{}}
	for _, in := range doc.Institutions {
		if _, dup := r.templates[in.ID]; dup {
			return nil, fmt.Errorf("institution %s: %w", in.ID, ErrDuplicateID)
		}
		for _, p := range []*model.TimePair{in.Weekday, in.Weekend} {
			if p != nil && !p.Valid() {
				return nil, fmt.Errorf("institution %s: invalid times %s-%s", in.ID, p.OnTime, p.OffTime)
			}
		}
		r.institutions = append(r.institutions, model.Institution{ID: in.ID, Name: in.Name})
		r.templates[in.ID] = model.TimeTemplate{InstitutionID: in.ID, Weekday: in.Weekday, Weekend: in.Weekend}
	}
	seen := map[string]bool{}
	for _, c := range doc.Clients {
		if seen[c.ID] {
			return nil, fmt.Errorf("client %s: %w", c.ID, ErrDuplicateID)
		}
		seen[c.ID] = true
		if c.Status == "" {
			c.Status = model.ApprovalApproved
		}
		r.clients = append(r.clients, c)
	}
	return r, nil
}

// ListClients returns every client, approved or not.
func (r *Registry) ListClients(context.Context) ([]model.Client, error) {
	return append([]model.Client(nil), r.clients...), nil
}

// ListInstitutions returns the institutions in file order.
func (r *Registry) ListInstitutions(context.Context) ([]model.Institution, error) {
	return append([]model.Institution(nil), r.institutions...), nil
}

// FetchTemplate returns the template of an institution, or nil when it has
// no times configured.
func (r *Registry) FetchTemplate(_ context.Context, institutionID string) (*model.TimeTemplate, error) {
	t, ok := r.templates[institutionID]
	if !ok || (t.Weekday == nil && t.Weekend == nil) {
		return nil, nil
	}
	return &t, nil
}
