package model

// ApprovalStatus is the registry state of a terminal.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
)

// Client is a display terminal known to the client registry.
type Client struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Locality      string         `json:"locality,omitempty" yaml:"locality"`
	InstitutionID string         `json:"institution_id" yaml:"institution_id"`
	Status        ApprovalStatus `json:"status" yaml:"status"`
	UniqueID      string         `json:"unique_id,omitempty" yaml:"unique_id"`
	KioskURL      string         `json:"kiosk_url,omitempty" yaml:"kiosk_url"`
}

// Approved reports whether the terminal participates in scheduling.
func (c Client) Approved() bool { return c.Status == ApprovalApproved }

// DisplayName prefers the locality over the registry name.
func (c Client) DisplayName() string {
	if c.Locality != "" {
		return c.Locality
	}
	return c.Name
}

// Institution owns a group of terminals.
type Institution struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// TimeTemplate is the default on/off time of an institution. Either bucket
// may be missing.
type TimeTemplate struct {
	InstitutionID string    `json:"institution_id" yaml:"institution_id"`
	Weekday       *TimePair `json:"weekday,omitempty" yaml:"weekday"`
	Weekend       *TimePair `json:"weekend,omitempty" yaml:"weekend"`
}
