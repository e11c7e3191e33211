package httpapi

import (
	"bytes"
	"encoding/json"

	"github.com/kilianp07/kioskpower/core/model"
)

// flexID accepts both JSON numbers and strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type clientDTO struct {
	ID       flexID `json:"id"`
	Name     string `json:"name"`
	Locality string `json:"locality"`
	SchoolID flexID `json:"school_id"`
	// Some registry versions use camelCase.
	SchoolIDCamel flexID `json:"schoolId"`
	Status        string `json:"status"`
	UniqueID      string `json:"unique_id"`
	KioskURL      string `json:"kiosk_url"`
}

func (d clientDTO) model() model.Client {
	inst := d.SchoolID
	if inst == "" {
		inst = d.SchoolIDCamel
	}
	return model.Client{
		ID:            string(d.ID),
		Name:          d.Name,
		Locality:      d.Locality,
		InstitutionID: string(inst),
		Status:        model.ApprovalStatus(d.Status),
		UniqueID:      d.UniqueID,
		KioskURL:      d.KioskURL,
	}
}

type institutionDTO struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
}
