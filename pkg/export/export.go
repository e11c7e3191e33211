// Package export writes resolved season schedules for spreadsheets and
// scripts.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"

	"github.com/kilianp07/kioskpower/core/model"
)

// Row is one exported day.
type Row struct {
	ClientID string       `json:"client_id"`
	Date     model.Date   `json:"date"`
	Status   model.Status `json:"status"`
	OnTime   string       `json:"on_time,omitempty"`
	OffTime  string       `json:"off_time,omitempty"`
}

// Rows flattens a schedule in date order.
func Rows(clientID string, days model.DayMap) []Row {
	dates := days.Dates()
	out := make([]Row, 0, len(dates))
	for _, d := range dates {
		day := days[d]
		out = append(out, Row{ClientID: clientID, Date: d, Status: day.Status, OnTime: day.OnTime, OffTime: day.OffTime})
	}
	return out
}

// WriteJSON writes the rows to w in JSON format.
func WriteJSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	return enc.Encode(rows)
}

// WriteCSV writes the rows to w in CSV format with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"client_id", "date", "status", "on_time", "off_time"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.ClientID, r.Date.String(), string(r.Status), r.OnTime, r.OffTime}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
