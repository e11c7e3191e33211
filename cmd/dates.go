package cmd

import (
	"fmt"
	"strings"

	"github.com/kilianp07/kioskpower/core/model"
)

// parseDates expands arguments of the form "2025-09-01" or
// "2025-09-01..2025-09-05" into dates, in order and without duplicates.
func parseDates(args []string) ([]model.Date, error) {
	seen := map[model.Date]bool{}
	var out []model.Date
	add := func(d model.Date) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, arg := range args {
		from, to, isRange := strings.Cut(arg, "..")
		start, err := model.ParseDate(from)
		if err != nil {
			return nil, err
		}
		if !isRange {
			add(start)
			continue
		}
		end, err := model.ParseDate(to)
		if err != nil {
			return nil, err
		}
		if end.Before(start) {
			return nil, fmt.Errorf("range %s ends before it starts", arg)
		}
		for d := start; !d.After(end); d = d.AddDays(1) {
			add(d)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no dates given")
	}
	return out, nil
}

func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
