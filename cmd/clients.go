package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/kioskpower/app"
	"github.com/kilianp07/kioskpower/core/defaults"
	"github.com/kilianp07/kioskpower/core/model"
)

var clientsInstitution string

// Any Monday and Saturday show the two template buckets.
var (
	sampleWeekday = model.NewDate(2025, time.August, 4)
	sampleWeekend = model.NewDate(2025, time.August, 9)
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List approved terminals with their default times",
	RunE:  runClients,
}

func init() {
	clientsCmd.Flags().StringVar(&clientsInstitution, "institution", "", "only list terminals of this institution")
	rootCmd.AddCommand(clientsCmd)
}

func runClients(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout)
	defer cancel()
	dir, err := app.OpenDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	return writeClients(cmd.OutOrStdout(), dir, clientsInstitution)
}

func writeClients(out io.Writer, dir *defaults.Directory, institutionID string) error {
	names := map[string]string{}
	for _, in := range dir.Institutions() {
		names[in.ID] = in.Name
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTERMINAL\tINSTITUTION\tWEEKDAY\tWEEKEND")
	for _, c := range dir.Clients(institutionID) {
		weekday, weekend := dir.Times(sampleWeekday, c.ID), dir.Times(sampleWeekend, c.ID)
		inst := names[c.InstitutionID]
		if inst == "" {
			inst = c.InstitutionID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.DisplayName(), inst, pair(weekday), pair(weekend))
	}
	return w.Flush()
}

func pair(p model.TimePair) string { return p.OnTime + "-" + p.OffTime }
