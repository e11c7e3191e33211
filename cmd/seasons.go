package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/kioskpower/core/season"
	"github.com/kilianp07/kioskpower/infra/httpapi"
	"github.com/kilianp07/kioskpower/infra/logger"
)

var (
	seasonCount int
	seasonLocal bool
)

var seasonsCmd = &cobra.Command{
	Use:   "seasons",
	Short: "List the seasons that can be planned",
	RunE:  runSeasons,
}

func init() {
	seasonsCmd.Flags().IntVar(&seasonCount, "count", 3, "number of seasons")
	seasonsCmd.Flags().BoolVar(&seasonLocal, "local", false, "compute seasons without asking the API")
	rootCmd.AddCommand(seasonsCmd)
}

func runSeasons(cmd *cobra.Command, args []string) error {
	seasons := season.List(time.Now(), seasonCount)
	if !seasonLocal {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout)
		defer cancel()
		remote, err := httpapi.New(cfg.API, logger.New("api")).ListSeasons(ctx, seasonCount)
		if err != nil {
			return fmt.Errorf("list seasons: %w", err)
		}
		seasons = remote
	}
	out := cmd.OutOrStdout()
	for _, s := range seasons {
		if _, err := fmt.Fprintf(out, "%d\t%s\t%s .. %s\n", s.ID, s.Label, s.Start(), s.End()); err != nil {
			return err
		}
	}
	return nil
}
