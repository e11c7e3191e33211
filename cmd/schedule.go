package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/kioskpower/app"
	"github.com/kilianp07/kioskpower/core/model"
	"github.com/kilianp07/kioskpower/core/precise"
	"github.com/kilianp07/kioskpower/pkg/export"
)

var (
	schedSeason int
	schedClient string
	showAll     bool
	showFrom    string
	showTo      string
	showFormat  string
	markStatus  string
	editDate    string
	editOn      string
	editOff     string
	propFrom    string
	propTo      string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect and edit terminal schedules",
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a client's schedule with resolved times",
	RunE:  runScheduleShow,
}

var scheduleMarkCmd = &cobra.Command{
	Use:   "mark DATE|FROM..TO...",
	Short: "Mark days on or off for a client",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScheduleMark,
}

var scheduleEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Set precise on/off times of one day",
	RunE:  runScheduleEdit,
}

var schedulePropagateCmd = &cobra.Command{
	Use:   "propagate",
	Short: "Copy a client's season schedule to other clients",
	RunE:  runSchedulePropagate,
}

func init() {
	scheduleCmd.PersistentFlags().IntVar(&schedSeason, "season", 0, "season start year (default: configured or current)")
	for _, c := range []*cobra.Command{scheduleShowCmd, scheduleMarkCmd, scheduleEditCmd} {
		c.Flags().StringVar(&schedClient, "client", "", "client id")
		_ = c.MarkFlagRequired("client")
	}
	scheduleShowCmd.Flags().BoolVar(&showAll, "all", false, "include off days")
	scheduleShowCmd.Flags().StringVar(&showFrom, "from", "", "first date to print")
	scheduleShowCmd.Flags().StringVar(&showTo, "to", "", "last date to print")
	scheduleShowCmd.Flags().StringVar(&showFormat, "format", "table", "table, csv or json")
	scheduleMarkCmd.Flags().StringVar(&markStatus, "status", "on", "on or off")
	scheduleEditCmd.Flags().StringVar(&editDate, "date", "", "day to edit")
	scheduleEditCmd.Flags().StringVar(&editOn, "on", "", "power-on time HH:MM")
	scheduleEditCmd.Flags().StringVar(&editOff, "off", "", "power-off time HH:MM")
	_ = scheduleEditCmd.MarkFlagRequired("date")
	schedulePropagateCmd.Flags().StringVar(&propFrom, "from", "", "source client id")
	schedulePropagateCmd.Flags().StringVar(&propTo, "to", "", "comma separated target client ids")
	_ = schedulePropagateCmd.MarkFlagRequired("from")
	_ = schedulePropagateCmd.MarkFlagRequired("to")

	scheduleCmd.AddCommand(scheduleShowCmd, scheduleMarkCmd, scheduleEditCmd, schedulePropagateCmd)
	rootCmd.AddCommand(scheduleCmd)
}

// withSession opens a planning session on the given clients, the first
// being active, and closes it after fn, flushing pending writes.
func withSession(cmd *cobra.Command, clients []string, fn func(ctx context.Context, sess *app.Session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if schedSeason != 0 {
		cfg.Calendar.Season = schedSeason
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sess, err := app.OpenSession(ctx, cfg, time.Now())
	if err != nil {
		return err
	}
	if err := sess.Planner.Select(ctx, clients); err != nil {
		_ = sess.Close(ctx)
		return err
	}
	if err := sess.Planner.Activate(ctx, clients[0]); err != nil {
		_ = sess.Close(ctx)
		return err
	}
	runErr := fn(ctx, sess)
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
	defer cancel()
	return errors.Join(runErr, sess.Close(closeCtx))
}

func runScheduleShow(cmd *cobra.Command, args []string) error {
	return withSession(cmd, []string{schedClient}, func(_ context.Context, sess *app.Session) error {
		s := sess.Planner.Season()
		from, to := s.Start(), s.End()
		var err error
		if showFrom != "" {
			if from, err = model.ParseDate(showFrom); err != nil {
				return err
			}
		}
		if showTo != "" {
			if to, err = model.ParseDate(showTo); err != nil {
				return err
			}
		}
		days := model.DayMap{}
		for d := from; !d.After(to); d = d.AddDays(1) {
			day, err := sess.Planner.Day(d)
			if err != nil {
				return err
			}
			if day.IsOn() || showAll {
				days[d] = day
			}
		}
		out := cmd.OutOrStdout()
		switch showFormat {
		case "csv":
			return export.WriteCSV(out, export.Rows(schedClient, days))
		case "json":
			return export.WriteJSON(out, export.Rows(schedClient, days))
		case "table":
		default:
			return fmt.Errorf("unknown format %q", showFormat)
		}

		name := schedClient
		if c, ok := sess.Directory.Client(schedClient); ok {
			name = c.DisplayName()
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "%s\t%s (%s)\n", s.Label, name, sess.Planner.LoadState())
		for _, d := range days.Dates() {
			day := days[d]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d, d.Weekday().String()[:3], day.Status, day.OnTime, day.OffTime)
		}
		return w.Flush()
	})
}

func runScheduleMark(cmd *cobra.Command, args []string) error {
	dates, err := parseDates(args)
	if err != nil {
		return err
	}
	status := model.Status(markStatus)
	if status != model.StatusOn && status != model.StatusOff {
		return fmt.Errorf("status must be on or off, got %q", markStatus)
	}
	return withSession(cmd, []string{schedClient}, func(ctx context.Context, sess *app.Session) error {
		if err := sess.Planner.Mark(dates, status); err != nil {
			return err
		}
		if err := sess.Planner.Flush(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "marked %d days %s for %s\n", len(dates), status, schedClient)
		return nil
	})
}

func runScheduleEdit(cmd *cobra.Command, args []string) error {
	date, err := model.ParseDate(editDate)
	if err != nil {
		return err
	}
	return withSession(cmd, []string{schedClient}, func(ctx context.Context, sess *app.Session) error {
		editor := sess.Planner.Editor()
		ready := make(chan struct{}, 1)
		editor.OnTransition(func(tr precise.Transition) {
			if tr.To == precise.Editing {
				select {
				case ready <- struct{}{}:
				default:
				}
			}
		})
		if err := sess.Planner.EditDay(ctx, date); err != nil {
			return err
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(30 * time.Second):
			return fmt.Errorf("editor did not open")
		}
		on, off := editOn, editOff
		draft := editor.Draft()
		if on == "" {
			on = draft.OnTime
		}
		if off == "" {
			off = draft.OffTime
		}
		if err := editor.Submit(ctx, on, off); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s-%s\n", schedClient, date, on, off)
		return nil
	})
}

func runSchedulePropagate(cmd *cobra.Command, args []string) error {
	targets := splitIDs(propTo)
	clients := append([]string{propFrom}, targets...)
	return withSession(cmd, clients, func(ctx context.Context, sess *app.Session) error {
		if err := sess.Planner.Save(ctx, true); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "copied %s to %d clients\n", propFrom, len(targets))
		return nil
	})
}
