package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/sweeney/parking-gate/internal/logic"
	"github.com/sweeney/parking-gate/internal/store"
)

var resetURL string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the persisted occupancy and daily totals and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		st, err := store.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		return printState(cmd.OutOrStdout(), st, cfg.Capacity, loc, time.Now())
	},
}

var resetDailyCmd = &cobra.Command{
	Use:   "reset-daily",
	Short: "Zero today's entry and exit totals",
	Long: `Zero today's entry and exit totals. Occupancy is not changed.

With --url the request is sent to a running daemon's status server;
otherwise the state file is updated directly and the daemon must be stopped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if resetURL != "" {
			if err := postReset(http.DefaultClient, resetURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "daily totals reset")
			return nil
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		lc, err := cfg.Controller()
		if err != nil {
			return err
		}
		st, err := store.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		now := time.Now()
		ctrl, err := loadController(lc, st, now)
		if err != nil {
			return err
		}
		if err := ctrl.ResetDailyStats(now); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "daily totals reset")
		return nil
	},
}

func init() {
	resetDailyCmd.Flags().StringVar(&resetURL, "url", "", "status server of a running daemon, e.g. http://localhost:8080")
}

// printState writes the persisted state as seen at now. Totals recorded on an
// earlier date are reported as zero for today.
func printState(w io.Writer, st store.Store, capacity int, loc *time.Location, now time.Time) error {
	values, err := st.Load()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	ps, err := logic.DecodeState(values, now, loc)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	last := "never"
	if !ps.LastEntryAt.IsZero() {
		last = ps.LastEntryAt.In(loc).Format(time.RFC3339)
	}
	fmt.Fprintf(w, "Occupancy: %d/%d (last entry: %s)\n", ps.Count, capacity, last)

	today := logic.Today(now, loc)
	if ps.Daily.Date != today {
		fmt.Fprintf(w, "Today (%s): entries=0 exits=0 (last recorded %s: entries=%d exits=%d)\n",
			today, ps.Daily.Date, ps.Daily.Entries, ps.Daily.Exits)
		return nil
	}
	fmt.Fprintf(w, "Today (%s): entries=%d exits=%d\n", today, ps.Daily.Entries, ps.Daily.Exits)
	return nil
}

func postReset(client *http.Client, base string) error {
	u := strings.TrimRight(base, "/") + "/reset-daily"
	// The endpoint redirects to the status page on success.
	resp, err := client.Post(u, "application/x-www-form-urlencoded", nil)
	if err != nil {
		return fmt.Errorf("reset request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("reset request: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
