package main

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/trendscout/internal/config"
	"github.com/ibeckermayer/trendscout/internal/gallery"
	"github.com/ibeckermayer/trendscout/internal/store"
)

func newHistoryCmd(s *session) *cobra.Command {
	var limit int
	var units, mediaStats bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if mediaStats {
				stats, err := store.MediaStats(s.cfg.Output.MediaDir)
				if err != nil {
					return err
				}
				printMediaStats(out, stats)
				return nil
			}

			db, err := store.New(s.cfg.Output.HistoryDB)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.RecentRuns(limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				return nil
			}

			for _, run := range runs {
				printRun(out, run)
				if !units {
					continue
				}
				records, err := db.RunUnits(run.ID)
				if err != nil {
					return fmt.Errorf("failed to list units: %w", err)
				}
				printUnits(out, records)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	cmd.Flags().BoolVar(&units, "units", false, "show the units of each run")
	cmd.Flags().BoolVar(&mediaStats, "media", false, "summarize downloaded media per keyword instead")
	return cmd
}

func printRun(w io.Writer, run store.Run) {
	finished := "running"
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
	}
	fmt.Fprintf(w, "%s  %-8s  %s  units=%d ok=%d empty=%d failed=%d posts=%d\n",
		run.Stamp, run.Mode, finished, run.Units, run.OK, run.Empty, run.Failed, run.Posts)
}

func printUnits(w io.Writer, records []store.UnitRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, u := range records {
		fmt.Fprintf(tw, "    %s\t%s\t%d\t%s\t%s\n", u.Unit, u.Status, u.Posts, u.Duration.Round(time.Millisecond), u.Reason)
	}
	tw.Flush()
}

func printMediaStats(w io.Writer, stats []store.MediaStat) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No media downloaded yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEYWORD\tIMAGES\tVIDEOS\tOTHER\tSIZE")
	var total store.MediaStat
	for _, st := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", st.Keyword, st.Images, st.Videos, st.Other, humanize.Bytes(uint64(st.Bytes)))
		total.Images += st.Images
		total.Videos += st.Videos
		total.Other += st.Other
		total.Bytes += st.Bytes
	}
	fmt.Fprintf(tw, "total\t%d\t%d\t%d\t%s\n", total.Images, total.Videos, total.Other, humanize.Bytes(uint64(total.Bytes)))
	tw.Flush()
}

func newGalleryCmd(s *session) *cobra.Command {
	var open bool

	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Show the most recent gallery page",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := gallery.GetLatestGallery(s.cfg.Output.ResultsDir)
			if err != nil {
				return err
			}
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			if open {
				return browser.OpenFile(path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&open, "open", false, "open the gallery in the default browser")
	return cmd
}

func newConfigCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printConfig(cmd.OutOrStdout(), s.cfg)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(s.cfgPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "open",
		Short: "Open the config file in the default editor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return browser.OpenFile(s.cfgPath)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Overwrite the config file with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Default().Save(s.cfgPath); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote defaults to %s\n", s.cfgPath)
			return nil
		},
	})

	return cmd
}

func printConfig(w io.Writer, cfg *config.Config) error {
	masked := *cfg
	masked.Fetch.Cookie = mask(cfg.Fetch.Cookie)
	masked.Scoring.APIKey = mask(cfg.Scoring.APIKey)
	return toml.NewEncoder(w).Encode(masked)
}

// mask keeps the first four characters of a secret.
func mask(secret string) string {
	r := []rune(secret)
	switch {
	case len(r) == 0:
		return ""
	case len(r) <= 8:
		return "********"
	default:
		return string(r[:4]) + "********"
	}
}
