package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/beekhof/ics-calendar-sync/internal/ics"
)

func newParseCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		input  string
	)

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Fetch and parse the feed without touching Google Calendar",
		Long: `parse prints the events a sync would process. Use --input to read a
local file instead of fetching the feed URL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "ics" {
				return fmt.Errorf("invalid --format %q: must be json or ics", format)
			}

			cfg, logger, err := opts.load(false)
			if err != nil {
				return err
			}

			var text string
			if input != "" {
				data, err := os.ReadFile(input)
				if err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				text = string(data)
			} else {
				text, err = ics.NewFetcher(nil, logger).Fetch(cmd.Context(), cfg.FeedURL)
				if err != nil {
					return err
				}
			}

			feed, err := ics.ParseFeed(text, cfg.DefaultTimezone)
			if err != nil {
				return err
			}
			logger.Info("feed parsed", "events", len(feed.Events), "skipped", feed.Skipped)

			return writeFeed(os.Stdout, format, feed)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or ics")
	cmd.Flags().StringVar(&input, "input", "", "Read the feed from a local file")
	return cmd
}

func writeFeed(w io.Writer, format string, feed *ics.Feed) error {
	if format == "ics" {
		return ics.Encode(w, feed.Events, time.Now())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(feed)
}
