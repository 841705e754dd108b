package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/beekhof/ics-calendar-sync/internal/config"
	"github.com/beekhof/ics-calendar-sync/internal/logging"
)

// version is set at build time with -ldflags.
var version = "dev"

type rootOptions struct {
	flags   config.Flags
	envFile string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "icssync",
		Short: "Synchronize an ICS feed into a Google Calendar",
		Long: `icssync fetches an iCalendar feed, parses its VEVENTs and creates or
updates matching events in a Google Calendar, keyed by UID.

It can run as:
  - a one-shot sync (default)
  - a dry-run parser that prints the normalized feed
  - an HTTP service that syncs on POST /sync

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (also read from --env-file)
    3. Config file (--config, JSON or YAML)
    4. Defaults`,
		Version:      version,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.flags.ConfigFile, "config", "", "Path to a JSON or YAML config file")
	pf.StringVar(&opts.envFile, "env-file", ".env", "Path to a KEY=VALUE file loaded into the environment if present")
	pf.StringVar(&opts.flags.FeedURL, "feed-url", "", "ICS feed URL (env FEED_URL)")
	pf.StringVar(&opts.flags.CalendarID, "calendar-id", "", "Target Google Calendar ID (env GOOGLE_CALENDAR_ID)")
	pf.StringVar(&opts.flags.GoogleCredentialsPath, "google-credentials-path", "", "Service-account key JSON (env GOOGLE_CREDENTIALS_PATH)")
	pf.StringVar(&opts.flags.DefaultTimezone, "default-timezone", "", "Zone for floating date-times (env DEFAULT_TIMEZONE)")
	pf.Float64Var(&opts.flags.SyncRateLimit, "rate-limit", 0, "Maximum events per second, 0 for unlimited (env SYNC_RATE_LIMIT)")
	pf.StringVar(&opts.flags.MetricsFile, "metrics-file", "", "Write Prometheus textfile metrics after each run (env METRICS_FILE)")
	pf.StringVar(&opts.flags.LogLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	pf.StringVar(&opts.flags.LogFormat, "log-format", "", "text or json (env LOG_FORMAT)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Shorthand for --log-level=debug")

	cmd.AddCommand(newSyncCmd(opts))
	cmd.AddCommand(newParseCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

// load reads configuration and builds the process logger. With
// requireCredentials false only value formats are checked.
func (o *rootOptions) load(requireCredentials bool) (*config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return nil, nil, err
	}
	if o.verbose {
		o.flags.LogLevel = "debug"
	}

	var (
		cfg *config.Config
		err error
	)
	if requireCredentials {
		cfg, err = config.LoadConfig(o.flags)
	} else {
		cfg, err = config.Resolve(o.flags)
	}
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetVersionTemplate(`{{printf "icssync version %s\n" .Version}}`)

	// No subcommand means a one-shot sync.
	if len(os.Args) == 1 {
		root.SetArgs([]string{"sync"})
	}

	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
