package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/beekhof/ics-calendar-sync/internal/runner"
)

// errRunFailed signals a failed run whose envelope has already been printed.
var errRunFailed = errors.New("sync run failed")

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync and print the result envelope as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			// Setup failures are reported like a failed run, so operators get
			// the envelope and the alert before any network call is made.
			var res runner.Result
			cfg, logger, err := opts.load(false)
			if err == nil {
				err = cfg.RequireCredentials()
			}
			var r *runner.Runner
			if err == nil {
				r, err = runner.New(cfg, logger)
			}
			if err != nil {
				res = runner.Abort(ctx, cfg, logger, err)
			} else {
				res = r.Run(ctx)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if !res.Success {
				cmd.SilenceErrors = true
				return errRunFailed
			}
			return nil
		},
	}
}
