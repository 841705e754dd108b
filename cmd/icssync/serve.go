package main

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/beekhof/ics-calendar-sync/internal/runner"
	"github.com/beekhof/ics-calendar-sync/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /sync, /healthz and /metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(true)
			if err != nil {
				return err
			}

			r, err := runner.New(cfg, logger)
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			srv := server.New(r, r.Metrics().Handler(), logger)
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", server.DefaultAddr, "Listen address")
	return cmd
}
