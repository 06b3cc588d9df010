package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pbaille/nutrilog/internal/api"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := getStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			server := api.New(s, api.Options{
				Addr:    cfg.Addr,
				Targets: cfg.Targets,
				Sources: getSources(ctx),
				Log:     log,
			})
			return server.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "server address (overrides config)")
	return cmd
}
