package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/engine-bridge/fetch"
	"github.com/wippyai/engine-bridge/transport"
)

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Serve an isolated engine over stdin/stdout",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := transport.ServeOptions{
			Fetcher:  fetch.New(nil, fetch.Options{Timeout: cfg.Fetch.Timeout}),
			DataName: cfg.Asset.Name,
		}
		return transport.Serve(cmd.Context(), os.Stdin, os.Stdout, opts)
	},
}
