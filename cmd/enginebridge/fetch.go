package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/fetch"
)

var fetchOutput string

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Download the data asset with the chunked strategy",
	Long: `Fetch downloads the data asset the way the engine bootstrap does: concurrent
range requests when the server supports them, otherwise one streamed
request. The URL defaults to data_url, then to the full tier's directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, err := cfg.Bridge()
		if err != nil {
			return err
		}

		url := bc.DataURL
		if len(args) == 1 {
			url = args[0]
		}
		if url == "" {
			url = bc.Layout.Dir(enginebridge.TierFull) + bc.AssetName
		}
		out := fetchOutput
		if out == "" {
			out = bc.AssetName
		}

		f := fetch.New(nil, bc.Fetch)
		start := time.Now()
		last := time.Time{}
		data, err := f.Fetch(cmd.Context(), url, func(loaded, total int64) {
			if time.Since(last) < 200*time.Millisecond && loaded != total {
				return
			}
			last = time.Now()
			fmt.Fprintf(os.Stderr, "\r%s / %s", humanize.IBytes(uint64(loaded)), humanize.IBytes(uint64(total)))
		})
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}

		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		logger.Info("asset saved",
			zap.String("url", url),
			zap.String("path", out),
			zap.String("size", humanize.IBytes(uint64(len(data)))),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "output file (default: asset name)")
}
