// Command enginebridge boots the engine and relays its protocol.
//
//	enginebridge run          events as JSON lines, commands on stdin
//	enginebridge run -i       terminal UI
//	enginebridge worker       isolated worker endpoint (spawned by run)
//	enginebridge probe        host capabilities and the resolved build
//	enginebridge fetch URL    download the data asset
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wippyai/engine-bridge/config"
)

var (
	configPath string
	v          = config.NewViper()
	cfg        *config.Config
	logger     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "enginebridge",
	Short: "Boot a WebAssembly Gomoku engine and relay its protocol",
	Long: `enginebridge probes the host, picks the best engine build the host can run,
downloads the engine and its data asset and runs it in-process or in an
isolated worker process.

Configuration comes from defaults, an optional --config file and
ENGINEBRIDGE_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ReadFile(v, configPath); err != nil {
			return err
		}
		c, err := config.FromViper(v)
		if err != nil {
			return err
		}
		cfg = c

		l, err := newLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		logger = l
		installLogger(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (yaml, toml or json)")
	flags.String("base-url", "", "artifact base URL")
	flags.String("data-url", "", "direct URL of the data asset")
	flags.String("tier", "", "quality tier: full or reduced")
	flags.String("log-level", "", "log level")
	flags.String("log-format", "", "log format: console or json")

	bindFlag(flags.Lookup("base-url"), "base_url")
	bindFlag(flags.Lookup("data-url"), "data_url")
	bindFlag(flags.Lookup("tier"), "tier")
	bindFlag(flags.Lookup("log-level"), "log.level")
	bindFlag(flags.Lookup("log-format"), "log.format")

	rootCmd.AddCommand(runCmd, workerCmd, probeCmd, fetchCmd)
}

func bindFlag(f *pflag.Flag, key string) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
