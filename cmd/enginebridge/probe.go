package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/capability"
	"github.com/wippyai/engine-bridge/variant"
)

var noCheck bool

type probeReport struct {
	Capabilities enginebridge.Capabilities `json:"capabilities"`
	Tier         string                    `json:"tier"`
	Selected     string                    `json:"selected"`
	Target       *variant.Target           `json:"target,omitempty"`
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Print host capabilities and the engine build that would be loaded",
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, err := cfg.QualityTier()
		if err != nil {
			return err
		}
		bc, err := cfg.Bridge()
		if err != nil {
			return err
		}

		caps := capability.New(bc.Capabilities).Probe(cmd.Context())
		report := probeReport{
			Capabilities: caps,
			Tier:         tier.String(),
			Selected:     variant.Select(caps, tier).ID,
		}
		if !noCheck {
			target := variant.NewResolver(bc.Layout, nil).Resolve(cmd.Context(), caps, tier)
			report.Target = &target
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	probeCmd.Flags().BoolVar(&noCheck, "no-check", false, "skip artifact existence checks")
}
