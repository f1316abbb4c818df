package config

import (
	"regexp"

	"github.com/dustin/go-humanize"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/bridge"
	"github.com/wippyai/engine-bridge/capability"
	"github.com/wippyai/engine-bridge/engine"
	"github.com/wippyai/engine-bridge/fetch"
	"github.com/wippyai/engine-bridge/transport"
	"github.com/wippyai/engine-bridge/variant"
)

// QualityTier returns the parsed tier.
func (c *Config) QualityTier() (enginebridge.Tier, error) {
	return enginebridge.ParseTier(c.Tier)
}

// Bridge converts the configuration into a bridge configuration. The
// configuration must have been validated.
func (c *Config) Bridge() (bridge.Config, error) {
	pattern, err := regexp.Compile(c.Asset.Pattern)
	if err != nil {
		return bridge.Config{}, invalid("asset.pattern: %v", err)
	}
	threshold, err := humanize.ParseBytes(c.Fetch.LargeThreshold)
	if err != nil {
		return bridge.Config{}, invalid("fetch.large_threshold: %v", err)
	}

	out := bridge.Config{
		Layout: variant.Layout{
			BaseURL:    c.BaseURL,
			FullDir:    c.FullDir,
			ReducedDir: c.ReducedDir,
		},
		DataURL:      c.DataURL,
		AssetName:    c.Asset.Name,
		AssetPattern: pattern,
		Fetch: fetch.Options{
			ChunkCount:      c.Fetch.ChunkCount,
			LargeChunkCount: c.Fetch.LargeChunkCount,
			LargeThreshold:  int64(threshold),
			Timeout:         c.Fetch.Timeout,
		},
		Memory: engine.MemoryBudget{
			InitialMB: c.Memory.InitialMB,
			MaxMB:     c.Memory.MaxMB,
			FloorMB:   c.Memory.FloorMB,
		},
		RestartDelay: c.Restart.Delay,
		MaxRestarts:  c.Restart.MaxAttempts,
		ReadyTimeout: c.ReadyTimeout,
		StopCommand:  c.StopCommand,
		Capabilities: capability.Options{
			DisableThreads: c.Capabilities.DisableThreads,
			DisableSIMD:    c.Capabilities.DisableSIMD,
		},
	}
	if len(c.Worker.Command) > 0 {
		out.Spawner = transport.ProcessSpawner{Path: c.Worker.Command[0], Args: c.Worker.Command[1:]}
	}
	return out, nil
}
