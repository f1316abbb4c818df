package config

import (
	"github.com/spf13/viper"

	"github.com/wippyai/engine-bridge/bridge"
	"github.com/wippyai/engine-bridge/engine"
	"github.com/wippyai/engine-bridge/transport"
)

// SetDefaults registers a default for every key. Keys without a default
// are invisible to environment overrides.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:8080/")
	v.SetDefault("full_dir", "build/")
	v.SetDefault("reduced_dir", "build/fallback/")
	v.SetDefault("data_url", "")
	v.SetDefault("tier", "full")
	v.SetDefault("ready_timeout", bridge.DefaultReadyTimeout)
	v.SetDefault("stop_command", transport.DefaultStopCommand)

	v.SetDefault("asset.name", bridge.DefaultAssetName)
	v.SetDefault("asset.pattern", bridge.DefaultAssetPattern.String())

	v.SetDefault("fetch.chunk_count", 10)
	v.SetDefault("fetch.large_chunk_count", 16)
	v.SetDefault("fetch.large_threshold", "50MiB")
	v.SetDefault("fetch.timeout", 0)

	v.SetDefault("memory.initial_mb", engine.DefaultInitialMB)
	v.SetDefault("memory.max_mb", engine.DefaultMaxMB)
	v.SetDefault("memory.floor_mb", engine.DefaultFloorMB)

	v.SetDefault("restart.delay", bridge.DefaultRestartDelay)
	v.SetDefault("restart.max_attempts", bridge.DefaultMaxRestarts)

	v.SetDefault("worker.command", []string{})

	v.SetDefault("capabilities.disable_threads", false)
	v.SetDefault("capabilities.disable_simd", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}
