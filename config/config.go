// Package config loads engine-bridge settings with viper.
//
// Precedence, lowest first: built-in defaults, the optional config file
// (yaml, toml or json), then ENGINEBRIDGE_* environment variables where a
// dot in the key becomes an underscore (fetch.chunk_count is
// ENGINEBRIDGE_FETCH_CHUNK_COUNT).
package config

import (
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ENGINEBRIDGE"

// Config is the complete configuration.
type Config struct {
	BaseURL      string        `mapstructure:"base_url"`
	FullDir      string        `mapstructure:"full_dir"`
	ReducedDir   string        `mapstructure:"reduced_dir"`
	DataURL      string        `mapstructure:"data_url"`
	Tier         string        `mapstructure:"tier"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
	StopCommand  string        `mapstructure:"stop_command"`

	Asset        AssetConfig        `mapstructure:"asset"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	Memory       MemoryConfig       `mapstructure:"memory"`
	Restart      RestartConfig      `mapstructure:"restart"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities"`
	Log          LogConfig          `mapstructure:"log"`
}

type AssetConfig struct {
	Name    string `mapstructure:"name"`
	Pattern string `mapstructure:"pattern"`
}

type FetchConfig struct {
	ChunkCount      int `mapstructure:"chunk_count"`
	LargeChunkCount int `mapstructure:"large_chunk_count"`
	// LargeThreshold is a byte size such as "50MiB".
	LargeThreshold string        `mapstructure:"large_threshold"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type MemoryConfig struct {
	InitialMB uint32 `mapstructure:"initial_mb"`
	MaxMB     uint32 `mapstructure:"max_mb"`
	FloorMB   uint32 `mapstructure:"floor_mb"`
}

type RestartConfig struct {
	Delay time.Duration `mapstructure:"delay"`
	// MaxAttempts of zero restarts forever.
	MaxAttempts int `mapstructure:"max_attempts"`
}

type WorkerConfig struct {
	// Command runs an isolated worker; empty runs this executable with the
	// worker subcommand.
	Command []string `mapstructure:"command"`
}

type CapabilitiesConfig struct {
	DisableThreads bool `mapstructure:"disable_threads"`
	DisableSIMD    bool `mapstructure:"disable_simd"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
