package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/errors"
	"github.com/wippyai/engine-bridge/transport"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Tier != "full" || cfg.StopCommand != "YXSTOP" || cfg.Asset.Name != "rapfi.data" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Restart.Delay != 500*time.Millisecond || cfg.Restart.MaxAttempts != 5 {
		t.Errorf("restart = %+v", cfg.Restart)
	}
	if cfg.Memory.MaxMB != 2048 || cfg.Memory.FloorMB != 512 || cfg.Memory.InitialMB != 64 {
		t.Errorf("memory = %+v", cfg.Memory)
	}

	bc, err := cfg.Bridge()
	if err != nil {
		t.Fatalf("Bridge: %v", err)
	}
	if bc.Fetch.LargeThreshold != 50<<20 || bc.Fetch.ChunkCount != 10 || bc.Fetch.LargeChunkCount != 16 {
		t.Errorf("fetch = %+v", bc.Fetch)
	}
	if !bc.AssetPattern.MatchString("rapfi-multi.data") {
		t.Error("default pattern rejects a variant data name")
	}
	if bc.Layout.Dir(enginebridge.TierReduced) != "http://localhost:8080/build/fallback/" {
		t.Errorf("reduced dir = %q", bc.Layout.Dir(enginebridge.TierReduced))
	}
	if bc.Spawner != nil {
		t.Errorf("spawner = %#v", bc.Spawner)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("ENGINEBRIDGE_TIER", "fallback")
	t.Setenv("ENGINEBRIDGE_FETCH_CHUNK_COUNT", "4")
	t.Setenv("ENGINEBRIDGE_FETCH_LARGE_THRESHOLD", "1MiB")
	t.Setenv("ENGINEBRIDGE_RESTART_DELAY", "2s")
	t.Setenv("ENGINEBRIDGE_CAPABILITIES_DISABLE_SIMD", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tier, err := cfg.QualityTier()
	if err != nil || tier != enginebridge.TierReduced {
		t.Errorf("tier = %v, %v", tier, err)
	}
	if cfg.Restart.Delay != 2*time.Second || !cfg.Capabilities.DisableSIMD {
		t.Errorf("cfg = %+v", cfg)
	}

	bc, err := cfg.Bridge()
	if err != nil {
		t.Fatalf("Bridge: %v", err)
	}
	if bc.Fetch.ChunkCount != 4 || bc.Fetch.LargeThreshold != 1<<20 || !bc.Capabilities.DisableSIMD {
		t.Errorf("bridge config = %+v", bc)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enginebridge.yaml")
	body := `
base_url: https://gomoku.example/
data_url: https://cdn.example/rapfi.data
restart:
  max_attempts: 0
worker:
  command: ["/usr/local/bin/enginebridge", "worker"]
log:
  format: json
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	// environment still wins over the file
	t.Setenv("ENGINEBRIDGE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://gomoku.example/" || cfg.DataURL != "https://cdn.example/rapfi.data" {
		t.Errorf("urls = %q, %q", cfg.BaseURL, cfg.DataURL)
	}
	if cfg.Restart.MaxAttempts != 0 || cfg.Log.Format != "json" || cfg.Log.Level != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.FullDir != "build/" {
		t.Errorf("unset key lost its default: %q", cfg.FullDir)
	}

	bc, err := cfg.Bridge()
	if err != nil {
		t.Fatalf("Bridge: %v", err)
	}
	sp, ok := bc.Spawner.(transport.ProcessSpawner)
	if !ok || sp.Path != "/usr/local/bin/enginebridge" || len(sp.Args) != 1 || sp.Args[0] != "worker" {
		t.Errorf("spawner = %#v", bc.Spawner)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, errors.InvalidInput(errors.PhaseConfig, "")) {
		t.Errorf("Load = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative base url", func(c *Config) { c.BaseURL = "build/" }},
		{"relative data url", func(c *Config) { c.DataURL = "rapfi.data" }},
		{"unknown tier", func(c *Config) { c.Tier = "ultra" }},
		{"negative ready timeout", func(c *Config) { c.ReadyTimeout = -time.Second }},
		{"empty stop command", func(c *Config) { c.StopCommand = "" }},
		{"empty asset name", func(c *Config) { c.Asset.Name = "" }},
		{"bad pattern", func(c *Config) { c.Asset.Pattern = "(" }},
		{"pattern misses name", func(c *Config) { c.Asset.Pattern = `^weights\.bin$` }},
		{"zero chunks", func(c *Config) { c.Fetch.ChunkCount = 0 }},
		{"bad threshold", func(c *Config) { c.Fetch.LargeThreshold = "lots" }},
		{"floor above max", func(c *Config) { c.Memory.FloorMB = 4096 }},
		{"initial above floor", func(c *Config) { c.Memory.InitialMB = 1024 }},
		{"negative restarts", func(c *Config) { c.Restart.MaxAttempts = -1 }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, errors.InvalidInput(errors.PhaseConfig, "")) {
				t.Errorf("Validate = %v", err)
			}
		})
	}
}
