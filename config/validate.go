package config

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/dustin/go-humanize"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/errors"
)

func invalid(format string, args ...any) error {
	return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf(format, args...))
}

// Validate checks values that would otherwise fail deep inside a
// bootstrap.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("base_url must be an absolute URL, got %q", c.BaseURL)
	}
	if c.DataURL != "" {
		if u, err := url.Parse(c.DataURL); err != nil || u.Scheme == "" {
			return invalid("data_url must be an absolute URL, got %q", c.DataURL)
		}
	}
	if _, err := enginebridge.ParseTier(c.Tier); err != nil {
		return invalid("tier: %v", err)
	}
	if c.ReadyTimeout < 0 {
		return invalid("ready_timeout must be >= 0, got %s", c.ReadyTimeout)
	}
	if c.StopCommand == "" {
		return invalid("stop_command cannot be empty")
	}

	if c.Asset.Name == "" {
		return invalid("asset.name cannot be empty")
	}
	re, err := regexp.Compile(c.Asset.Pattern)
	if err != nil {
		return invalid("asset.pattern: %v", err)
	}
	if !re.MatchString(c.Asset.Name) {
		return invalid("asset.pattern %q does not match asset.name %q", c.Asset.Pattern, c.Asset.Name)
	}

	if c.Fetch.ChunkCount < 1 || c.Fetch.LargeChunkCount < 1 {
		return invalid("fetch chunk counts must be >= 1, got %d and %d", c.Fetch.ChunkCount, c.Fetch.LargeChunkCount)
	}
	if _, err := humanize.ParseBytes(c.Fetch.LargeThreshold); err != nil {
		return invalid("fetch.large_threshold: %v", err)
	}
	if c.Fetch.Timeout < 0 {
		return invalid("fetch.timeout must be >= 0, got %s", c.Fetch.Timeout)
	}

	if c.Memory.FloorMB == 0 || c.Memory.FloorMB > c.Memory.MaxMB {
		return invalid("memory.floor_mb must be in [1, max_mb], got %d", c.Memory.FloorMB)
	}
	if c.Memory.InitialMB > c.Memory.FloorMB {
		return invalid("memory.initial_mb must not exceed floor_mb, got %d", c.Memory.InitialMB)
	}

	if c.Restart.Delay < 0 {
		return invalid("restart.delay must be >= 0, got %s", c.Restart.Delay)
	}
	if c.Restart.MaxAttempts < 0 {
		return invalid("restart.max_attempts must be >= 0, got %d", c.Restart.MaxAttempts)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return invalid("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}
