package bridge

import (
	"context"
	"net/http"
	"regexp"
	"time"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/capability"
	"github.com/wippyai/engine-bridge/engine"
	"github.com/wippyai/engine-bridge/fetch"
	"github.com/wippyai/engine-bridge/transport"
	"github.com/wippyai/engine-bridge/variant"
)

const (
	DefaultAssetName    = "rapfi.data"
	DefaultRestartDelay = 500 * time.Millisecond
	DefaultMaxRestarts  = 5
	DefaultReadyTimeout = 2 * time.Minute
)

// DefaultAssetPattern matches every name an engine build may request for
// the data asset.
var DefaultAssetPattern = regexp.MustCompile(`^rapfi.*\.data$`)

// Config configures a Bridge.
type Config struct {
	Layout variant.Layout

	// DataURL is a direct (CDN) URL for the data asset. When set, the full
	// tier preloads the asset with the chunked fetcher before the engine
	// starts in-process.
	DataURL      string
	AssetName    string
	AssetPattern *regexp.Regexp

	Fetch  fetch.Options
	Memory engine.MemoryBudget

	RestartDelay time.Duration
	// MaxRestarts bounds consecutive automatic restarts after faults. Zero
	// restarts forever.
	MaxRestarts int
	// ReadyTimeout faults a session that has not signalled readiness in
	// time. Zero disables it.
	ReadyTimeout time.Duration
	StopCommand  string

	Capabilities capability.Options
	// Spawner starts isolated workers; nil runs this executable's worker
	// command.
	Spawner transport.Spawner
}

// DefaultConfig returns a configuration serving artifacts from baseURL
// with the conventional build/ and build/fallback/ directories.
func DefaultConfig(baseURL string) Config {
	return Config{
		Layout: variant.Layout{
			BaseURL:    baseURL,
			FullDir:    "build/",
			ReducedDir: "build/fallback/",
		},
		AssetName:    DefaultAssetName,
		AssetPattern: DefaultAssetPattern,
		Memory:       engine.DefaultMemoryBudget(),
		RestartDelay: DefaultRestartDelay,
		MaxRestarts:  DefaultMaxRestarts,
		ReadyTimeout: DefaultReadyTimeout,
		StopCommand:  transport.DefaultStopCommand,
	}
}

// Prober reports host capabilities.
type Prober interface {
	Probe(ctx context.Context) enginebridge.Capabilities
}

// Option customizes a Bridge.
type Option func(*Bridge)

// WithProber replaces capability detection.
func WithProber(p Prober) Option {
	return func(b *Bridge) { b.prober = p }
}

// WithChecker replaces the artifact existence check.
func WithChecker(c variant.Checker) Option {
	return func(b *Bridge) { b.checker = c }
}

// WithCache shares an asset cache between bridges.
func WithCache(c *fetch.Cache) Option {
	return func(b *Bridge) { b.cache = c }
}

// WithHTTPClient routes every request of the bridge through client.
func WithHTTPClient(client *http.Client) Option {
	return func(b *Bridge) {
		b.cfg.Fetch.Client = client
		if b.checker == nil {
			b.checker = &variant.HTTPChecker{Client: client}
		}
	}
}
