package transport

import (
	"context"
	"io/fs"

	"go.uber.org/zap"

	"github.com/wippyai/engine-bridge/engine"
	"github.com/wippyai/engine-bridge/errors"
	"github.com/wippyai/engine-bridge/fetch"
	"github.com/wippyai/engine-bridge/protocol"
)

// DefaultStopCommand asks the engine to stop thinking.
const DefaultStopCommand = "YXSTOP"

// InProcessConfig configures an in-process engine.
type InProcessConfig struct {
	ArtifactURL string
	Fetcher     *fetch.Fetcher
	// Locator maps the data asset name to the cache or a URL.
	Locator     *fetch.Locator
	Budget      engine.MemoryBudget
	StopCommand string
	Events      Events
}

// InProcess runs the engine inside this process.
type InProcess struct {
	host        *engine.Host
	stopCommand string
}

// NewInProcess downloads, sizes and instantiates the engine. It returns
// once the engine is ready, after signalling Events.Ready.
func NewInProcess(ctx context.Context, cfg InProcessConfig) (*InProcess, error) {
	if cfg.Fetcher == nil {
		cfg.Fetcher = fetch.New(nil, fetch.Options{})
	}
	if cfg.StopCommand == "" {
		cfg.StopCommand = DefaultStopCommand
	}

	maxMB, err := cfg.Budget.Size()
	if err != nil {
		return nil, err
	}

	bin, err := cfg.Fetcher.Download(ctx, cfg.ArtifactURL, nil)
	if err != nil {
		return nil, errors.Load("download engine module", err)
	}

	fsys, err := dataFS(ctx, cfg)
	if err != nil {
		return nil, err
	}

	host, err := engine.Start(ctx, bin, engine.HostConfig{
		Threads:     true,
		MaxMemoryMB: maxMB,
		FS:          fsys,
		Hooks: engine.Hooks{
			Stdout: cfg.Events.stdout,
			Stderr: cfg.Events.stderr,
			Exit:   cfg.Events.exit,
			Status: cfg.Events.status,
		},
	})
	if err != nil {
		return nil, err
	}

	Logger().Info("in-process engine ready", zap.String("url", cfg.ArtifactURL), zap.Uint32("max_memory_mb", maxMB))
	cfg.Events.ready()
	return &InProcess{host: host, stopCommand: cfg.StopCommand}, nil
}

// dataFS resolves the data asset through the locator: the cache handle
// when populated, otherwise a download into memory.
func dataFS(ctx context.Context, cfg InProcessConfig) (fs.FS, error) {
	if cfg.Locator == nil || cfg.Locator.Canonical == "" {
		return nil, nil
	}

	loc := cfg.Locator.Locate(cfg.Locator.Canonical, fetch.DirOf(cfg.ArtifactURL))
	if loc.Cached() {
		return loc.FS, nil
	}

	cfg.Events.status(protocol.StatusDownloading)
	data, err := cfg.Fetcher.Download(ctx, loc.URL, statusProgress(cfg.Events.status))
	if err != nil {
		return nil, errors.Load("download data asset", err)
	}
	cache := fetch.NewCache(loc.Name)
	cache.Store(data)
	return cache.Handle()
}

func (t *InProcess) Mode() Mode { return ModeInProcess }

func (t *InProcess) Send(cmd string) {
	if err := t.host.Send(cmd); err != nil {
		Logger().Debug("command dropped", zap.String("cmd", cmd), zap.Error(err))
	}
}

// Stop sends the stop command; the engine halts on its own.
func (t *InProcess) Stop() bool {
	t.Send(t.stopCommand)
	return false
}

func (t *InProcess) Close(ctx context.Context) error {
	return t.host.Close(ctx)
}
