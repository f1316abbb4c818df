package engine

import (
	"context"
	"crypto/rand"
	"io"
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/engine-bridge/errors"
)

// StartFunction is the WASI command entry point.
const StartFunction = "_start"

// WazeroEngine wraps a wazero runtime configured for one engine build.
type WazeroEngine struct {
	runtime      wazero.Runtime
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 8192 = 512MB, 32768 = 2GB
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal (experimental).
	// This allows atomic operations and shared memory within WASM modules.
	EnableThreads bool
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.EnableThreads {
			runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
		}
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return &WazeroEngine{runtime: runtime}, nil
}

// LoadModule compiles an engine module.
func (e *WazeroEngine) LoadModule(ctx context.Context, wasmBytes []byte) (*WazeroModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile engine module", err)
	}
	return &WazeroModule{engine: e, compiled: compiled}, nil
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// InitWASI instantiates the WASI host modules for this engine's runtime.
// Safe for concurrent calls.
func (e *WazeroEngine) InitWASI(ctx context.Context) error {
	if e.wasiInitDone.Load() {
		return nil
	}

	e.wasiInitMu.Lock()
	defer e.wasiInitMu.Unlock()

	if e.wasiInitDone.Load() {
		return nil
	}

	if _, err := InstantiateWASI(ctx, e.runtime); err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, err, "instantiate WASI")
	}

	e.wasiInitDone.Store(true)
	return nil
}

// WazeroModule is a compiled engine module
type WazeroModule struct {
	engine   *WazeroEngine
	compiled wazero.CompiledModule
}

// Imports lists the module's function imports as "module.name".
func (m *WazeroModule) Imports() []string {
	defs := m.compiled.ImportedFunctions()
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		mod, name, _ := d.Import()
		names = append(names, mod+"."+name)
	}
	return names
}

// InstanceConfig holds configuration for module instantiation
type InstanceConfig struct {
	Name   string
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// FS is mounted at the guest's root directory.
	FS fs.FS
}

// Instantiate links the module against WASI without running it.
func (m *WazeroModule) Instantiate(ctx context.Context, cfg *InstanceConfig) (*WazeroInstance, error) {
	if err := m.engine.InitWASI(ctx); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &InstanceConfig{}
	}

	modConfig := wazero.NewModuleConfig().
		WithName(cfg.Name).
		WithStartFunctions().
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader)

	if len(cfg.Args) > 0 {
		modConfig = modConfig.WithArgs(cfg.Args...)
	}
	if cfg.Stdin != nil {
		modConfig = modConfig.WithStdin(cfg.Stdin)
	}
	if cfg.Stdout != nil {
		modConfig = modConfig.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		modConfig = modConfig.WithStderr(cfg.Stderr)
	}
	if cfg.FS != nil {
		modConfig = modConfig.WithFSConfig(wazero.NewFSConfig().WithFSMount(cfg.FS, "/"))
	}

	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	return &WazeroInstance{module: mod}, nil
}

// WazeroInstance is an instantiated engine module
type WazeroInstance struct {
	module api.Module
}

// Run calls _start and blocks until the engine returns or exits. A WASI
// proc_exit is reported as its exit code with a nil error.
func (i *WazeroInstance) Run(ctx context.Context) (uint32, error) {
	start := i.module.ExportedFunction(StartFunction)
	if start == nil {
		return 0, errors.NotFound(errors.PhaseRuntime, "export", StartFunction)
	}

	_, err := start.Call(ctx)
	if err == nil {
		return 0, nil
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		Logger().Debug("engine exited", zap.Uint32("code", exitErr.ExitCode()))
		return exitErr.ExitCode(), nil
	}
	return 1, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidData, err, "engine trapped")
}

// MemorySize returns the size of the instance's memory in bytes.
func (i *WazeroInstance) MemorySize() uint32 {
	if mem := i.module.Memory(); mem != nil {
		return mem.Size()
	}
	return 0
}

func (i *WazeroInstance) Close(ctx context.Context) error {
	return i.module.Close(ctx)
}
