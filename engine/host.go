package engine

import (
	"context"
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/wippyai/engine-bridge/errors"
	"github.com/wippyai/engine-bridge/protocol"
)

// Hooks receive engine output. Each hook is called from a single goroutine
// per stream, in the order the engine produced the output. Nil hooks are
// skipped.
type Hooks struct {
	Stdout func(line string)
	Stderr func(line string)
	Exit   func(code uint32)
	Status func(status string)
}

func (h Hooks) status(s string) {
	if h.Status != nil {
		h.Status(s)
	}
}

// HostConfig configures one engine run.
type HostConfig struct {
	// Threads enables shared memory and atomics.
	Threads bool
	// MaxMemoryMB caps linear memory; zero leaves wazero's default.
	MaxMemoryMB uint32
	// FS is mounted at the guest root; the data asset lives here.
	FS    fs.FS
	Args  []string
	Hooks Hooks
}

// Host runs one engine instance.
type Host struct {
	engine   *WazeroEngine
	instance *WazeroInstance
	hooks    Hooks

	stdin  *commandQueue
	stdout *LineWriter
	stderr *LineWriter

	cancel   context.CancelFunc
	done     chan struct{}
	exitCode atomic.Uint32
	closed   atomic.Bool
	close    sync.Once
}

// Start compiles and instantiates bin, then runs its entry point in the
// background. An error means the engine could not be brought up; once
// Start returns, the engine is ready for commands.
func Start(ctx context.Context, bin []byte, cfg HostConfig) (*Host, error) {
	cfg.Hooks.status(protocol.StatusCompiling)

	eng, err := NewWazeroEngineWithConfig(ctx, &Config{
		MemoryLimitPages: Pages(cfg.MaxMemoryMB),
		EnableThreads:    cfg.Threads,
	})
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	mod, err := eng.LoadModule(ctx, bin)
	if err != nil {
		eng.Close(ctx)
		return nil, err
	}

	h := &Host{
		engine: eng,
		hooks:  cfg.Hooks,
		stdin:  newCommandQueue(),
		stdout: NewLineWriter(cfg.Hooks.Stdout),
		stderr: NewLineWriter(cfg.Hooks.Stderr),
		done:   make(chan struct{}),
	}

	inst, err := mod.Instantiate(ctx, &InstanceConfig{
		Args:   cfg.Args,
		Stdin:  h.stdin,
		Stdout: h.stdout,
		Stderr: h.stderr,
		FS:     cfg.FS,
	})
	if err != nil {
		eng.Close(ctx)
		return nil, err
	}
	h.instance = inst

	Logger().Info("engine instantiated",
		zap.Bool("threads", cfg.Threads),
		zap.String("memory", humanize.IBytes(uint64(inst.MemorySize()))),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel
	cfg.Hooks.status(protocol.StatusRunning)
	go h.run(runCtx)
	return h, nil
}

func (h *Host) run(ctx context.Context) {
	defer close(h.done)

	code, err := h.instance.Run(ctx)
	h.stdout.Flush()
	h.stderr.Flush()

	if err != nil && !h.closed.Load() {
		Logger().Warn("engine stopped with error", zap.Error(err))
	}
	h.exitCode.Store(code)
	Logger().Info("engine exited", zap.Uint32("code", code))
	if h.hooks.Exit != nil {
		h.hooks.Exit(code)
	}
}

// Send queues one command line. It never blocks on the engine.
func (h *Host) Send(cmd string) error {
	if !h.stdin.Push(cmd) {
		return errors.Closed(errors.PhaseTransport, "engine input")
	}
	return nil
}

// Done is closed once the engine's entry point returns.
func (h *Host) Done() <-chan struct{} {
	return h.done
}

// ExitCode is valid after Done is closed.
func (h *Host) ExitCode() uint32 {
	return h.exitCode.Load()
}

// Close ends the engine's input, waits for it to exit until ctx is done,
// then tears down the runtime.
func (h *Host) Close(ctx context.Context) error {
	var err error
	h.close.Do(func() {
		h.closed.Store(true)
		h.stdin.Close()

		select {
		case <-h.done:
		case <-ctx.Done():
			h.cancel()
			<-h.done
		}
		h.cancel()
		err = h.engine.Close(context.Background())
	})
	return err
}
