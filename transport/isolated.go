package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/engine-bridge/errors"
	"github.com/wippyai/engine-bridge/protocol"
)

// IsolatedConfig configures an isolated engine.
type IsolatedConfig struct {
	Spawner Spawner
	Script  protocol.ScriptURL
	Events  Events
}

// Isolated talks to an engine running in a worker.
type Isolated struct {
	worker     Worker
	enc        *protocol.Encoder
	events     Events
	terminated atomic.Bool
	done       chan struct{}
	closeOnce  sync.Once
}

// NewIsolated spawns a worker and asks it to boot the engine. Readiness
// and output arrive later through Events; a broken channel is reported to
// Events.Fault.
func NewIsolated(ctx context.Context, cfg IsolatedConfig) (*Isolated, error) {
	spawner := cfg.Spawner
	if spawner == nil {
		spawner = ProcessSpawner{}
	}

	worker, err := spawner.Spawn(ctx)
	if err != nil {
		return nil, err
	}

	t := &Isolated{
		worker: worker,
		enc:    protocol.NewEncoder(worker),
		events: cfg.Events,
		done:   make(chan struct{}),
	}
	go t.readLoop()

	if err := t.enc.Send(protocol.MsgEngineScriptURL, cfg.Script); err != nil {
		t.terminate()
		return nil, errors.Wrap(errors.PhaseTransport, errors.KindClosed, err, "post engine script")
	}

	Logger().Info("isolated engine starting", zap.String("url", cfg.Script.EngineURL))
	return t, nil
}

func (t *Isolated) readLoop() {
	defer close(t.done)
	dec := protocol.NewDecoder(t.worker)

	for {
		msg, err := dec.Decode()
		if err != nil {
			if !t.terminated.Load() {
				Logger().Error("worker channel failed", zap.Error(err))
				t.events.fault(errors.Wrap(errors.PhaseTransport, errors.KindClosed, err, "worker channel"))
			}
			return
		}
		if t.terminated.Load() {
			return
		}
		t.dispatch(msg)
	}
}

func (t *Isolated) dispatch(msg protocol.Message) {
	switch msg.Type {
	case protocol.MsgStdout, protocol.MsgStderr, protocol.MsgStatus:
		var s string
		if err := msg.Unmarshal(&s); err != nil {
			Logger().Warn("malformed worker message", zap.String("type", string(msg.Type)), zap.Error(err))
			return
		}
		switch msg.Type {
		case protocol.MsgStdout:
			t.events.stdout(s)
		case protocol.MsgStderr:
			t.events.stderr(s)
		default:
			t.events.status(s)
		}
	case protocol.MsgExit:
		var code uint32
		if err := msg.Unmarshal(&code); err != nil {
			Logger().Warn("malformed exit message", zap.Error(err))
			return
		}
		t.events.exit(code)
	case protocol.MsgReady:
		t.events.ready()
	default:
		Logger().Error("received unknown message from worker", zap.String("type", string(msg.Type)))
	}
}

func (t *Isolated) Mode() Mode { return ModeIsolated }

// Send posts a command message. Commands to a terminated worker are
// dropped.
func (t *Isolated) Send(cmd string) {
	if t.terminated.Load() {
		return
	}
	if err := t.enc.Send(protocol.MsgCommand, cmd); err != nil {
		Logger().Debug("command dropped", zap.String("cmd", cmd), zap.Error(err))
	}
}

// Stop kills the worker. The caller must replace the transport.
func (t *Isolated) Stop() bool {
	t.terminate()
	return true
}

func (t *Isolated) Close(ctx context.Context) error {
	t.terminate()
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return errors.Timeout(errors.PhaseTransport, "worker shutdown")
	}
}

func (t *Isolated) terminate() {
	t.closeOnce.Do(func() {
		t.terminated.Store(true)
		if err := t.worker.Terminate(); err != nil {
			Logger().Debug("worker terminate", zap.Error(err))
		}
	})
}
