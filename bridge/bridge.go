// Package bridge boots the engine and keeps exactly one engine session
// alive.
//
// Init probes the host, resolves the engine build, preloads the data asset
// when the in-process path will use it, and starts a transport. Engine
// output is decoded into protocol events and delivered to a Sink in engine
// order. A faulted session is torn down and the whole bootstrap runs again
// after a fixed delay, up to a configured number of times.
//
// Session states:
//
//	Uninitialized -> Bootstrapping   Init
//	Bootstrapping -> Ready           engine signalled readiness
//	Bootstrapping -> Faulted         load failure or readiness timeout
//	Ready         -> Faulted         isolated worker died
//	Ready         -> Stopping        forced Stop or Close
//	Faulted       -> Bootstrapping   restart after the delay
//	Faulted       -> Terminated      restarts exhausted
//	Stopping      -> Bootstrapping   re-init after a forced Stop
//	Stopping      -> Terminated      Close
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/capability"
	"github.com/wippyai/engine-bridge/engine"
	"github.com/wippyai/engine-bridge/errors"
	"github.com/wippyai/engine-bridge/fetch"
	"github.com/wippyai/engine-bridge/protocol"
	"github.com/wippyai/engine-bridge/transport"
	"github.com/wippyai/engine-bridge/variant"
)

// Bridge owns the engine session.
type Bridge struct {
	cfg      Config
	prober   Prober
	checker  variant.Checker
	cache    *fetch.Cache
	resolver *variant.Resolver
	fetcher  *fetch.Fetcher
	locator  *fetch.Locator

	newInProcess func(context.Context, transport.InProcessConfig) (transport.Transport, error)
	newIsolated  func(context.Context, transport.IsolatedConfig) (transport.Transport, error)

	mu       sync.Mutex
	state    State
	closed   bool
	sink     Sink
	tier     enginebridge.Tier
	sess     *session
	restarts int
	restart  *time.Timer

	// serializes sink delivery across transport goroutines
	emitMu sync.Mutex

	done     chan struct{}
	doneOnce sync.Once
}

// session is one bootstrap attempt and the transport it produced. Events
// from a session that is no longer current are dropped.
type session struct {
	id    string
	tr    transport.Transport
	ready bool
	// ready arrived before the transport was installed
	pendingReady bool
	status       protocol.StatusDecoder
	timer        *time.Timer
}

func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

// New creates a bridge. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) *Bridge {
	if cfg.AssetName == "" {
		cfg.AssetName = DefaultAssetName
	}
	if cfg.AssetPattern == nil {
		cfg.AssetPattern = DefaultAssetPattern
	}
	if cfg.StopCommand == "" {
		cfg.StopCommand = transport.DefaultStopCommand
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.Memory.MaxMB == 0 {
		available := cfg.Memory.Available
		cfg.Memory = engine.DefaultMemoryBudget()
		cfg.Memory.Available = available
	}

	b := &Bridge{cfg: cfg, done: make(chan struct{})}
	for _, opt := range opts {
		opt(b)
	}

	if b.prober == nil {
		b.prober = capability.New(b.cfg.Capabilities)
	}
	if b.cache == nil {
		b.cache = fetch.NewCache(b.cfg.AssetName)
	}
	b.resolver = variant.NewResolver(b.cfg.Layout, b.checker)
	b.fetcher = fetch.New(b.cache, b.cfg.Fetch)
	b.locator = &fetch.Locator{
		Pattern:   b.cfg.AssetPattern,
		Canonical: b.cfg.AssetName,
		CDNURL:    b.cfg.DataURL,
		Cache:     b.cache,
	}
	b.newInProcess = func(ctx context.Context, c transport.InProcessConfig) (transport.Transport, error) {
		t, err := transport.NewInProcess(ctx, c)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	b.newIsolated = func(ctx context.Context, c transport.IsolatedConfig) (transport.Transport, error) {
		t, err := transport.NewIsolated(ctx, c)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return b
}

// Init boots the engine at the given quality tier and returns the URL of
// the engine module that was started. Any previous session is released
// first. Readiness is reported to sink as an ok event; in-process engines
// are ready when Init returns, isolated ones later.
//
// The only error is a failed data asset preload, after which the bridge
// is Faulted and does not retry on its own.
func (b *Bridge) Init(ctx context.Context, sink Sink, tier enginebridge.Tier) (string, error) {
	if sink == nil {
		sink = SinkFunc(func(protocol.Event) {})
	}

	b.mu.Lock()
	if b.closed || b.state == StateTerminated {
		b.mu.Unlock()
		return "", errors.Closed(errors.PhaseTransport, "bridge")
	}
	prev := b.detachLocked()
	b.sink = sink
	b.tier = tier
	b.restarts = 0
	b.state = StateBootstrapping
	sess := b.newSessionLocked()
	b.mu.Unlock()

	if prev != nil {
		if err := prev.Close(ctx); err != nil {
			Logger().Warn("releasing previous engine", zap.Error(err))
		}
	}

	url, err := b.bootstrap(ctx, sess)
	if err != nil {
		b.mu.Lock()
		if b.sess == sess {
			b.detachLocked()
			b.state = StateFaulted
		}
		b.mu.Unlock()
		return "", err
	}
	return url, nil
}

// Send routes a command to the active engine. An isolated engine that is
// still booting queues it behind its boot. Empty commands and commands
// sent while no engine is attached, as between a forced stop and the next
// boot, are dropped.
func (b *Bridge) Send(cmd string) {
	if cmd == "" {
		return
	}

	b.mu.Lock()
	var tr transport.Transport
	if (b.state == StateReady || b.state == StateBootstrapping) && b.sess != nil {
		tr = b.sess.tr
	}
	b.mu.Unlock()

	if tr == nil {
		Logger().Debug("command dropped, no engine attached", zap.String("cmd", cmd))
		return
	}
	tr.Send(cmd)
}

// Stop halts the engine's current search. An in-process engine is asked
// to stop and Stop returns false. An isolated engine is killed and booted
// again, and Stop returns true.
func (b *Bridge) Stop() bool {
	b.mu.Lock()
	sess := b.sess
	if b.state != StateReady || sess == nil || sess.tr == nil {
		b.mu.Unlock()
		return false
	}
	tr := sess.tr
	if tr.Mode() == transport.ModeInProcess {
		b.mu.Unlock()
		return tr.Stop()
	}

	b.state = StateStopping
	b.detachLocked()
	b.restarts = 0
	b.mu.Unlock()

	forced := tr.Stop()
	go b.closeTransport(tr)
	go b.reboot(StateStopping)
	return forced
}

// Close releases the engine. A closed bridge, like one that ran out of
// restarts, cannot be initialized again.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.state = StateStopping
	tr := b.detachLocked()
	b.mu.Unlock()

	var err error
	if tr != nil {
		err = tr.Close(ctx)
	}

	b.mu.Lock()
	b.state = StateTerminated
	b.mu.Unlock()
	b.terminated()
	return err
}

// Done is closed once the bridge is Terminated, by Close or after it gave
// up restarting. The final error event, if any, is delivered first.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

func (b *Bridge) terminated() {
	b.doneOnce.Do(func() { close(b.done) })
}

// State returns the current session state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SessionID identifies the current session; empty when there is none.
func (b *Bridge) SessionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sess == nil {
		return ""
	}
	return b.sess.id
}

// Mode returns the transport mode of the ready engine.
func (b *Bridge) Mode() (transport.Mode, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateReady || b.sess == nil || b.sess.tr == nil {
		return 0, false
	}
	return b.sess.tr.Mode(), true
}

// Cache returns the asset cache.
func (b *Bridge) Cache() *fetch.Cache {
	return b.cache
}

func (b *Bridge) newSessionLocked() *session {
	sess := &session{id: uuid.NewString()}
	b.sess = sess
	return sess
}

// detachLocked drops the current session and any pending restart and
// returns the transport the caller must release.
func (b *Bridge) detachLocked() transport.Transport {
	if b.restart != nil {
		b.restart.Stop()
		b.restart = nil
	}
	sess := b.sess
	if sess == nil {
		return nil
	}
	b.sess = nil
	sess.stopTimer()
	return sess.tr
}

func (b *Bridge) current(sess *session) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess == sess
}

func (b *Bridge) bootstrap(ctx context.Context, sess *session) (string, error) {
	caps := b.prober.Probe(ctx)

	b.mu.Lock()
	tier := b.tier
	b.mu.Unlock()

	// only the in-process engine can read the preloaded asset
	if tier == enginebridge.TierFull && b.cfg.DataURL != "" && caps.ParallelExec {
		if err := b.preload(ctx); err != nil {
			Logger().Error("data asset preload failed", zap.String("url", b.cfg.DataURL), zap.Error(err))
			return "", err
		}
	}

	target := b.resolver.Resolve(ctx, caps, tier)
	Logger().Info("engine resolved",
		zap.String("session", sess.id),
		zap.Stringer("caps", caps),
		zap.Stringer("tier", tier),
		zap.String("variant", target.VariantID),
		zap.String("url", target.ArtifactURL),
	)

	if !b.arm(sess) {
		return target.ArtifactURL, nil
	}

	if target.UseParallelExec {
		tr, err := b.newInProcess(ctx, transport.InProcessConfig{
			ArtifactURL: target.ArtifactURL,
			Fetcher:     b.fetcher,
			Locator:     b.locator,
			Budget:      b.cfg.Memory,
			StopCommand: b.cfg.StopCommand,
			Events:      b.events(sess),
		})
		if err == nil {
			b.install(sess, tr)
			return target.ArtifactURL, nil
		}

		url := b.cfg.Layout.ArtifactURL(enginebridge.TierReduced, variant.Terminal().ID)
		Logger().Warn("in-process engine failed, falling back to isolated",
			zap.String("session", sess.id), zap.String("fallback", url), zap.Error(err))
		sess.status.Reset()
		b.startIsolated(ctx, sess, url)
		return url, nil
	}

	b.startIsolated(ctx, sess, target.ArtifactURL)
	return target.ArtifactURL, nil
}

// arm starts the readiness timeout. It reports false when sess was
// replaced while probing.
func (b *Bridge) arm(sess *session) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sess != sess {
		return false
	}
	if b.cfg.ReadyTimeout > 0 {
		sess.timer = time.AfterFunc(b.cfg.ReadyTimeout, func() {
			b.faultUnlessReady(sess, errors.Timeout(errors.PhaseTransport, "engine readiness"), true)
		})
	}
	return true
}

func (b *Bridge) preload(ctx context.Context) error {
	last := int64(-1)
	_, err := b.fetcher.Fetch(ctx, b.cfg.DataURL, func(loaded, total int64) {
		if total <= 0 {
			return
		}
		pct := loaded * 100 / total
		if pct == last && loaded != total {
			return
		}
		last = pct
		b.emit(protocol.Progress(loaded, total))
	})
	return err
}

func (b *Bridge) startIsolated(ctx context.Context, sess *session, url string) {
	// the worker cannot read this process's cache
	data := b.locator.Remote(b.cfg.AssetName, fetch.DirOf(url)).URL

	tr, err := b.newIsolated(ctx, transport.IsolatedConfig{
		Spawner: b.cfg.Spawner,
		Script: protocol.ScriptURL{
			EngineURL:  url,
			DataURL:    data,
			MemoryArgs: protocol.NewMemoryArgs(b.cfg.Memory.InitialMB, b.cfg.Memory.MaxMB, false),
		},
		Events: b.events(sess),
	})
	if err != nil {
		b.fault(sess, err)
		return
	}
	b.install(sess, tr)
}

func (b *Bridge) install(sess *session, tr transport.Transport) {
	b.mu.Lock()
	if b.sess != sess {
		b.mu.Unlock()
		Logger().Debug("session replaced during bootstrap", zap.String("session", sess.id))
		go b.closeTransport(tr)
		return
	}
	sess.tr = tr
	pending := sess.pendingReady
	b.mu.Unlock()

	if pending {
		b.onReady(sess)
	}
}

func (b *Bridge) events(sess *session) transport.Events {
	return transport.Events{
		Stdout: func(line string) {
			if !b.current(sess) {
				return
			}
			if ev, ok := protocol.Decode(line); ok {
				b.emit(ev)
			}
		},
		Stderr: func(line string) {
			Logger().Warn("engine stderr", zap.String("session", sess.id), zap.String("line", line))
		},
		Exit: func(code uint32) {
			Logger().Info("engine exited", zap.String("session", sess.id), zap.Uint32("code", code))
		},
		Status: func(status string) {
			if !b.current(sess) {
				return
			}
			Logger().Debug("engine status", zap.String("session", sess.id), zap.String("status", status))
			if ev, ok := sess.status.Decode(status); ok {
				b.emit(ev)
			}
		},
		Ready: func() { b.onReady(sess) },
		Fault: func(err error) { b.fault(sess, err) },
	}
}

func (b *Bridge) onReady(sess *session) {
	b.mu.Lock()
	if b.sess != sess || sess.ready {
		b.mu.Unlock()
		return
	}
	if sess.tr == nil {
		sess.pendingReady = true
		b.restarts = 0
		b.mu.Unlock()
		return
	}
	sess.ready = true
	sess.stopTimer()
	b.state = StateReady
	b.restarts = 0
	mode := sess.tr.Mode()
	b.mu.Unlock()

	sess.status.MarkLoaded()
	Logger().Info("engine ready", zap.String("session", sess.id), zap.Stringer("mode", mode))
	b.emit(protocol.Ready())
}

// fault tears down sess and schedules a restart, or gives up once the
// restart budget is spent.
func (b *Bridge) fault(sess *session, cause error) {
	b.faultUnlessReady(sess, cause, false)
}

func (b *Bridge) faultUnlessReady(sess *session, cause error, unlessReady bool) {
	b.mu.Lock()
	if b.sess != sess || (unlessReady && sess.ready) {
		b.mu.Unlock()
		return
	}
	tr := b.detachLocked()
	b.restarts++
	attempts := b.restarts
	exhausted := b.cfg.MaxRestarts > 0 && attempts > b.cfg.MaxRestarts
	if exhausted {
		b.state = StateTerminated
	} else {
		b.state = StateFaulted
		b.restart = time.AfterFunc(b.cfg.RestartDelay, func() { b.reboot(StateFaulted) })
	}
	b.mu.Unlock()

	if tr != nil {
		go b.closeTransport(tr)
	}

	if exhausted {
		err := errors.Exhausted(errors.PhaseTransport, b.cfg.MaxRestarts, cause)
		Logger().Error("engine restarts exhausted", zap.String("session", sess.id), zap.Error(err))
		b.emit(protocol.Failure(err))
		b.terminated()
		return
	}
	Logger().Warn("engine session faulted, restarting",
		zap.String("session", sess.id),
		zap.Int("attempt", attempts),
		zap.Duration("delay", b.cfg.RestartDelay),
		zap.Error(cause),
	)
}

// reboot runs a fresh bootstrap if the bridge is still in state from.
func (b *Bridge) reboot(from State) {
	b.mu.Lock()
	if b.closed || b.state != from {
		b.mu.Unlock()
		return
	}
	b.restart = nil
	b.state = StateBootstrapping
	sess := b.newSessionLocked()
	b.mu.Unlock()

	if _, err := b.bootstrap(context.Background(), sess); err != nil {
		b.fault(sess, err)
	}
}

func (b *Bridge) closeTransport(tr transport.Transport) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Close(ctx); err != nil {
		Logger().Debug("closing transport", zap.Error(err))
	}
}

func (b *Bridge) emit(ev protocol.Event) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	sink := b.sink
	b.mu.Unlock()
	if sink != nil {
		sink.Emit(ev)
	}
}
