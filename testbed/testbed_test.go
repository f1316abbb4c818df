// Package testbed runs the bridge end to end against an artifact server
// that hosts hand-built echo engines in place of the real builds.
package testbed

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/bridge"
	"github.com/wippyai/engine-bridge/internal/testengine"
	"github.com/wippyai/engine-bridge/protocol"
	"github.com/wippyai/engine-bridge/transport"
)

type fixedProber enginebridge.Capabilities

func (p fixedProber) Probe(context.Context) enginebridge.Capabilities {
	return enginebridge.Capabilities(p)
}

var (
	capsFast = enginebridge.Capabilities{ParallelExec: true, VectorOps: true}
	capsNone = enginebridge.Capabilities{}
)

// site serves files with range support and counts GETs per path.
type site struct {
	*httptest.Server
	files map[string][]byte
	gets  sync.Map
}

func newSite(t *testing.T, files map[string][]byte) *site {
	t.Helper()
	s := &site{files: files}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			n, _ := s.gets.LoadOrStore(r.URL.Path, new(atomic.Int32))
			n.(*atomic.Int32).Add(1)
		}
		data, ok := s.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, r.URL.Path, time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *site) count(path string) int32 {
	n, ok := s.gets.Load(path)
	if !ok {
		return 0
	}
	return n.(*atomic.Int32).Load()
}

// fullSite hosts every build in both tiers plus a copy of the data asset
// next to each tier and on a separate CDN path.
func fullSite(t *testing.T, asset []byte) *site {
	files := map[string][]byte{"/cdn/rapfi.data": asset}
	for _, dir := range []string{"/build/", "/build/fallback/"} {
		for _, id := range []string{"rapfi-multi-simd128", "rapfi-multi", "rapfi-single-simd128", "rapfi-single"} {
			files[dir+id+".wasm"] = testengine.Echo()
		}
		files[dir+"rapfi.data"] = asset
	}
	return newSite(t, files)
}

// events collects sink output as JSON lines.
type events struct {
	mu  sync.Mutex
	all []string
}

func (e *events) Emit(ev protocol.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		b = []byte(err.Error())
	}
	e.mu.Lock()
	e.all = append(e.all, string(b))
	e.mu.Unlock()
}

func (e *events) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.all...)
}

func (e *events) count(match func(string) bool) int {
	n := 0
	for _, s := range e.snapshot() {
		if match(s) {
			n++
		}
	}
	return n
}

func (e *events) waitFor(t *testing.T, want string, n int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if e.count(func(s string) bool { return s == want }) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d x %s, have %q", n, want, e.snapshot())
}

func (e *events) waitPrefix(t *testing.T, prefix string) string {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		for _, s := range e.snapshot() {
			if strings.HasPrefix(s, prefix) {
				return s
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s..., have %q", prefix, e.snapshot())
	return ""
}

func newBridge(s *site, caps enginebridge.Capabilities, mutate func(*bridge.Config)) *bridge.Bridge {
	cfg := bridge.DefaultConfig(s.URL + "/")
	cfg.Memory.Available = func() (uint64, error) { return 1 << 40, nil }
	cfg.Spawner = transport.LocalSpawner{}
	cfg.RestartDelay = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	return bridge.New(cfg, bridge.WithProber(fixedProber(caps)))
}

func TestInProcess_PreloadedFromCDN(t *testing.T) {
	asset := bytes.Repeat([]byte("rapfi"), 4096)
	s := fullSite(t, asset)
	b := newBridge(s, capsFast, func(c *bridge.Config) { c.DataURL = s.URL + "/cdn/rapfi.data" })
	defer b.Close(context.Background())

	var ev events
	url, err := b.Init(context.Background(), &ev, enginebridge.TierFull)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if want := s.URL + "/build/rapfi-multi-simd128.wasm"; url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
	if mode, ok := b.Mode(); !ok || mode != transport.ModeInProcess {
		t.Fatalf("mode = %v, %v", mode, ok)
	}
	ev.waitFor(t, `{"ok":true}`, 1)

	b.Send("INFO DEPTH 12")
	ev.waitFor(t, `{"depth":12}`, 1)
	b.Send("MESSAGE hello world")
	ev.waitFor(t, `{"msg":"hello world"}`, 1)
	b.Send("FORBID 0102")
	ev.waitFor(t, `{"forbid":[[1,2]]}`, 1)

	if b.Stop() {
		t.Error("in-process Stop reported a forced stop")
	}
	ev.waitFor(t, `{"unknown":"YXSTOP"}`, 1)

	if n := s.count("/cdn/rapfi.data"); n == 0 {
		t.Error("data asset was not preloaded from the CDN")
	}
	if n := s.count("/build/rapfi.data"); n != 0 {
		t.Errorf("engine directory asset requested %d times", n)
	}
	if b.State() != bridge.StateReady {
		t.Errorf("state = %v", b.State())
	}
}

func TestIsolated_ReducedTier(t *testing.T) {
	s := fullSite(t, bytes.Repeat([]byte{7}, 10000))
	b := newBridge(s, capsNone, nil)

	var ev events
	url, err := b.Init(context.Background(), &ev, enginebridge.TierReduced)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if want := s.URL + "/build/fallback/rapfi-single.wasm"; url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
	ev.waitFor(t, `{"ok":true}`, 1)
	if mode, _ := b.Mode(); mode != transport.ModeIsolated {
		t.Errorf("mode = %v", mode)
	}
	if ev.count(func(s string) bool { return strings.HasPrefix(s, `{"loading":`) }) == 0 {
		t.Error("no loading progress before ready")
	}
	if n := s.count("/build/fallback/rapfi.data"); n != 1 {
		t.Errorf("worker fetched the data asset %d times", n)
	}

	b.Send("SWAP")
	ev.waitFor(t, `{"swap":true}`, 1)
	b.Send("INFO WINRATE 0.5")
	ev.waitFor(t, `{"winrate":0.5}`, 1)

	if !b.Stop() {
		t.Error("isolated Stop did not report a forced stop")
	}
	// the worker is replaced by a fresh one
	ev.waitFor(t, `{"ok":true}`, 2)
	b.Send("MESSAGE again")
	ev.waitFor(t, `{"msg":"again"}`, 1)

	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if b.State() != bridge.StateTerminated {
		t.Errorf("state after Close = %v", b.State())
	}
}

func TestDowngrade_WhenMemoryIsShort(t *testing.T) {
	s := fullSite(t, []byte("data"))
	b := newBridge(s, capsFast, func(c *bridge.Config) {
		c.Memory.Available = func() (uint64, error) { return 0, nil }
	})
	defer b.Close(context.Background())

	var ev events
	url, err := b.Init(context.Background(), &ev, enginebridge.TierFull)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if want := s.URL + "/build/fallback/rapfi-single.wasm"; url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
	ev.waitFor(t, `{"ok":true}`, 1)
	if mode, _ := b.Mode(); mode != transport.ModeIsolated {
		t.Errorf("mode = %v", mode)
	}
	b.Send("INFO NODES 42")
	ev.waitFor(t, `{"nodes":42}`, 1)
}

func TestRestart_GivesUpWithoutEngine(t *testing.T) {
	// no builds at all: every worker fails to download its engine
	s := newSite(t, map[string][]byte{"/build/fallback/rapfi.data": []byte("data")})
	b := newBridge(s, capsNone, func(c *bridge.Config) { c.MaxRestarts = 1 })
	defer b.Close(context.Background())

	var ev events
	if _, err := b.Init(context.Background(), &ev, enginebridge.TierReduced); err != nil {
		t.Fatalf("Init: %v", err)
	}
	msg := ev.waitPrefix(t, `{"error":`)
	if !strings.Contains(msg, "gave up after 1 restart attempts") {
		t.Errorf("error event = %s", msg)
	}
	if n := s.count("/build/fallback/rapfi-single.wasm"); n != 2 {
		t.Errorf("engine requested %d times, want 2", n)
	}
	if b.State() != bridge.StateTerminated {
		t.Errorf("state = %v", b.State())
	}
	if _, err := b.Init(context.Background(), &ev, enginebridge.TierReduced); err == nil {
		t.Error("Init after giving up succeeded")
	}
}
