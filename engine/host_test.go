package engine

import (
	"context"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/wippyai/engine-bridge/errors"
	"github.com/wippyai/engine-bridge/internal/testengine"
)

type recorder struct {
	mu     sync.Mutex
	stdout []string
	status []string
	exit   chan uint32
}

func newRecorder() *recorder {
	return &recorder{exit: make(chan uint32, 1)}
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		Stdout: func(s string) { r.mu.Lock(); r.stdout = append(r.stdout, s); r.mu.Unlock() },
		Status: func(s string) { r.mu.Lock(); r.status = append(r.status, s); r.mu.Unlock() },
		Exit:   func(code uint32) { r.exit <- code },
	}
}

func (r *recorder) lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stdout...)
}

func waitLines(t *testing.T, r *recorder, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if l := r.lines(); len(l) >= n {
			return l
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines, got %q", n, r.lines())
	return nil
}

func TestHost_EchoRoundTrip(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()

	h, err := Start(ctx, testengine.Echo(), HostConfig{
		MaxMemoryMB: 64,
		FS:          fstest.MapFS{"rapfi.data": {Data: []byte("weights")}},
		Hooks:       rec.hooks(),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	cmds := []string{"INFO DEPTH 12", "FORBID 07080910.", "MESSAGE REALTIME START 3,4"}
	for _, c := range cmds {
		if err := h.Send(c); err != nil {
			t.Fatalf("Send(%q): %v", c, err)
		}
	}

	got := waitLines(t, rec, len(cmds))
	for i, c := range cmds {
		if got[i] != c {
			t.Errorf("line %d = %q, want %q", i, got[i], c)
		}
	}

	if err := h.Close(ctx); err != nil {
		t.Errorf("Close: %v", err)
	}
	select {
	case code := <-rec.exit:
		if code != 0 {
			t.Errorf("exit code = %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("exit hook not called")
	}

	if err := h.Send("after close"); !errors.Is(err, errors.Closed(errors.PhaseTransport, "")) {
		t.Errorf("Send after Close = %v", err)
	}
	if err := h.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.status) != 2 || rec.status[0] != "Compiling..." || rec.status[1] != "Running..." {
		t.Errorf("status = %q", rec.status)
	}
}

func TestHost_ExitCode(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()

	h, err := Start(ctx, testengine.Exit(3), HostConfig{Hooks: rec.hooks()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not exit")
	}
	if h.ExitCode() != 3 {
		t.Errorf("ExitCode = %d", h.ExitCode())
	}
	if code := <-rec.exit; code != 3 {
		t.Errorf("exit hook code = %d", code)
	}
	h.Close(ctx)
}

func TestHost_StartFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		bin  []byte
		want *errors.Error
	}{
		{"invalid module", []byte{0, 'a', 's', 'm'}, errors.Load("", nil)},
		{"unresolved import", testengine.NeedsImport(), errors.Instantiation(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Start(ctx, tt.bin, HostConfig{Threads: true})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHost_CloseTimeout(t *testing.T) {
	h, err := Start(context.Background(), testengine.Echo(), HostConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.Close(ctx); err != nil {
		t.Errorf("Close: %v", err)
	}
	select {
	case <-h.Done():
	default:
		t.Error("Done not closed after Close")
	}
}
