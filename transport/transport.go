// Package transport runs the engine in one of two modes behind a single
// interface.
//
// InProcess hosts the engine in this process with shared memory and
// threads enabled. It is the fast path and needs the host to support
// parallel execution. Stop asks the engine to halt cooperatively.
//
// Isolated runs the engine in a worker reached only through a msgpack
// message stream (see protocol.Message). The worker is normally a child
// process running Serve; LocalSpawner runs Serve in-process over pipes.
// Stop kills the worker outright.
package transport

import (
	"context"
	"strconv"

	"github.com/wippyai/engine-bridge/fetch"
	"github.com/wippyai/engine-bridge/protocol"
)

// Mode is the execution strategy of a transport.
type Mode int

const (
	ModeInProcess Mode = iota
	ModeIsolated
)

func (m Mode) String() string {
	switch m {
	case ModeInProcess:
		return "in-process"
	case ModeIsolated:
		return "isolated"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Transport is a live engine. Send is fire-and-forget; output arrives
// through Events.
type Transport interface {
	Mode() Mode
	Send(cmd string)
	// Stop halts the current search. It reports true when the engine had to
	// be killed, in which case the transport is dead and must be replaced.
	Stop() bool
	Close(ctx context.Context) error
}

// Events receive raw engine output. A transport calls them from at most
// one goroutine at a time per stream and in engine order. Nil entries are
// skipped.
type Events struct {
	Stdout func(line string)
	Stderr func(line string)
	Exit   func(code uint32)
	Status func(status string)
	Ready  func()
	// Fault reports that the transport died unexpectedly.
	Fault func(err error)
}

func (e Events) stdout(s string) {
	if e.Stdout != nil {
		e.Stdout(s)
	}
}

func (e Events) stderr(s string) {
	if e.Stderr != nil {
		e.Stderr(s)
	}
}

func (e Events) exit(code uint32) {
	if e.Exit != nil {
		e.Exit(code)
	}
}

func (e Events) status(s string) {
	if e.Status != nil {
		e.Status(s)
	}
}

func (e Events) ready() {
	if e.Ready != nil {
		e.Ready()
	}
}

func (e Events) fault(err error) {
	if e.Fault != nil {
		e.Fault(err)
	}
}

// statusProgress turns download progress into "Downloading data... (n/m)"
// status strings, at most one per percent.
func statusProgress(report func(string)) fetch.ProgressFunc {
	last := int64(-1)
	return func(loaded, total int64) {
		if total <= 0 {
			return
		}
		pct := loaded * 100 / total
		if pct == last && loaded != total {
			return
		}
		last = pct
		report(protocol.DownloadStatus(loaded, total))
	}
}
