package transport

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/engine-bridge/errors"
)

// Worker is the host side of an isolated execution context: reads yield
// messages from the worker, writes deliver messages to it.
type Worker interface {
	io.Reader
	io.Writer
	// Terminate kills the worker. It is safe to call more than once.
	Terminate() error
}

// Spawner starts workers.
type Spawner interface {
	Spawn(ctx context.Context) (Worker, error)
}

// ProcessSpawner runs each worker as a child process speaking the message
// stream on its stdin and stdout. The child's stderr is inherited.
type ProcessSpawner struct {
	// Path defaults to the running executable.
	Path string
	// Args default to ["worker"].
	Args []string
	Env  []string
}

func (s ProcessSpawner) Spawn(ctx context.Context) (Worker, error) {
	path := s.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(errors.PhaseTransport, errors.KindNotFound, err, "locate worker executable")
		}
		path = exe
	}
	args := s.Args
	if args == nil {
		args = []string{"worker"}
	}

	// not tied to ctx: the worker outlives the bootstrap call
	cmd := exec.Command(path, args...)
	cmd.Stderr = os.Stderr
	if s.Env != nil {
		cmd.Env = append(os.Environ(), s.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTransport, errors.KindInstantiation, err, "worker stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTransport, errors.KindInstantiation, err, "worker stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(errors.PhaseTransport, errors.KindInstantiation, err, "start worker")
	}

	Logger().Debug("worker process started", zap.String("path", path), zap.Int("pid", cmd.Process.Pid))
	return &processWorker{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

type processWorker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	once   sync.Once
}

func (w *processWorker) Read(p []byte) (int, error)  { return w.stdout.Read(p) }
func (w *processWorker) Write(p []byte) (int, error) { return w.stdin.Write(p) }

func (w *processWorker) Terminate() error {
	var err error
	w.once.Do(func() {
		w.stdin.Close()
		if kerr := w.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = kerr
		}
		// reaps the child; its exit status is expected to be a kill
		_ = w.cmd.Wait()
	})
	return err
}

// LocalSpawner runs Serve in a goroutine connected by in-memory pipes. It
// gives the isolated mode's message semantics without a child process.
type LocalSpawner struct {
	Options ServeOptions
}

func (s LocalSpawner) Spawn(ctx context.Context) (Worker, error) {
	toWorkerR, toWorkerW := io.Pipe()
	fromWorkerR, fromWorkerW := io.Pipe()
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	w := &localWorker{
		r:      fromWorkerR,
		w:      toWorkerW,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		err := Serve(wctx, toWorkerR, fromWorkerW, s.Options)
		if err != nil {
			Logger().Debug("local worker failed", zap.Error(err))
		}
		// nil closes with EOF
		fromWorkerW.CloseWithError(err)
		toWorkerR.Close()
	}()
	return w, nil
}

type localWorker struct {
	r      *io.PipeReader
	w      *io.PipeWriter
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (w *localWorker) Read(p []byte) (int, error)  { return w.r.Read(p) }
func (w *localWorker) Write(p []byte) (int, error) { return w.w.Write(p) }

func (w *localWorker) Terminate() error {
	w.once.Do(func() {
		w.cancel()
		w.w.Close()
		w.r.Close()
		<-w.done
	})
	return nil
}
