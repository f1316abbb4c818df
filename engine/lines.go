package engine

import (
	"bytes"
	"io"
	"sync"
)

// LineWriter splits written bytes into lines and passes each to fn without
// its terminator. Lines are delivered in write order.
type LineWriter struct {
	mu      sync.Mutex
	fn      func(string)
	partial []byte
}

func NewLineWriter(fn func(string)) *LineWriter {
	return &LineWriter{fn: fn}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		line := w.partial[:i]
		line = bytes.TrimSuffix(line, []byte{'\r'})
		w.emit(string(line))
		w.partial = w.partial[i+1:]
	}
	if len(w.partial) == 0 {
		w.partial = nil
	}
	return len(p), nil
}

// Flush delivers a trailing unterminated line, if any.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.emit(string(bytes.TrimSuffix(w.partial, []byte{'\r'})))
		w.partial = nil
	}
}

func (w *LineWriter) emit(line string) {
	if w.fn != nil {
		w.fn(line)
	}
}

// commandQueue is the engine's stdin. Push never blocks; Read blocks until
// a command is queued or the queue is closed.
type commandQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	closed bool
}

func newCommandQueue() *commandQueue {
	q := &commandQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *commandQueue) Push(line string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.buf.WriteString(line)
	q.buf.WriteByte('\n')
	q.cond.Signal()
	return true
}

func (q *commandQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.buf.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.buf.Len() == 0 {
		return 0, io.EOF
	}
	return q.buf.Read(p)
}

func (q *commandQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
