package engine

import (
	"io"
	"testing"
	"time"
)

func TestLineWriter(t *testing.T) {
	var lines []string
	w := NewLineWriter(func(s string) { lines = append(lines, s) })

	writes := []string{"MESSAGE he", "llo\nINFO DEPTH 3\r\n", "\n", "7,7"}
	for _, s := range writes {
		n, err := w.Write([]byte(s))
		if err != nil || n != len(s) {
			t.Fatalf("Write(%q) = %d, %v", s, n, err)
		}
	}
	w.Flush()
	w.Flush()

	want := []string{"MESSAGE hello", "INFO DEPTH 3", "", "7,7"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestCommandQueue(t *testing.T) {
	q := newCommandQueue()
	if !q.Push("START 15") {
		t.Fatal("Push on open queue failed")
	}

	buf := make([]byte, 64)
	n, err := q.Read(buf)
	if err != nil || string(buf[:n]) != "START 15\n" {
		t.Fatalf("Read = %q, %v", buf[:n], err)
	}

	got := make(chan string)
	go func() {
		n, _ := q.Read(buf)
		got <- string(buf[:n])
	}()
	time.Sleep(10 * time.Millisecond)
	q.Push("BEGIN")
	select {
	case s := <-got:
		if s != "BEGIN\n" {
			t.Errorf("blocked Read = %q", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not wake up")
	}

	q.Push("END")
	q.Close()
	if q.Push("AFTER") {
		t.Error("Push after Close succeeded")
	}
	n, err = q.Read(buf)
	if err != nil || string(buf[:n]) != "END\n" {
		t.Errorf("drain after close = %q, %v", buf[:n], err)
	}
	if _, err := q.Read(buf); err != io.EOF {
		t.Errorf("Read on drained closed queue = %v, want EOF", err)
	}
}
