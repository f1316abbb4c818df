package bridge

import "github.com/wippyai/engine-bridge/protocol"

// Sink consumes decoded events. The bridge calls Emit from one goroutine
// at a time, in the order the engine produced the output. Emit must not
// call Init or Close.
type Sink interface {
	Emit(ev protocol.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev protocol.Event)

func (f SinkFunc) Emit(ev protocol.Event) { f(ev) }

// ChanSink delivers events to a channel. Emit blocks while the channel is
// full, which holds back the engine's output stream.
type ChanSink chan<- protocol.Event

func (c ChanSink) Emit(ev protocol.Event) { c <- ev }
