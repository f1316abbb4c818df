package protocol

import (
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/engine-bridge/errors"
)

// MessageType names a worker envelope.
type MessageType string

// Host to worker.
const (
	MsgEngineScriptURL MessageType = "engineScriptURL"
	MsgCommand         MessageType = "command"
)

// Worker to host.
const (
	MsgStdout MessageType = "stdout"
	MsgStderr MessageType = "stderr"
	MsgExit   MessageType = "exit"
	MsgStatus MessageType = "status"
	MsgReady  MessageType = "ready"
)

// Message is the {type, data} envelope exchanged with a worker.
type Message struct {
	Type MessageType        `msgpack:"type"`
	Data msgpack.RawMessage `msgpack:"data,omitempty"`
}

// MemoryArgs sizes the engine's linear memory in 64 KiB pages.
type MemoryArgs struct {
	Initial uint32 `msgpack:"initial"`
	Maximum uint32 `msgpack:"maximum"`
	Shared  bool   `msgpack:"shared"`
}

const pagesPerMB = (1 << 20) / 65536

// NewMemoryArgs converts megabyte sizes to pages.
func NewMemoryArgs(initialMB, maximumMB uint32, shared bool) MemoryArgs {
	return MemoryArgs{Initial: initialMB * pagesPerMB, Maximum: maximumMB * pagesPerMB, Shared: shared}
}

// MaximumMB returns the maximum size in megabytes.
func (m MemoryArgs) MaximumMB() uint32 {
	return m.Maximum / pagesPerMB
}

// ScriptURL tells a worker which engine to boot.
type ScriptURL struct {
	EngineURL  string     `msgpack:"engineURL"`
	DataURL    string     `msgpack:"dataURL,omitempty"`
	MemoryArgs MemoryArgs `msgpack:"memoryArgs"`
}

// NewMessage builds an envelope carrying v.
func NewMessage(t MessageType, v any) (Message, error) {
	if v == nil {
		return Message{Type: t}, nil
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Data: data}, nil
}

// Unmarshal decodes the envelope payload into v.
func (m Message) Unmarshal(v any) error {
	return msgpack.Unmarshal(m.Data, v)
}

// Encoder writes envelopes to a stream. It is safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	enc *msgpack.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: msgpack.NewEncoder(w)}
}

// Send encodes v as the payload of a t message.
func (e *Encoder) Send(t MessageType, v any) error {
	m, err := NewMessage(t, v)
	if err != nil {
		return err
	}
	return e.Encode(m)
}

func (e *Encoder) Encode(m Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(&m)
}

// Decoder reads envelopes from a stream.
type Decoder struct {
	dec *msgpack.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: msgpack.NewDecoder(r)}
}

// Decode reads the next envelope. It returns io.EOF at a clean end of
// stream.
func (d *Decoder) Decode() (Message, error) {
	var m Message
	if err := d.dec.Decode(&m); err != nil {
		if err == io.EOF {
			return Message{}, err
		}
		return Message{}, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode message")
	}
	return m, nil
}
