// Package protocol decodes the engine's text output.
//
// Each line the engine writes to stdout becomes at most one Event, keyed
// by the line's first token:
//
//	OK                         nothing
//	SWAP                       {"swap":true}
//	7,8                        {"pos":[7,8]}
//	7,8 9,10                   {"pos":[7,8],"pos2":[9,10]}
//	MESSAGE REALTIME BEST 3,4  {"realtime":{"type":"BEST","pos":[3,4]}}
//	MESSAGE hello              {"msg":"hello"}
//	INFO DEPTH 12              {"depth":12}
//	FORBID 07080910.           {"forbid":[[7,8],[9,10]]}
//	ERROR bad move             {"error":"bad move"}
//
// Anything else becomes {"unknown": ...}. Decoding never fails.
//
// Free-text status strings reported while the engine boots are turned into
// {"loading": {...}} progress events by DecodeStatus.
//
// The package also defines the message envelope exchanged with an isolated
// worker process.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates Event. Its value is the event's JSON key.
type Kind string

const (
	KindOK         Kind = "ok"
	KindSwap       Kind = "swap"
	KindPos        Kind = "pos"
	KindPosPair    Kind = "pos2"
	KindMessage    Kind = "msg"
	KindRealtime   Kind = "realtime"
	KindMultiPV    Kind = "multipv"
	KindNumPV      Kind = "numpv"
	KindDepth      Kind = "depth"
	KindSelDepth   Kind = "seldepth"
	KindNodes      Kind = "nodes"
	KindTotalNodes Kind = "totalnodes"
	KindTotalTime  Kind = "totaltime"
	KindSpeed      Kind = "speed"
	KindEval       Kind = "eval"
	KindWinrate    Kind = "winrate"
	KindBestLine   Kind = "bestline"
	KindForbid     Kind = "forbid"
	KindError      Kind = "error"
	KindUnknown    Kind = "unknown"
	KindLoading    Kind = "loading"
)

// Point is a board coordinate [x, y].
type Point [2]int

// Realtime is a MESSAGE REALTIME notification.
type Realtime struct {
	Type string `json:"type"`
	Pos  *Point `json:"pos,omitempty"`
}

// Loading is boot progress in [0, 1]. Byte counts are set when known.
type Loading struct {
	Progress    float64 `json:"progress"`
	LoadedBytes *int64  `json:"loadedBytes,omitempty"`
	TotalBytes  *int64  `json:"totalBytes,omitempty"`
}

// Event is one decoded engine output. Which fields are meaningful depends
// on Kind:
//
//	KindPos                          Pos
//	KindPosPair                      Pos, Pos2
//	KindMessage, KindMultiPV,
//	KindEval, KindError, KindUnknown Text
//	KindNumPV ... KindSpeed          Int
//	KindWinrate                      Float
//	KindBestLine, KindForbid         Points
//	KindRealtime                     Realtime
//	KindLoading                      Loading
type Event struct {
	Kind     Kind
	Pos      Point
	Pos2     Point
	Text     string
	Int      int64
	Float    float64
	Points   []Point
	Realtime *Realtime
	Loading  *Loading
}

// Ready is the event emitted once the engine is usable.
func Ready() Event {
	return Event{Kind: KindOK}
}

// Failure is the event emitted when the bridge gives up on the engine.
func Failure(err error) Event {
	return Event{Kind: KindError, Text: err.Error()}
}

// MarshalJSON renders the event in its normalized single-key form, with
// {"pos":..,"pos2":..} for coordinate pairs.
func (e Event) MarshalJSON() ([]byte, error) {
	var v map[string]any
	switch e.Kind {
	case KindOK, KindSwap:
		v = map[string]any{string(e.Kind): true}
	case KindPos:
		v = map[string]any{"pos": e.Pos}
	case KindPosPair:
		v = map[string]any{"pos": e.Pos, "pos2": e.Pos2}
	case KindMessage, KindMultiPV, KindEval, KindError, KindUnknown:
		v = map[string]any{string(e.Kind): e.Text}
	case KindNumPV, KindDepth, KindSelDepth, KindNodes, KindTotalNodes, KindTotalTime, KindSpeed:
		v = map[string]any{string(e.Kind): e.Int}
	case KindWinrate:
		v = map[string]any{"winrate": e.Float}
	case KindBestLine, KindForbid:
		pts := e.Points
		if pts == nil {
			pts = []Point{}
		}
		v = map[string]any{string(e.Kind): pts}
	case KindRealtime:
		v = map[string]any{"realtime": e.Realtime}
	case KindLoading:
		v = map[string]any{"loading": e.Loading}
	default:
		return nil, fmt.Errorf("protocol: cannot marshal event kind %q", e.Kind)
	}
	return json.Marshal(v)
}

func (e Event) String() string {
	b, err := e.MarshalJSON()
	if err != nil {
		return string(e.Kind)
	}
	return string(b)
}
