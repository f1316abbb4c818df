package protocol

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	bestLineRe   = regexp.MustCompile(`\d+,\d+`)
	forbidCellRe = regexp.MustCompile(`^([0-9][0-9])([0-9][0-9])$`)
)

const forbidCellWidth = 4

// Decode turns one engine output line into an event. It reports false only
// for the bare acknowledgement "OK", which produces no event.
func Decode(line string) (Event, bool) {
	head, tail, found := strings.Cut(line, " ")
	if !found {
		return decodeBare(line)
	}

	switch head {
	case "MESSAGE":
		return decodeMessage(tail), true
	case "INFO":
		return decodeInfo(tail), true
	case "FORBID":
		return Event{Kind: KindForbid, Points: decodeForbid(tail)}, true
	case "ERROR":
		return Event{Kind: KindError, Text: tail}, true
	}

	if strings.Contains(head, ",") {
		p1, ok1 := parsePoint(head)
		p2, ok2 := parsePoint(tail)
		if ok1 && ok2 {
			return Event{Kind: KindPosPair, Pos: p1, Pos2: p2}, true
		}
	}
	return unknown(tail), true
}

func decodeBare(line string) (Event, bool) {
	switch line {
	case "OK":
		return Event{}, false
	case "SWAP":
		return Event{Kind: KindSwap}, true
	}
	if p, ok := parsePoint(line); ok {
		return Event{Kind: KindPos, Pos: p}, true
	}
	return unknown(line), true
}

func decodeMessage(rest string) Event {
	if !strings.HasPrefix(rest, "REALTIME") {
		return Event{Kind: KindMessage, Text: rest}
	}

	fields := strings.Split(rest, " ")
	rt := &Realtime{}
	if len(fields) > 1 {
		rt.Type = fields[1]
	}
	if len(fields) > 2 {
		p, ok := parsePoint(fields[2])
		if !ok {
			return unknown(rest)
		}
		rt.Pos = &p
	}
	return Event{Kind: KindRealtime, Realtime: rt}
}

var infoInts = map[string]Kind{
	"NUMPV":      KindNumPV,
	"DEPTH":      KindDepth,
	"SELDEPTH":   KindSelDepth,
	"NODES":      KindNodes,
	"TOTALNODES": KindTotalNodes,
	"TOTALTIME":  KindTotalTime,
	"SPEED":      KindSpeed,
}

func decodeInfo(rest string) Event {
	key, value, _ := strings.Cut(rest, " ")

	if kind, ok := infoInts[key]; ok {
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return unknown(rest)
		}
		return Event{Kind: kind, Int: n}
	}

	switch key {
	case "PV":
		return Event{Kind: KindMultiPV, Text: value}
	case "EVAL":
		return Event{Kind: KindEval, Text: value}
	case "WINRATE":
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return unknown(rest)
		}
		return Event{Kind: KindWinrate, Float: f}
	case "BESTLINE":
		var pts []Point
		for _, m := range bestLineRe.FindAllString(value, -1) {
			if p, ok := parsePoint(m); ok {
				pts = append(pts, p)
			}
		}
		return Event{Kind: KindBestLine, Points: pts}
	}
	return unknown(rest)
}

// decodeForbid reads fixed-width XXYY cells. A trailing partial cell (the
// protocol terminates the list with '.') is ignored; any malformed cell
// empties the whole list.
func decodeForbid(rest string) []Point {
	pts := []Point{}
	for i := 0; i+forbidCellWidth <= len(rest); i += forbidCellWidth {
		m := forbidCellRe.FindStringSubmatch(rest[i : i+forbidCellWidth])
		if m == nil {
			return []Point{}
		}
		x, _ := strconv.Atoi(m[1])
		y, _ := strconv.Atoi(m[2])
		pts = append(pts, Point{x, y})
	}
	return pts
}

// parsePoint parses "x,y".
func parsePoint(s string) (Point, bool) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return Point{}, false
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return Point{}, false
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return Point{}, false
	}
	return Point{x, y}, true
}

func unknown(raw string) Event {
	return Event{Kind: KindUnknown, Text: raw}
}
