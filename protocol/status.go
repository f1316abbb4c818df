package protocol

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Status strings the engine reports while booting.
const (
	StatusRunning     = "Running..."
	StatusDownloading = "Downloading data..."
	StatusCompiling   = "Compiling..."
)

var statusProgressRe = regexp.MustCompile(`\((\d+)/(\d+)\)`)

const (
	downloadStartProgress = 0.01
	nearlyDoneProgress    = 0.95
)

// DownloadStatus formats a byte-count status line.
func DownloadStatus(loaded, total int64) string {
	return StatusDownloading + " (" + strconv.FormatInt(loaded, 10) + "/" + strconv.FormatInt(total, 10) + ")"
}

// DecodeStatus maps a status string to a loading event. Once loaded is true
// it does nothing. emit reports whether ev should be delivered and
// loadedAfter is the new loaded flag.
func DecodeStatus(text string, loaded bool) (ev Event, emit bool, loadedAfter bool) {
	if loaded {
		return Event{}, false, true
	}

	if text == StatusRunning || text == "" {
		return loading(1.0, nil, nil), true, true
	}

	if m := statusProgressRe.FindStringSubmatch(text); m != nil {
		n, err1 := strconv.ParseInt(m[1], 10, 64)
		total, err2 := strconv.ParseInt(m[2], 10, 64)
		if err1 == nil && err2 == nil && total > 0 {
			return loading(float64(n)/float64(total), &n, &total), true, n == total
		}
	}

	if strings.Contains(text, "Downloading") {
		return loading(downloadStartProgress, nil, nil), true, false
	}
	if strings.Contains(text, "Loading") || strings.Contains(text, "Compiling") {
		return loading(nearlyDoneProgress, nil, nil), true, false
	}
	return Event{}, false, false
}

// Progress is the loading event for a byte-counted download.
func Progress(loaded, total int64) Event {
	if total <= 0 {
		return loading(0, &loaded, nil)
	}
	return loading(float64(loaded)/float64(total), &loaded, &total)
}

func loading(progress float64, loaded, total *int64) Event {
	return Event{Kind: KindLoading, Loading: &Loading{Progress: progress, LoadedBytes: loaded, TotalBytes: total}}
}

// StatusDecoder tracks the loaded flag across calls.
type StatusDecoder struct {
	mu     sync.Mutex
	loaded bool
}

// Decode decodes text and updates the loaded flag.
func (d *StatusDecoder) Decode(text string) (Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ev, emit, loaded := DecodeStatus(text, d.loaded)
	d.loaded = loaded
	return ev, emit
}

// Loaded reports whether loading has completed.
func (d *StatusDecoder) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

// MarkLoaded stops further status decoding.
func (d *StatusDecoder) MarkLoaded() {
	d.mu.Lock()
	d.loaded = true
	d.mu.Unlock()
}

// Reset clears the loaded flag for a new boot.
func (d *StatusDecoder) Reset() {
	d.mu.Lock()
	d.loaded = false
	d.mu.Unlock()
}
