package fetch

import (
	"bytes"
	"context"
	"io/fs"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wippyai/engine-bridge/errors"
)

func testAsset(n int) []byte {
	r := rand.New(rand.NewSource(int64(n)))
	b := make([]byte, n)
	r.Read(b)
	return b
}

// assetServer serves data with range support and counts requests.
type assetServer struct {
	*httptest.Server
	data []byte

	heads      atomic.Int32
	ranged     atomic.Int32
	whole      atomic.Int32
	noRanges   bool
	failChunk  func(start int64) bool
	failWhole  bool
	chunkDelay func(start int64) time.Duration
}

func newAssetServer(t *testing.T, data []byte) *assetServer {
	t.Helper()
	s := &assetServer{data: data}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *assetServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		s.heads.Add(1)
		w.Header().Set("Content-Length", strconv.Itoa(len(s.data)))
		if !s.noRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		return
	}

	rng := r.Header.Get("Range")
	if rng == "" {
		s.whole.Add(1)
		if s.failWhole {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(s.data)))
		w.Write(s.data)
		return
	}

	s.ranged.Add(1)
	var start, end int64
	parts := strings.SplitN(strings.TrimPrefix(rng, "bytes="), "-", 2)
	start, _ = strconv.ParseInt(parts[0], 10, 64)
	end, _ = strconv.ParseInt(parts[1], 10, 64)

	if s.chunkDelay != nil {
		time.Sleep(s.chunkDelay(start))
	}
	if s.failChunk != nil && s.failChunk(start) {
		http.Error(w, "chunk failed", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusPartialContent)
	w.Write(s.data[start : end+1])
}

// progressLog records progress calls and checks monotonicity.
type progressLog struct {
	mu    sync.Mutex
	calls [][2]int64
}

func (p *progressLog) report(loaded, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, [2]int64{loaded, total})
}

func (p *progressLog) check(t *testing.T, total int64) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		t.Fatal("no progress reported")
	}
	var prev int64
	for i, c := range p.calls {
		if c[0] < prev {
			t.Errorf("progress call %d: loaded %d decreased from %d", i, c[0], prev)
		}
		prev = c[0]
	}
	last := p.calls[len(p.calls)-1]
	if last[0] != total || last[1] != total {
		t.Errorf("final progress = %v, want [%d %d]", last, total, total)
	}
}

func TestPlan(t *testing.T) {
	tests := []struct {
		total int64
		n     int
		want  int
	}{
		{1000, 10, 10},
		{1001, 10, 10},
		{999, 10, 10},
		{5, 10, 5},
		{1, 16, 1},
		{100, 16, 15}, // ceil(100/16)=7, 15 ranges cover 100
		{0, 10, 0},
		{10, 0, 0},
	}

	for _, tt := range tests {
		chunks := Plan(tt.total, tt.n)
		if len(chunks) != tt.want {
			t.Errorf("Plan(%d, %d): %d chunks, want %d", tt.total, tt.n, len(chunks), tt.want)
			continue
		}

		var next int64
		for i, c := range chunks {
			if c.Index != i {
				t.Errorf("Plan(%d, %d): chunk %d has index %d", tt.total, tt.n, i, c.Index)
			}
			if c.Start != next {
				t.Errorf("Plan(%d, %d): chunk %d starts at %d, want %d", tt.total, tt.n, i, c.Start, next)
			}
			if c.Len() <= 0 {
				t.Errorf("Plan(%d, %d): chunk %d empty", tt.total, tt.n, i)
			}
			next = c.End + 1
		}
		if len(chunks) > 0 && next != tt.total {
			t.Errorf("Plan(%d, %d): covers [0,%d), want [0,%d)", tt.total, tt.n, next, tt.total)
		}
	}
}

func TestPlan_Exhaustive(t *testing.T) {
	for total := int64(1); total <= 200; total++ {
		for n := 1; n <= 17; n++ {
			var covered int64
			for _, c := range Plan(total, n) {
				covered += c.Len()
			}
			if covered != total {
				t.Fatalf("Plan(%d, %d) covers %d bytes", total, n, covered)
			}
		}
	}
}

func TestFetcher_ChunkCount(t *testing.T) {
	f := New(nil, Options{})
	if got := f.ChunkCount(50 << 20); got != 10 {
		t.Errorf("ChunkCount(50MiB) = %d, want 10", got)
	}
	if got := f.ChunkCount(50<<20 + 1); got != 16 {
		t.Errorf("ChunkCount(50MiB+1) = %d, want 16", got)
	}
}

func TestFetch_Chunked(t *testing.T) {
	data := testAsset(10_007)
	srv := newAssetServer(t, data)

	var progress progressLog
	f := New(NewCache("rapfi.data"), Options{Client: srv.Client()})
	got, err := f.Fetch(context.Background(), srv.URL+"/rapfi.data", progress.report)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("reassembled asset differs from source")
	}
	if n := srv.ranged.Load(); n != 10 {
		t.Errorf("range requests = %d, want 10", n)
	}
	if n := srv.whole.Load(); n != 0 {
		t.Errorf("whole-file requests = %d, want 0", n)
	}
	progress.check(t, int64(len(data)))
	if len(progress.calls) != 10 {
		t.Errorf("progress calls = %d, want one per chunk", len(progress.calls))
	}
}

func TestFetch_ReverseCompletionOrder(t *testing.T) {
	data := testAsset(4096)
	srv := newAssetServer(t, data)
	// later ranges finish first
	srv.chunkDelay = func(start int64) time.Duration {
		return time.Duration(len(data)-int(start)) * 10 * time.Microsecond
	}

	var progress progressLog
	f := New(nil, Options{Client: srv.Client(), ChunkCount: 8})
	got, err := f.Fetch(context.Background(), srv.URL+"/rapfi.data", progress.report)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("reassembled asset differs from source")
	}
	progress.check(t, int64(len(data)))
}

func TestFetch_LargeAssetUsesMoreChunks(t *testing.T) {
	data := testAsset(2048)
	srv := newAssetServer(t, data)

	f := New(nil, Options{Client: srv.Client(), LargeThreshold: 1024})
	if _, err := f.Fetch(context.Background(), srv.URL+"/rapfi.data", nil); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if n := srv.ranged.Load(); n != 16 {
		t.Errorf("range requests = %d, want 16", n)
	}
}

func TestFetch_Fallback(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		setup func(s *assetServer)
	}{
		{"no range support", 3000, func(s *assetServer) { s.noRanges = true }},
		{"one chunk fails", 3000, func(s *assetServer) { s.failChunk = func(start int64) bool { return start == 0 } }},
		{"every chunk fails", 3000, func(s *assetServer) { s.failChunk = func(int64) bool { return true } }},
		{"first chunk fails after the rest arrived", 3_000_000, func(s *assetServer) {
			s.chunkDelay = func(start int64) time.Duration {
				if start == 0 {
					return 50 * time.Millisecond
				}
				return 0
			}
			s.failChunk = func(start int64) bool { return start == 0 }
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := testAsset(tt.size)
			srv := newAssetServer(t, data)
			tt.setup(srv)

			var progress progressLog
			f := New(nil, Options{Client: srv.Client()})
			got, err := f.Fetch(context.Background(), srv.URL+"/rapfi.data", progress.report)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatal("asset differs from source")
			}
			if n := srv.whole.Load(); n != 1 {
				t.Errorf("whole-file requests = %d, want exactly 1", n)
			}
			progress.check(t, int64(len(data)))
		})
	}
}

func TestFetch_HeadFailureFallsBack(t *testing.T) {
	data := testAsset(512)
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gets.Add(1)
		w.Write(data)
	}))
	defer srv.Close()

	got, err := New(nil, Options{Client: srv.Client()}).Fetch(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(got, data) || gets.Load() != 1 {
		t.Errorf("got %d bytes with %d requests", len(got), gets.Load())
	}
}

func TestFetch_BothStrategiesFail(t *testing.T) {
	srv := newAssetServer(t, testAsset(1000))
	srv.failChunk = func(int64) bool { return true }
	srv.failWhole = true

	cache := NewCache("rapfi.data")
	_, err := New(cache, Options{Client: srv.Client()}).Fetch(context.Background(), srv.URL, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errors.BadStatus("", 0)) {
		t.Errorf("error = %v, want fetch network error", err)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error %q should report the fallback status", err)
	}
	if cache.Loaded() {
		t.Error("failed fetch populated the cache")
	}
}

func TestFetch_CacheHit(t *testing.T) {
	data := testAsset(2000)
	srv := newAssetServer(t, data)
	cache := NewCache("rapfi.data")
	f := New(cache, Options{Client: srv.Client()})

	if _, err := f.Fetch(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	before := srv.heads.Load() + srv.ranged.Load() + srv.whole.Load()

	got, err := f.Fetch(context.Background(), srv.URL, func(int64, int64) {
		t.Error("progress reported on cache hit")
	})
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if after := srv.heads.Load() + srv.ranged.Load() + srv.whole.Load(); after != before {
		t.Errorf("cache hit made %d requests", after-before)
	}
	if !bytes.Equal(got, data) {
		t.Error("cached bytes differ")
	}
}

func TestFetch_ChunkLengthMismatch(t *testing.T) {
	data := testAsset(1000)
	var whole atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.Header().Set("Content-Length", "1000")
			w.Header().Set("Accept-Ranges", "bytes")
		case r.Header.Get("Range") != "":
			// ignores the range and sends everything
			w.Write(data)
		default:
			whole.Add(1)
			w.Write(data)
		}
	}))
	defer srv.Close()

	got, err := New(nil, Options{Client: srv.Client()}).Fetch(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(got, data) || whole.Load() != 1 {
		t.Errorf("expected recovery through one whole-file request, got %d", whole.Load())
	}
}

func TestDownload_UnknownLength(t *testing.T) {
	data := testAsset(100_000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// flushing forces chunked transfer encoding
		for i := 0; i < len(data); i += 10_000 {
			w.Write(data[i : i+10_000])
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()

	var progress progressLog
	got, err := New(nil, Options{Client: srv.Client()}).Download(context.Background(), srv.URL, progress.report)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("download differs")
	}
	progress.check(t, int64(len(data)))
}

func TestCache(t *testing.T) {
	c := NewCache("rapfi.data")
	if c.Loaded() || c.Bytes() != nil {
		t.Fatal("new cache not empty")
	}
	if _, err := c.Handle(); !errors.Is(err, errors.NotFound(errors.PhaseFetch, "", "")) {
		t.Errorf("Handle on empty cache: %v", err)
	}

	c.Store([]byte("first"))
	c.Store([]byte("second"))
	if string(c.Bytes()) != "second" {
		t.Errorf("Bytes = %q, last writer should win", c.Bytes())
	}

	h1, err := c.Handle()
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	h2, _ := c.Handle()
	if h1 != h2 {
		t.Error("handle rebuilt on second call")
	}
	b, err := fs.ReadFile(h1, "rapfi.data")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != "second" {
		t.Errorf("handle content = %q", b)
	}
}

func TestLocator(t *testing.T) {
	pattern := regexp.MustCompile(`^rapfi.*\.data$`)
	dir := "https://cdn.test/build/"

	empty := NewCache("rapfi.data")
	filled := NewCache("rapfi.data")
	filled.Store([]byte("asset"))

	tests := []struct {
		name       string
		loc        Locator
		file       string
		wantURL    string
		wantCached bool
	}{
		{"other file", Locator{Pattern: pattern, Canonical: "rapfi.data", Cache: filled}, "rapfi-single.wasm", dir + "rapfi-single.wasm", false},
		{"cached", Locator{Pattern: pattern, Canonical: "rapfi.data", Cache: filled}, "rapfi-multi.data", "mem:rapfi.data", true},
		{"cdn", Locator{Pattern: pattern, Canonical: "rapfi.data", Cache: empty, CDNURL: "https://mirror.test/rapfi.data"}, "rapfi.data", "https://mirror.test/rapfi.data", false},
		{"local canonical", Locator{Pattern: pattern, Canonical: "rapfi.data"}, "rapfi-single-simd128.data", dir + "rapfi.data", false},
		{"no pattern", Locator{Canonical: "rapfi.data", Cache: filled}, "rapfi.data", dir + "rapfi.data", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.loc.Locate(tt.file, dir)
			if got.URL != tt.wantURL {
				t.Errorf("URL = %s, want %s", got.URL, tt.wantURL)
			}
			if got.Cached() != tt.wantCached {
				t.Errorf("Cached = %v, want %v", got.Cached(), tt.wantCached)
			}
			if got.Cached() {
				b, err := fs.ReadFile(got.FS, got.Name)
				if err != nil || string(b) != "asset" {
					t.Errorf("cached file = %q, %v", b, err)
				}
			}
		})
	}
}

func TestDirOf(t *testing.T) {
	if got := DirOf("https://h/build/rapfi-multi.wasm"); got != "https://h/build/" {
		t.Errorf("DirOf = %s", got)
	}
	if got := DirOf("rapfi.wasm"); got != "" {
		t.Errorf("DirOf(no slash) = %q", got)
	}
}

func TestLocator_Remote(t *testing.T) {
	cache := NewCache("rapfi.data")
	cache.Store([]byte("asset"))
	l := Locator{Pattern: regexp.MustCompile(`^rapfi.*\.data$`), Canonical: "rapfi.data", Cache: cache}

	got := l.Remote("rapfi-multi.data", "https://h/build/")
	if got.Cached() || got.URL != "https://h/build/rapfi.data" {
		t.Errorf("Remote = %+v, want the engine directory copy", got)
	}
	if !l.IsAsset("rapfi.data") || l.IsAsset("rapfi.wasm") {
		t.Error("IsAsset mismatch")
	}
}
