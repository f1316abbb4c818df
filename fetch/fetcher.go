package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/engine-bridge/errors"
)

const (
	DefaultChunkCount      = 10
	DefaultLargeChunkCount = 16
	DefaultLargeThreshold  = 50 << 20

	streamBufferSize = 32 << 10
)

// ProgressFunc receives cumulative progress. total is 0 when unknown.
type ProgressFunc func(loaded, total int64)

// Options tune the fetcher. Zero values select the defaults.
type Options struct {
	ChunkCount      int
	LargeChunkCount int
	// LargeThreshold is the size above which LargeChunkCount is used.
	LargeThreshold int64
	// Timeout bounds each HTTP request; zero means none.
	Timeout time.Duration
	Client  *http.Client
}

// Fetcher downloads the asset and memoizes it in a Cache.
type Fetcher struct {
	client *http.Client
	cache  *Cache
	opts   Options
}

// New creates a fetcher storing results in cache. A nil cache disables
// memoization.
func New(cache *Cache, opts Options) *Fetcher {
	if opts.ChunkCount <= 0 {
		opts.ChunkCount = DefaultChunkCount
	}
	if opts.LargeChunkCount <= 0 {
		opts.LargeChunkCount = DefaultLargeChunkCount
	}
	if opts.LargeThreshold <= 0 {
		opts.LargeThreshold = DefaultLargeThreshold
	}

	client := opts.Client
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
		client.Timeout = opts.Timeout
	}
	return &Fetcher{client: client, cache: cache, opts: opts}
}

// Cache returns the fetcher's cache, which may be nil.
func (f *Fetcher) Cache() *Cache {
	return f.cache
}

// ChunkCount returns the number of ranges used for an asset of total bytes.
func (f *Fetcher) ChunkCount(total int64) int {
	if total > f.opts.LargeThreshold {
		return f.opts.LargeChunkCount
	}
	return f.opts.ChunkCount
}

// Fetch returns the asset at url. A populated cache is returned without
// any network activity. Otherwise the chunked strategy is tried first and
// any failure on it leads to one streamed download, whose error is the
// only one returned.
func (f *Fetcher) Fetch(ctx context.Context, url string, onProgress ProgressFunc) ([]byte, error) {
	if f.cache != nil {
		if data := f.cache.Bytes(); data != nil {
			Logger().Debug("asset already cached", zap.String("size", humanize.IBytes(uint64(len(data)))))
			return data, nil
		}
	}

	onProgress = highWater(onProgress)
	start := time.Now()
	data, err := f.fetchChunked(ctx, url, onProgress)
	if err != nil {
		Logger().Warn("chunked download failed, falling back to single download",
			zap.String("url", url), zap.Error(err))

		data, err = f.Download(ctx, url, onProgress)
		if err != nil {
			return nil, err
		}
	}

	Logger().Info("asset downloaded",
		zap.String("url", url),
		zap.String("size", humanize.IBytes(uint64(len(data)))),
		zap.Duration("elapsed", time.Since(start)),
	)
	if f.cache != nil {
		f.cache.Store(data)
	}
	return data, nil
}

// highWater drops reports below the highest one already made, so a
// fallback download restarting from zero does not move progress back.
// Callers must not invoke the result concurrently.
func highWater(fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return nil
	}
	var high int64
	return func(loaded, total int64) {
		if loaded < high {
			return
		}
		high = loaded
		fn(loaded, total)
	}
}

// Size asks the server for the asset size and range support.
func (f *Fetcher) Size(ctx context.Context, url string) (total int64, ranges bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, false, errors.Network(url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, false, errors.Network(url, err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, false, errors.BadStatus(url, resp.StatusCode)
	}
	return resp.ContentLength, resp.Header.Get("Accept-Ranges") == "bytes", nil
}

func (f *Fetcher) fetchChunked(ctx context.Context, url string, onProgress ProgressFunc) ([]byte, error) {
	total, ranges, err := f.Size(ctx, url)
	if err != nil {
		return nil, err
	}
	if total <= 0 {
		return nil, errors.New(errors.PhaseFetch, errors.KindInvalidData).
			URL(url).Detail("cannot determine asset size").Build()
	}
	if !ranges {
		return nil, errors.Unsupported(errors.PhaseFetch, "range requests")
	}

	chunks := Plan(total, f.ChunkCount(total))
	Logger().Info("starting parallel download",
		zap.Int("chunks", len(chunks)),
		zap.String("size", humanize.IBytes(uint64(total))),
	)

	parts := make([][]byte, len(chunks))
	var (
		mu     sync.Mutex
		loaded int64
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range chunks {
		g.Go(func() error {
			part, err := f.fetchChunk(gctx, url, c)
			if err != nil {
				return err
			}
			parts[c.Index] = part

			mu.Lock()
			loaded += int64(len(part))
			if onProgress != nil {
				onProgress(loaded, total)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return assemble(parts, total)
}

func (f *Fetcher) fetchChunk(ctx context.Context, url string, c Chunk) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Network(url, err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", c.Start, c.End))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Network(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, errors.New(errors.PhaseFetch, errors.KindNetwork).
			URL(url).Value(resp.StatusCode).
			Detail("chunk %d failed: status %d", c.Index, resp.StatusCode).Build()
	}

	// read one extra byte so an oversized body is detected
	part, err := io.ReadAll(io.LimitReader(resp.Body, c.Len()+1))
	if err != nil {
		return nil, errors.Network(url, err)
	}
	if int64(len(part)) != c.Len() {
		return nil, errors.New(errors.PhaseFetch, errors.KindInvalidData).
			URL(url).
			Detail("chunk %d: got %d bytes, want %d", c.Index, len(part), c.Len()).Build()
	}
	return part, nil
}

// assemble concatenates parts in index order.
func assemble(parts [][]byte, total int64) ([]byte, error) {
	var n int64
	for _, p := range parts {
		n += int64(len(p))
	}
	if n != total {
		return nil, errors.New(errors.PhaseFetch, errors.KindInvalidData).
			Detail("assembled %d bytes, want %d", n, total).Build()
	}

	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

// Download fetches url with a single streamed request, reporting progress
// as bytes arrive.
func (f *Fetcher) Download(ctx context.Context, url string, onProgress ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Network(url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Network(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.BadStatus(url, resp.StatusCode)
	}

	total := max(resp.ContentLength, 0)
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}

	chunk := make([]byte, streamBufferSize)
	var loaded int64
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			loaded += int64(n)
			if onProgress != nil {
				onProgress(loaded, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, errors.Network(url, rerr)
		}
	}

	if total > 0 && loaded != total {
		return nil, errors.New(errors.PhaseFetch, errors.KindInvalidData).
			URL(url).Detail("short body: got %d bytes, want %d", loaded, total).Build()
	}
	if total == 0 && onProgress != nil {
		onProgress(loaded, loaded)
	}
	return buf.Bytes(), nil
}
