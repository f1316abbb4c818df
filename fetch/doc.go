// Package fetch downloads the engine's data asset.
//
// The asset is large, so the Fetcher first asks the server for its size and
// whether it honours byte ranges. When it does, the asset is split into a
// fixed number of contiguous ranges which are downloaded concurrently and
// reassembled by index. Any problem on that path falls back to exactly one
// streamed whole-file request.
//
// Results are kept in a Cache. The cache is written once per build and
// never invalidated; it also exposes the bytes as an fs.FS so the engine
// can read the asset as an ordinary file. A Locator maps the file names the
// engine asks for onto that cache, the CDN, or the engine directory.
package fetch
