package transport

import (
	"context"
	"io"
	"io/fs"

	"go.uber.org/zap"

	"github.com/wippyai/engine-bridge/engine"
	"github.com/wippyai/engine-bridge/errors"
	"github.com/wippyai/engine-bridge/fetch"
	"github.com/wippyai/engine-bridge/protocol"
)

// DefaultDataName is the file name the engine opens for its data asset.
const DefaultDataName = "rapfi.data"

// ServeOptions configure the worker side of the isolated mode.
type ServeOptions struct {
	Fetcher  *fetch.Fetcher
	DataName string
}

// Serve is the worker loop. It waits for an engineScriptURL message,
// downloads and boots the engine without threads, replies ready, then
// forwards command messages to the engine and engine output back as
// messages. It returns nil when the host closes the stream and an error
// when the engine cannot be booted or the stream is corrupt.
func Serve(ctx context.Context, r io.Reader, w io.Writer, opts ServeOptions) error {
	if opts.Fetcher == nil {
		opts.Fetcher = fetch.New(nil, fetch.Options{})
	}
	if opts.DataName == "" {
		opts.DataName = DefaultDataName
	}

	dec := protocol.NewDecoder(r)
	enc := protocol.NewEncoder(w)

	var host *engine.Host
	defer func() {
		if host != nil {
			host.Close(ctx)
		}
	}()

	for {
		msg, err := dec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(errors.PhaseTransport, errors.KindInvalidData, err, "decode host message")
		}

		switch msg.Type {
		case protocol.MsgEngineScriptURL:
			if host != nil {
				Logger().Warn("engine already running, ignoring script")
				continue
			}
			var script protocol.ScriptURL
			if err := msg.Unmarshal(&script); err != nil {
				return errors.Wrap(errors.PhaseTransport, errors.KindInvalidData, err, "decode engine script")
			}
			host, err = boot(ctx, enc, script, opts)
			if err != nil {
				return err
			}
			if err := enc.Send(protocol.MsgReady, nil); err != nil {
				return err
			}

		case protocol.MsgCommand:
			var cmd string
			if err := msg.Unmarshal(&cmd); err != nil {
				Logger().Warn("malformed command", zap.Error(err))
				continue
			}
			if host == nil {
				Logger().Debug("command before engine boot dropped", zap.String("cmd", cmd))
				continue
			}
			if err := host.Send(cmd); err != nil {
				Logger().Debug("command dropped", zap.Error(err))
			}

		default:
			Logger().Warn("unknown message from host", zap.String("type", string(msg.Type)))
		}
	}
}

func boot(ctx context.Context, enc *protocol.Encoder, script protocol.ScriptURL, opts ServeOptions) (*engine.Host, error) {
	post := func(t protocol.MessageType, v any) {
		if err := enc.Send(t, v); err != nil {
			Logger().Debug("post to host failed", zap.String("type", string(t)), zap.Error(err))
		}
	}
	status := func(s string) { post(protocol.MsgStatus, s) }

	bin, err := opts.Fetcher.Download(ctx, script.EngineURL, nil)
	if err != nil {
		return nil, errors.Load("download engine module", err)
	}

	var fsys fs.FS
	if script.DataURL != "" {
		status(protocol.StatusDownloading)
		data, err := opts.Fetcher.Download(ctx, script.DataURL, statusProgress(status))
		if err != nil {
			return nil, errors.Load("download data asset", err)
		}
		cache := fetch.NewCache(opts.DataName)
		cache.Store(data)
		if fsys, err = cache.Handle(); err != nil {
			return nil, err
		}
	}

	host, err := engine.Start(ctx, bin, engine.HostConfig{
		Threads:     script.MemoryArgs.Shared,
		MaxMemoryMB: script.MemoryArgs.MaximumMB(),
		FS:          fsys,
		Hooks: engine.Hooks{
			Stdout: func(line string) { post(protocol.MsgStdout, line) },
			Stderr: func(line string) { post(protocol.MsgStderr, line) },
			Exit:   func(code uint32) { post(protocol.MsgExit, code) },
			Status: status,
		},
	})
	if err != nil {
		return nil, err
	}
	Logger().Info("worker engine running", zap.String("url", script.EngineURL))
	return host, nil
}
