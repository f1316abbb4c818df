// Package enginebridge hosts a WebAssembly game engine whose build is chosen
// at run time and mediates the engine's line-oriented text protocol.
//
// # Architecture Overview
//
// The library is organized into packages with distinct responsibilities:
//
//	enginebridge/        Root package with Capabilities and Tier
//	├── capability/      Host capability probing (threads, SIMD, relaxed SIMD)
//	├── variant/         Engine build selection over a fixed fallback chain
//	├── fetch/           Parallel range downloads of the data asset, asset cache
//	├── engine/          wazero host for one engine instance
//	├── transport/       In-process and isolated (worker process) transports
//	├── protocol/        Engine output decoding and worker message envelope
//	├── bridge/          Session state machine tying everything together
//	├── config/          Viper-backed configuration
//	├── errors/          Structured error types
//	└── wasm/            Minimal WASM binary builder used for probes
//
// # Quick Start
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	b := bridge.New(cfg)
//	defer b.Close(ctx)
//
//	url, err := b.Init(ctx, bridge.SinkFunc(func(ev protocol.Event) {
//	    fmt.Println(ev)
//	}), enginebridge.TierFull)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	b.Send("START 15")
//	b.Send("BEGIN")
//
// # Execution Modes
//
// When the host supports the WebAssembly threads proposal, the engine runs
// in-process on a wazero runtime with shared memory. Otherwise it runs in a
// separate worker process reached over a msgpack message stream. Callers
// never branch on the mode: Send and Stop behave the same way for both,
// except that Stop reports whether the engine had to be killed.
//
// # Events
//
// Every line the engine prints is decoded into a protocol.Event and
// delivered to the caller's sink in the order the engine produced it.
// Loading progress and readiness are delivered through the same sink.
package enginebridge
