// Package engine hosts the engine's WebAssembly module on wazero.
//
// The engine is a WASI command: it reads protocol commands from stdin,
// writes protocol lines to stdout and diagnostics to stderr, and reads its
// data asset through the WASI file system. This package provides three
// layers:
//
//	WazeroEngine   - a wazero runtime with the memory limit and feature set
//	WazeroModule   - a compiled engine module
//	WazeroInstance - an instantiated module ready to run _start
//
// Host ties them together for one engine run: it sizes memory, mounts the
// data file system, feeds commands through a non-blocking stdin queue and
// splits stdout and stderr into lines delivered to Hooks in order.
//
// # Memory
//
// Threaded builds need a shared linear memory whose maximum is fixed up
// front. MemoryBudget finds the largest maximum the host can back, halving
// from 2048 MB down to a 512 MB floor. The floor itself is always tried and
// may still fail.
//
// # Threads
//
// Config.EnableThreads enables the WebAssembly threads proposal (shared
// memory and atomics). Atomic operations are guest-only.
//
// # Thread Safety
//
// Host is safe for concurrent use. WazeroInstance is not and is driven by
// a single goroutine inside Host.
package engine
