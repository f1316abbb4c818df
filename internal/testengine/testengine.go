// Package testengine builds tiny WASI command modules that stand in for the
// real engine in tests.
package testengine

import (
	"github.com/wippyai/engine-bridge/wasm"
)

const wasiModule = "wasi_snapshot_preview1"

// scratch memory layout used by Echo
const (
	readIOV  = 0
	nread    = 8
	writeIOV = 16
	nwritten = 24
	buf      = 64
	bufLen   = 256
)

// Echo copies stdin to stdout until stdin reaches end of file, then
// returns from _start with exit code 0.
func Echo() []byte {
	b := wasm.NewModuleBuilder()
	io4 := b.AddType([]wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32}, []wasm.ValType{wasm.ValI32})
	fdRead := b.ImportFunc(wasiModule, "fd_read", io4)
	fdWrite := b.ImportFunc(wasiModule, "fd_write", io4)
	mem := b.AddMemory(1, 0, false)

	var c wasm.Code
	c.Block().Loop()
	store(&c, readIOV, buf)
	store(&c, readIOV+4, bufLen)
	c.I32Const(0).I32Const(readIOV).I32Const(1).I32Const(nread).Call(fdRead).Op(wasm.OpDrop)

	// stop on EOF or error
	c.I32Const(nread).Op(wasm.OpI32Load).MemArg(2, 0).Op(wasm.OpI32Eqz).Op(wasm.OpBrIf).U32(1)

	store(&c, writeIOV, buf)
	c.I32Const(writeIOV+4).I32Const(nread).Op(wasm.OpI32Load).MemArg(2, 0).Op(wasm.OpI32Store).MemArg(2, 0)
	c.I32Const(1).I32Const(writeIOV).I32Const(1).I32Const(nwritten).Call(fdWrite).Op(wasm.OpDrop)
	c.Op(wasm.OpBr).U32(0)
	c.Op(wasm.OpEnd).Op(wasm.OpEnd)

	start := b.AddFunc(b.AddType(nil, nil), nil, c.End())
	b.ExportFunc("_start", start)
	b.ExportMemory("memory", mem)
	return b.Encode()
}

// Exit calls proc_exit(code) immediately.
func Exit(code int32) []byte {
	b := wasm.NewModuleBuilder()
	procExit := b.ImportFunc(wasiModule, "proc_exit", b.AddType([]wasm.ValType{wasm.ValI32}, nil))
	mem := b.AddMemory(1, 0, false)

	var c wasm.Code
	c.I32Const(code).Call(procExit)
	start := b.AddFunc(b.AddType(nil, nil), nil, c.End())
	b.ExportFunc("_start", start)
	b.ExportMemory("memory", mem)
	return b.Encode()
}

// Trap executes unreachable in _start.
func Trap() []byte {
	b := wasm.NewModuleBuilder()
	mem := b.AddMemory(1, 0, false)

	var c wasm.Code
	c.Op(wasm.OpUnreachable)
	start := b.AddFunc(b.AddType(nil, nil), nil, c.End())
	b.ExportFunc("_start", start)
	b.ExportMemory("memory", mem)
	return b.Encode()
}

// NeedsImport imports a function no host provides, so instantiation fails.
func NeedsImport() []byte {
	b := wasm.NewModuleBuilder()
	missing := b.ImportFunc("env", "emscripten_missing", b.AddType(nil, nil))

	var c wasm.Code
	c.Call(missing)
	start := b.AddFunc(b.AddType(nil, nil), nil, c.End())
	b.ExportFunc("_start", start)
	return b.Encode()
}

// store appends i32.store of value at addr.
func store(c *wasm.Code, addr, value int32) {
	c.I32Const(addr).I32Const(value).Op(wasm.OpI32Store).MemArg(2, 0)
}
