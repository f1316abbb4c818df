// Package wasm provides just enough of the WebAssembly binary format to
// build small modules in memory.
//
// It is used to construct the feature-probe modules compiled during
// capability detection and the tiny engines used by tests. It is not a
// general encoder: only type, import, function, memory, export and code
// sections are supported.
//
// # Building a Module
//
//	b := wasm.NewModuleBuilder()
//	void := b.AddType(nil, nil)
//	b.AddMemory(1, 1, true)
//	fn := b.AddFunc(void, nil, new(wasm.Code).
//		I32Const(0).
//		Atomic(wasm.AtomicI32Load).MemArg(2, 0).
//		Op(wasm.OpDrop).
//		End())
//	b.ExportFunc("probe", fn)
//	bin := b.Encode()
//
// Imports must be added before functions so function indices stay stable.
package wasm
