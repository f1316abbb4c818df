package capability

import "github.com/wippyai/engine-bridge/wasm"

// threadsModule declares a shared memory and performs an atomic load on it.
func threadsModule() []byte {
	b := wasm.NewModuleBuilder()
	void := b.AddType(nil, nil)
	b.AddMemory(1, 1, true)
	b.AddFunc(void, nil, new(wasm.Code).
		I32Const(0).
		Atomic(wasm.AtomicI32Load).MemArg(2, 0).
		Op(wasm.OpDrop).
		End())
	return b.Encode()
}

// simdModule splats an i32 into a v128.
func simdModule() []byte {
	b := wasm.NewModuleBuilder()
	void := b.AddType(nil, nil)
	b.AddFunc(void, nil, new(wasm.Code).
		I32Const(0).
		SIMD(wasm.SIMDI8x16Splat).
		Op(wasm.OpDrop).
		End())
	return b.Encode()
}

// relaxedSIMDModule uses i32x4.relaxed_trunc_f32x4_s.
func relaxedSIMDModule() []byte {
	b := wasm.NewModuleBuilder()
	void := b.AddType(nil, nil)
	b.AddFunc(void, nil, new(wasm.Code).
		F32Const(0).
		SIMD(wasm.SIMDF32x4Splat).
		SIMD(wasm.SIMDRelaxedI32x4TruncF32x4).
		Op(wasm.OpDrop).
		End())
	return b.Encode()
}
