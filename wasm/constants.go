package wasm

// WebAssembly binary format magic number and version.
const (
	// Magic is the WebAssembly binary magic number ("\0asm" in little-endian).
	Magic uint32 = 0x6D736100

	// Version is the supported WebAssembly binary format version.
	Version uint32 = 0x01
)

// Section IDs. Sections must appear in increasing order by ID.
const (
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionMemory   byte = 5
	SectionExport   byte = 7
	SectionCode     byte = 10
)

// Import/Export descriptor kinds.
const (
	KindFunc   byte = 0
	KindMemory byte = 2
)

// ValType is a WebAssembly value type encoding.
type ValType byte

const (
	ValI32  ValType = 0x7F
	ValI64  ValType = 0x7E
	ValF32  ValType = 0x7D
	ValF64  ValType = 0x7C
	ValV128 ValType = 0x7B
)

const (
	funcTypeByte   byte = 0x60
	blockTypeEmpty byte = 0x40

	limitsMin       byte = 0x00
	limitsMinMax    byte = 0x01
	limitsSharedMax byte = 0x03
)

// Opcodes used by the probe and test modules.
const (
	OpUnreachable byte = 0x00
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpBr          byte = 0x0C
	OpBrIf        byte = 0x0D
	OpEnd         byte = 0x0B
	OpCall        byte = 0x10
	OpDrop        byte = 0x1A
	OpI32Load     byte = 0x28
	OpI32Store    byte = 0x36
	OpI32Const    byte = 0x41
	OpF32Const    byte = 0x43
	OpI32Eqz      byte = 0x45

	PrefixSIMD   byte = 0xFD
	PrefixAtomic byte = 0xFE
)

// Prefixed sub-opcodes (encoded as unsigned LEB128 after the prefix).
const (
	SIMDI8x16Splat             uint32 = 0x0F
	SIMDF32x4Splat             uint32 = 0x13
	SIMDRelaxedI32x4TruncF32x4 uint32 = 0x101

	AtomicI32Load uint32 = 0x10
)
