package wasm

import (
	"bytes"
	"encoding/binary"
	"math"
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

type funcImport struct {
	module  string
	name    string
	typeIdx uint32
}

type memory struct {
	min    uint32
	max    uint32
	hasMax bool
	shared bool
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type funcBody struct {
	locals []ValType
	code   []byte
}

// ModuleBuilder assembles a module from its parts.
type ModuleBuilder struct {
	types    []FuncType
	imports  []funcImport
	funcs    []uint32
	memories []memory
	exports  []export
	bodies   []funcBody
}

// NewModuleBuilder returns an empty builder.
func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{}
}

// AddType registers a function signature and returns its type index.
func (b *ModuleBuilder) AddType(params, results []ValType) uint32 {
	b.types = append(b.types, FuncType{Params: params, Results: results})
	return uint32(len(b.types) - 1)
}

// ImportFunc adds a function import and returns its function index.
func (b *ModuleBuilder) ImportFunc(module, name string, typeIdx uint32) uint32 {
	b.imports = append(b.imports, funcImport{module: module, name: name, typeIdx: typeIdx})
	return uint32(len(b.imports) - 1)
}

// AddFunc adds a defined function and returns its function index.
// code must be a complete instruction sequence including the final end.
func (b *ModuleBuilder) AddFunc(typeIdx uint32, locals []ValType, code []byte) uint32 {
	b.funcs = append(b.funcs, typeIdx)
	b.bodies = append(b.bodies, funcBody{locals: locals, code: code})
	return uint32(len(b.imports) + len(b.funcs) - 1)
}

// AddMemory declares a memory in 64 KiB pages. A zero max means no maximum,
// unless shared is set, which always requires one.
func (b *ModuleBuilder) AddMemory(min, max uint32, shared bool) uint32 {
	b.memories = append(b.memories, memory{
		min:    min,
		max:    max,
		hasMax: max > 0 || shared,
		shared: shared,
	})
	return uint32(len(b.memories) - 1)
}

// ExportFunc exports function idx under name.
func (b *ModuleBuilder) ExportFunc(name string, idx uint32) {
	b.exports = append(b.exports, export{name: name, kind: KindFunc, idx: idx})
}

// ExportMemory exports memory idx under name.
func (b *ModuleBuilder) ExportMemory(name string, idx uint32) {
	b.exports = append(b.exports, export{name: name, kind: KindMemory, idx: idx})
}

// Encode produces the binary module.
func (b *ModuleBuilder) Encode() []byte {
	var w bytes.Buffer

	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[:4], Magic)
	binary.LittleEndian.PutUint32(hdr[4:], Version)
	w.Write(hdr[:])

	if len(b.types) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(b.types)))
		for _, ft := range b.types {
			sec.WriteByte(funcTypeByte)
			writeValTypes(&sec, ft.Params)
			writeValTypes(&sec, ft.Results)
		}
		writeSection(&w, SectionType, sec.Bytes())
	}

	if len(b.imports) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(b.imports)))
		for _, imp := range b.imports {
			writeName(&sec, imp.module)
			writeName(&sec, imp.name)
			sec.WriteByte(KindFunc)
			WriteLEB128u(&sec, imp.typeIdx)
		}
		writeSection(&w, SectionImport, sec.Bytes())
	}

	if len(b.funcs) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(b.funcs)))
		for _, typeIdx := range b.funcs {
			WriteLEB128u(&sec, typeIdx)
		}
		writeSection(&w, SectionFunction, sec.Bytes())
	}

	if len(b.memories) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(b.memories)))
		for _, m := range b.memories {
			switch {
			case m.shared:
				sec.WriteByte(limitsSharedMax)
			case m.hasMax:
				sec.WriteByte(limitsMinMax)
			default:
				sec.WriteByte(limitsMin)
			}
			WriteLEB128u(&sec, m.min)
			if m.hasMax {
				WriteLEB128u(&sec, m.max)
			}
		}
		writeSection(&w, SectionMemory, sec.Bytes())
	}

	if len(b.exports) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(b.exports)))
		for _, e := range b.exports {
			writeName(&sec, e.name)
			sec.WriteByte(e.kind)
			WriteLEB128u(&sec, e.idx)
		}
		writeSection(&w, SectionExport, sec.Bytes())
	}

	if len(b.bodies) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(b.bodies)))
		for _, body := range b.bodies {
			var fb bytes.Buffer
			// one local entry per declared local; fine for the tiny bodies built here
			WriteLEB128u(&fb, uint32(len(body.locals)))
			for _, l := range body.locals {
				WriteLEB128u(&fb, 1)
				fb.WriteByte(byte(l))
			}
			fb.Write(body.code)
			WriteLEB128u(&sec, uint32(fb.Len()))
			sec.Write(fb.Bytes())
		}
		writeSection(&w, SectionCode, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, data []byte) {
	w.WriteByte(id)
	WriteLEB128u(w, uint32(len(data)))
	w.Write(data)
}

func writeValTypes(w *bytes.Buffer, types []ValType) {
	WriteLEB128u(w, uint32(len(types)))
	for _, t := range types {
		w.WriteByte(byte(t))
	}
}

func writeName(w *bytes.Buffer, s string) {
	WriteLEB128u(w, uint32(len(s)))
	w.WriteString(s)
}

// Code accumulates an instruction sequence.
type Code struct {
	buf bytes.Buffer
}

// Op appends raw opcode bytes.
func (c *Code) Op(op ...byte) *Code {
	c.buf.Write(op)
	return c
}

// U32 appends an unsigned LEB128 immediate.
func (c *Code) U32(v uint32) *Code {
	WriteLEB128u(&c.buf, v)
	return c
}

// I32Const appends i32.const v.
func (c *Code) I32Const(v int32) *Code {
	c.buf.WriteByte(OpI32Const)
	WriteLEB128s(&c.buf, v)
	return c
}

// F32Const appends f32.const v.
func (c *Code) F32Const(v float32) *Code {
	c.buf.WriteByte(OpF32Const)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	c.buf.Write(b[:])
	return c
}

// MemArg appends a memory immediate (alignment exponent and offset).
func (c *Code) MemArg(align, offset uint32) *Code {
	WriteLEB128u(&c.buf, align)
	WriteLEB128u(&c.buf, offset)
	return c
}

// Block opens a block with an empty result type.
func (c *Code) Block() *Code {
	c.buf.WriteByte(OpBlock)
	c.buf.WriteByte(blockTypeEmpty)
	return c
}

// Loop opens a loop with an empty result type.
func (c *Code) Loop() *Code {
	c.buf.WriteByte(OpLoop)
	c.buf.WriteByte(blockTypeEmpty)
	return c
}

// Call appends call idx.
func (c *Code) Call(idx uint32) *Code {
	c.buf.WriteByte(OpCall)
	WriteLEB128u(&c.buf, idx)
	return c
}

// SIMD appends a 0xFD-prefixed instruction.
func (c *Code) SIMD(op uint32) *Code {
	c.buf.WriteByte(PrefixSIMD)
	WriteLEB128u(&c.buf, op)
	return c
}

// Atomic appends a 0xFE-prefixed instruction. Memory immediates follow via MemArg.
func (c *Code) Atomic(op uint32) *Code {
	c.buf.WriteByte(PrefixAtomic)
	WriteLEB128u(&c.buf, op)
	return c
}

// End appends end and returns the finished bytes.
func (c *Code) End() []byte {
	c.buf.WriteByte(OpEnd)
	return c.Bytes()
}

// Bytes returns the accumulated instructions.
func (c *Code) Bytes() []byte {
	return c.buf.Bytes()
}
