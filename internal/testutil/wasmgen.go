// Package testutil assembles small wasm modules for tests so that no
// compiled runtime has to be checked in.
package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ValType is a wasm value type.
type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
)

// FuncType is a wasm function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (t FuncType) key() string {
	return fmt.Sprintf("%x>%x", t.Params, t.Results)
}

type funcImport struct {
	module, name string
	typeIdx      uint32
}

type function struct {
	export  string
	typeIdx uint32
	locals  []ValType
	body    []byte
}

type global struct {
	export string
	value  int32
}

type dataSegment struct {
	offset uint32
	data   []byte
}

// Module is a wasm binary under construction. Imports must be declared
// before the first function.
type Module struct {
	types     []FuncType
	typeIndex map[string]uint32
	imports   []funcImport
	funcs     []function
	globals   []global
	data      []dataSegment

	memoryPages  uint32
	memoryExport string
	memoryImport *[2]string
}

func NewModule() *Module {
	return &Module{typeIndex: make(map[string]uint32)}
}

func (m *Module) typeOf(t FuncType) uint32 {
	if idx, ok := m.typeIndex[t.key()]; ok {
		return idx
	}
	idx := uint32(len(m.types))
	m.types = append(m.types, t)
	m.typeIndex[t.key()] = idx
	return idx
}

// ImportFunc declares an imported function and returns its index.
func (m *Module) ImportFunc(module, name string, t FuncType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmgen: imports must precede functions")
	}
	m.imports = append(m.imports, funcImport{module: module, name: name, typeIdx: m.typeOf(t)})
	return uint32(len(m.imports) - 1)
}

// Func defines a function, exported as export unless it is empty, and
// returns its index. body is the instruction sequence without the final end.
func (m *Module) Func(export string, t FuncType, locals []ValType, body ...[]byte) uint32 {
	m.funcs = append(m.funcs, function{
		export:  export,
		typeIdx: m.typeOf(t),
		locals:  locals,
		body:    bytes.Join(body, nil),
	})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// Memory defines the module memory with the given initial pages.
func (m *Module) Memory(pages uint32, export string) {
	m.memoryPages = pages
	m.memoryExport = export
}

// ImportMemory makes the module import its memory instead of defining it.
func (m *Module) ImportMemory(module, name string, pages uint32) {
	m.memoryImport = &[2]string{module, name}
	m.memoryPages = pages
}

// GlobalI32 defines an immutable i32 global exported as export.
func (m *Module) GlobalI32(export string, value int32) {
	m.globals = append(m.globals, global{export: export, value: value})
}

// Data places data in memory at offset on instantiation.
func (m *Module) Data(offset uint32, data []byte) {
	m.data = append(m.data, dataSegment{offset: offset, data: data})
}

// Bytes encodes the module in the wasm binary format.
func (m *Module) Bytes() []byte {
	var out bytes.Buffer
	out.Write([]byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00})

	section(&out, 1, len(m.types), func(b *bytes.Buffer) {
		for _, t := range m.types {
			b.WriteByte(0x60)
			valTypes(b, t.Params)
			valTypes(b, t.Results)
		}
	})

	numImports := len(m.imports)
	if m.memoryImport != nil {
		numImports++
	}
	section(&out, 2, numImports, func(b *bytes.Buffer) {
		for _, imp := range m.imports {
			name(b, imp.module)
			name(b, imp.name)
			b.WriteByte(0x00)
			uleb(b, imp.typeIdx)
		}
		if m.memoryImport != nil {
			name(b, m.memoryImport[0])
			name(b, m.memoryImport[1])
			b.WriteByte(0x02)
			b.WriteByte(0x00)
			uleb(b, m.memoryPages)
		}
	})

	section(&out, 3, len(m.funcs), func(b *bytes.Buffer) {
		for _, f := range m.funcs {
			uleb(b, f.typeIdx)
		}
	})

	if m.memoryImport == nil && m.memoryPages > 0 {
		section(&out, 5, 1, func(b *bytes.Buffer) {
			b.WriteByte(0x00)
			uleb(b, m.memoryPages)
		})
	}

	section(&out, 6, len(m.globals), func(b *bytes.Buffer) {
		for _, g := range m.globals {
			b.WriteByte(byte(I32))
			b.WriteByte(0x00)
			b.Write(I32Const(g.value))
			b.WriteByte(0x0B)
		}
	})

	var exports []func(b *bytes.Buffer)
	for i, f := range m.funcs {
		if f.export == "" {
			continue
		}
		idx, exp := uint32(len(m.imports)+i), f.export
		exports = append(exports, func(b *bytes.Buffer) { export(b, exp, 0x00, idx) })
	}
	if m.memoryExport != "" {
		exports = append(exports, func(b *bytes.Buffer) { export(b, m.memoryExport, 0x02, 0) })
	}
	for i, g := range m.globals {
		idx, exp := uint32(i), g.export
		exports = append(exports, func(b *bytes.Buffer) { export(b, exp, 0x03, idx) })
	}
	section(&out, 7, len(exports), func(b *bytes.Buffer) {
		for _, e := range exports {
			e(b)
		}
	})

	section(&out, 10, len(m.funcs), func(b *bytes.Buffer) {
		for _, f := range m.funcs {
			var fn bytes.Buffer
			uleb(&fn, uint32(len(f.locals)))
			for _, l := range f.locals {
				uleb(&fn, 1)
				fn.WriteByte(byte(l))
			}
			fn.Write(f.body)
			fn.WriteByte(0x0B)
			uleb(b, uint32(fn.Len()))
			b.Write(fn.Bytes())
		}
	})

	section(&out, 11, len(m.data), func(b *bytes.Buffer) {
		for _, d := range m.data {
			b.WriteByte(0x00)
			b.Write(I32Const(int32(d.offset)))
			b.WriteByte(0x0B)
			uleb(b, uint32(len(d.data)))
			b.Write(d.data)
		}
	})

	return out.Bytes()
}

// section writes a vector section, skipping it when it has no entries.
func section(out *bytes.Buffer, id byte, count int, fill func(b *bytes.Buffer)) {
	if count == 0 {
		return
	}
	var body bytes.Buffer
	uleb(&body, uint32(count))
	fill(&body)
	out.WriteByte(id)
	uleb(out, uint32(body.Len()))
	out.Write(body.Bytes())
}

func valTypes(b *bytes.Buffer, ts []ValType) {
	uleb(b, uint32(len(ts)))
	for _, t := range ts {
		b.WriteByte(byte(t))
	}
}

func name(b *bytes.Buffer, s string) {
	uleb(b, uint32(len(s)))
	b.WriteString(s)
}

func export(b *bytes.Buffer, n string, kind byte, idx uint32) {
	name(b, n)
	b.WriteByte(kind)
	uleb(b, idx)
}

func uleb(b *bytes.Buffer, v uint32) {
	var buf [binary.MaxVarintLen32]byte
	n := binary.PutUvarint(buf[:], uint64(v))
	b.Write(buf[:n])
}

func sleb(v int64) []byte {
	var out []byte
	for {
		c := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(out, c)
		}
		out = append(out, c|0x80)
	}
}

func op(code byte, imm uint32) []byte {
	var b bytes.Buffer
	b.WriteByte(code)
	uleb(&b, imm)
	return b.Bytes()
}

// Instructions.

func LocalGet(idx uint32) []byte { return op(0x20, idx) }
func LocalSet(idx uint32) []byte { return op(0x21, idx) }
func Call(idx uint32) []byte     { return op(0x10, idx) }
func I32Const(v int32) []byte    { return append([]byte{0x41}, sleb(int64(v))...) }
func I64Const(v int64) []byte    { return append([]byte{0x42}, sleb(v)...) }

// I32Load8U loads one byte at the address on the stack plus offset.
func I32Load8U(offset uint32) []byte {
	return append([]byte{0x2D, 0x00}, op(0, offset)[1:]...)
}

var (
	I32Add        = []byte{0x6A}
	I32ShrU       = []byte{0x76}
	I64ExtendI32U = []byte{0xAD}
	I64Shl        = []byte{0x86}
	I64Or         = []byte{0x84}
	Drop          = []byte{0x1A}
	Unreachable   = []byte{0x00}
)
