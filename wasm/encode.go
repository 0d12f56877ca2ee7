package wasm

import (
	"encoding/binary"
	"math"
)

// Binary encoding primitives and the module builder. Only the sections
// this backend emits are supported: type, import, function, global,
// export and code.

// Value types.
const (
	I32 = byte(0x7f)
	F32 = byte(0x7d)
)

// Export kinds.
const (
	KindFunc   = byte(0x00)
	KindGlobal = byte(0x03)
)

// Instruction opcodes used by the code generator.
const (
	opIf        = byte(0x04)
	opElse      = byte(0x05)
	opEnd       = byte(0x0b)
	opCall      = byte(0x10)
	opLocalGet  = byte(0x20)
	opGlobalGet = byte(0x23)
	opGlobalSet = byte(0x24)
	opI32Const  = byte(0x41)
	opF32Const  = byte(0x43)
	opI32Eq     = byte(0x46)
	opI32Ne     = byte(0x47)
	opI32LtU    = byte(0x49)
	opI32GtU    = byte(0x4b)
	opF32Eq     = byte(0x5b)
	opF32Ne     = byte(0x5c)
	opF32Lt     = byte(0x5d)
	opF32Gt     = byte(0x5e)
	opI32Add    = byte(0x6a)
	opI32Mul    = byte(0x6c)
	opF32Add    = byte(0x92)
	opF32Mul    = byte(0x94)
)

const blockVoid = byte(0x40)

func appendU32(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
			continue
		}
		return append(buf, b)
	}
}

func appendS32(buf []byte, v int32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		buf = append(buf, b)
		if done {
			return buf
		}
	}
}

func appendF32(buf []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
}

func appendName(buf []byte, s string) []byte {
	buf = appendU32(buf, uint32(len(s)))
	return append(buf, s...)
}

type funcType struct {
	params  []byte
	results []byte
}

func (t funcType) equal(o funcType) bool {
	if len(t.params) != len(o.params) || len(t.results) != len(o.results) {
		return false
	}
	for i := range t.params {
		if t.params[i] != o.params[i] {
			return false
		}
	}
	for i := range t.results {
		if t.results[i] != o.results[i] {
			return false
		}
	}
	return true
}

type imported struct {
	module string
	name   string
	typ    uint32
}

type global struct {
	valType byte
	init    []byte
}

type export struct {
	name  string
	kind  byte
	index uint32
}

// Module accumulates one binary module. Imported functions occupy the
// low function indices; defined functions follow in the order added.
type Module struct {
	types   []funcType
	imports []imported
	funcs   []uint32
	bodies  [][]byte
	globals []global
	exports []export
}

func (m *Module) typeIndex(t funcType) uint32 {
	for i, existing := range m.types {
		if existing.equal(t) {
			return uint32(i)
		}
	}
	m.types = append(m.types, t)
	return uint32(len(m.types) - 1)
}

// ImportFunc registers an imported function and returns its index in
// function index space. All imports must be registered before the first
// AddFunc.
func (m *Module) ImportFunc(module, name string, params, results []byte) uint32 {
	idx := m.typeIndex(funcType{params: params, results: results})
	m.imports = append(m.imports, imported{module: module, name: name, typ: idx})
	return uint32(len(m.imports) - 1)
}

// AddFunc defines a function with the given signature and body expression
// (without the trailing end opcode) and returns its index.
func (m *Module) AddFunc(params, results []byte, expr []byte) uint32 {
	m.funcs = append(m.funcs, m.typeIndex(funcType{params: params, results: results}))
	body := appendU32(nil, 0) // no local declarations
	body = append(body, expr...)
	body = append(body, opEnd)
	m.bodies = append(m.bodies, body)
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// AddGlobal defines a mutable global initialized by the given constant
// expression (without the trailing end opcode) and returns its index.
func (m *Module) AddGlobal(valType byte, init []byte) uint32 {
	m.globals = append(m.globals, global{valType: valType, init: init})
	return uint32(len(m.globals) - 1)
}

// Export registers an export of the given kind and index.
func (m *Module) Export(name string, kind byte, index uint32) {
	m.exports = append(m.exports, export{name: name, kind: kind, index: index})
}

func section(buf []byte, id byte, content []byte) []byte {
	buf = append(buf, id)
	buf = appendU32(buf, uint32(len(content)))
	return append(buf, content...)
}

// Encode serializes the module in the standard binary format.
func (m *Module) Encode() []byte {
	buf := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

	var c []byte
	c = appendU32(nil, uint32(len(m.types)))
	for _, t := range m.types {
		c = append(c, 0x60)
		c = appendU32(c, uint32(len(t.params)))
		c = append(c, t.params...)
		c = appendU32(c, uint32(len(t.results)))
		c = append(c, t.results...)
	}
	buf = section(buf, 1, c)

	if len(m.imports) > 0 {
		c = appendU32(nil, uint32(len(m.imports)))
		for _, imp := range m.imports {
			c = appendName(c, imp.module)
			c = appendName(c, imp.name)
			c = append(c, KindFunc)
			c = appendU32(c, imp.typ)
		}
		buf = section(buf, 2, c)
	}

	if len(m.funcs) > 0 {
		c = appendU32(nil, uint32(len(m.funcs)))
		for _, typ := range m.funcs {
			c = appendU32(c, typ)
		}
		buf = section(buf, 3, c)
	}

	if len(m.globals) > 0 {
		c = appendU32(nil, uint32(len(m.globals)))
		for _, g := range m.globals {
			c = append(c, g.valType, 0x01) // mutable
			c = append(c, g.init...)
			c = append(c, opEnd)
		}
		buf = section(buf, 6, c)
	}

	if len(m.exports) > 0 {
		c = appendU32(nil, uint32(len(m.exports)))
		for _, e := range m.exports {
			c = appendName(c, e.name)
			c = append(c, e.kind)
			c = appendU32(c, e.index)
		}
		buf = section(buf, 7, c)
	}

	if len(m.bodies) > 0 {
		c = appendU32(nil, uint32(len(m.bodies)))
		for _, body := range m.bodies {
			c = appendU32(c, uint32(len(body)))
			c = append(c, body...)
		}
		buf = section(buf, 10, c)
	}

	return buf
}
