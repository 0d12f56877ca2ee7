package asm

import (
	"encoding/binary"

	"github.com/nodeforge/vscript/op"
)

// Instruction is one decoded instruction: its byte offset, opcode and raw
// operand value (zero-extended; meaningless for zero-operand opcodes).
type Instruction struct {
	Offset  int
	Op      op.Code
	Operand uint64
}

// Iter walks an encoded instruction stream using the shared operand-layout
// table. It is used by the assembler's patch pass, the disassembler and
// tests; the VM has its own inlined decode loop over the same table.
type Iter struct {
	buf []byte
	pos int
}

// NewIter returns an iterator over the given bytecode.
func NewIter(buf []byte) *Iter {
	return &Iter{buf: buf}
}

// Next decodes the next instruction. It returns false at the end of the
// stream or when the remaining bytes cannot hold the declared operand.
func (it *Iter) Next() (Instruction, bool) {
	if it.pos >= len(it.buf) {
		return Instruction{}, false
	}
	code := op.Code(it.buf[it.pos])
	width := op.Width(code)
	if it.pos+width > len(it.buf) {
		return Instruction{}, false
	}
	ins := Instruction{Offset: it.pos, Op: code}
	switch op.GetInfo(code).OperandWidth {
	case 4:
		ins.Operand = uint64(binary.LittleEndian.Uint32(it.buf[it.pos+1:]))
	case 8:
		ins.Operand = binary.LittleEndian.Uint64(it.buf[it.pos+1:])
	}
	it.pos += width
	return ins, true
}
