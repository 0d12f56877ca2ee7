// Package asm provides a bytecode writer for the vscript virtual machine.
//
// The writer emits instructions into a fixed-capacity buffer. Jump and call
// targets are written as symbolic label ids; Finalize runs a second pass
// that re-decodes the instruction stream and overwrites every label id with
// the label's resolved byte offset. Operand layouts come from the op
// package's shared table, so the patch pass and the VM decode loop cannot
// drift apart.
package asm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nodeforge/vscript/op"
)

// DefaultCapacity is the buffer capacity used by NewWriter.
const DefaultCapacity = 4096

// Unplaced marks a label that was created but not yet placed.
const Unplaced = ^uint32(0)

// Label is a symbolic jump or call target, resolved to a byte offset
// during Finalize.
type Label uint32

// Writer accumulates encoded instructions and label placements.
type Writer struct {
	buf       []byte
	capacity  int
	labels    []uint32
	truncated bool
}

// NewWriter returns a writer with the default capacity.
func NewWriter() *Writer {
	return NewWriterCapacity(DefaultCapacity)
}

// NewWriterCapacity returns a writer bounded by the given capacity in
// bytes. Writes past the capacity are dropped and latched in Truncated.
func NewWriterCapacity(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity), capacity: capacity}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Truncated reports whether any emit was dropped for lack of capacity.
func (w *Writer) Truncated() bool {
	return w.truncated
}

// CreateLabel reserves a new, not yet placed label.
func (w *Writer) CreateLabel() Label {
	w.labels = append(w.labels, Unplaced)
	return Label(len(w.labels) - 1)
}

// PlaceLabel records the current write position as the label's offset.
// Placing may happen after instructions that already reference the label;
// forward references are resolved by Finalize.
func (w *Writer) PlaceLabel(l Label) {
	w.labels[l] = uint32(len(w.buf))
}

func (w *Writer) emit(code op.Code) {
	if len(w.buf)+op.Width(code) > w.capacity {
		w.truncated = true
		return
	}
	w.buf = append(w.buf, byte(code))
}

func (w *Writer) emitU32(code op.Code, arg uint32) {
	if len(w.buf)+op.Width(code) > w.capacity {
		w.truncated = true
		return
	}
	w.buf = append(w.buf, byte(code))
	w.buf = binary.LittleEndian.AppendUint32(w.buf, arg)
}

func (w *Writer) emitU64(code op.Code, arg uint64) {
	if len(w.buf)+op.Width(code) > w.capacity {
		w.truncated = true
		return
	}
	w.buf = append(w.buf, byte(code))
	w.buf = binary.LittleEndian.AppendUint64(w.buf, arg)
}

// End emits the instruction that stops execution.
func (w *Writer) End() { w.emit(op.End) }

// Pop emits an instruction that discards the top of stack.
func (w *Writer) Pop() { w.emit(op.Pop) }

// Add emits integer addition: pop two, push the sum.
func (w *Writer) Add() { w.emit(op.Add) }

// AddF emits float addition.
func (w *Writer) AddF() { w.emit(op.AddF) }

// Mul emits integer multiplication: pop two, push the product.
func (w *Writer) Mul() { w.emit(op.Mul) }

// MulF emits float multiplication.
func (w *Writer) MulF() { w.emit(op.MulF) }

// Ret emits a return: pop an address and jump to it.
func (w *Writer) Ret() { w.emit(op.Ret) }

// Eq, Neq, Lt, LtF, Gt and GtF emit comparisons. Each pops two values and
// skips the following instruction, which must be a Jmp, when the
// comparison holds.
func (w *Writer) Eq()  { w.emit(op.Eq) }
func (w *Writer) Neq() { w.emit(op.Neq) }
func (w *Writer) Lt()  { w.emit(op.Lt) }
func (w *Writer) LtF() { w.emit(op.LtF) }
func (w *Writer) Gt()  { w.emit(op.Gt) }
func (w *Writer) GtF() { w.emit(op.GtF) }

// Jmp emits an unconditional jump to the label.
func (w *Writer) Jmp(l Label) { w.emitU32(op.Jmp, uint32(l)) }

// Call emits a call: push the return address and jump to the label.
func (w *Writer) Call(l Label) { w.emitU32(op.Call, uint32(l)) }

// GetEnv emits a push of environment[idx].
func (w *Writer) GetEnv(idx uint32) { w.emitU32(op.GetEnv, idx) }

// SetEnv emits a pop into environment[idx].
func (w *Writer) SetEnv(idx uint32) { w.emitU32(op.SetEnv, idx) }

// GetArg emits a push of an entry-frame stack slot. Negative indices
// address arguments the host pushed before invoking the entry point.
func (w *Writer) GetArg(idx int32) { w.emitU32(op.GetArg, uint32(idx)) }

// Syscall emits a host callback invocation with the given argument count.
// The arguments, including the operation identifier, must already be on
// the stack; the VM pops them after the callback returns.
func (w *Writer) Syscall(argc uint32) { w.emitU32(op.Syscall, argc) }

// Const emits a push of a 32-bit immediate.
func (w *Writer) Const(v uint32) { w.emitU32(op.Const32, v) }

// ConstFloat emits a push of a float32 immediate.
func (w *Writer) ConstFloat(v float32) { w.emitU32(op.Const32, math.Float32bits(v)) }

// Const64 emits a push of a 64-bit immediate, occupying two stack slots.
func (w *Writer) Const64(v uint64) { w.emitU64(op.Const64, v) }

// Finalize runs the mandatory patch pass: it re-decodes the written
// instruction stream and replaces every label-id operand with the label's
// resolved byte offset. It fails if the buffer overflowed its capacity or
// if a referenced label was never placed.
func (w *Writer) Finalize() ([]byte, error) {
	if w.truncated {
		return nil, fmt.Errorf("bytecode exceeds capacity of %d bytes", w.capacity)
	}
	it := NewIter(w.buf)
	for {
		ins, ok := it.Next()
		if !ok {
			break
		}
		info := op.GetInfo(ins.Op)
		if info.Name == "" {
			return nil, fmt.Errorf("unknown opcode %d at offset %d", ins.Op, ins.Offset)
		}
		if !info.IsLabel {
			continue
		}
		id := uint32(ins.Operand)
		if int(id) >= len(w.labels) {
			return nil, fmt.Errorf("undefined label %d at offset %d", id, ins.Offset)
		}
		offset := w.labels[id]
		if offset == Unplaced {
			return nil, fmt.Errorf("label %d referenced at offset %d was never placed", id, ins.Offset)
		}
		binary.LittleEndian.PutUint32(w.buf[ins.Offset+1:], offset)
	}
	return w.buf, nil
}
