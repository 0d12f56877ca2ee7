// Package vm provides the stack machine that executes compiled visual
// script bytecode.
//
// The machine is single-threaded and synchronous: Call runs from an entry
// offset until an End instruction, with no instruction budget and no
// bounds checking. The compiler in this module is the only trusted
// producer of bytecode; malformed input is undefined behavior by design.
package vm

import (
	"encoding/binary"
	"math"

	"github.com/nodeforge/vscript/op"
)

// StackSize is the fixed evaluation stack capacity in u32 slots.
const StackSize = 1024

// Syscall is the host-supplied callback behind the Syscall instruction:
// the single side-effect boundary of the machine. It reads its arguments
// through the machine's accessors and may mutate arbitrary host state.
// The machine pops argc slots after the callback returns.
type Syscall func(m *Machine, argc uint32)

// Machine executes bytecode against a fixed stack, an external
// environment block and a host syscall callback. A bytecode buffer may be
// shared by many machines, but one machine must not be driven from two
// goroutines.
type Machine struct {
	stack   [StackSize]uint32
	sp      uint32
	base    uint32 // entry-frame stack pointer, anchors GetArg
	env     []uint32
	syscall Syscall
}

// Option configures a Machine.
type Option func(*Machine)

// WithSyscall sets the host callback invoked by Syscall instructions.
func WithSyscall(fn Syscall) Option {
	return func(m *Machine) {
		m.syscall = fn
	}
}

// New returns a machine bound to the given environment block. The caller
// keeps ownership of env; the machine reads and writes it in place.
func New(env []uint32, opts ...Option) *Machine {
	m := &Machine{env: env}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get reads a u32: non-negative indices address environment slots,
// negative indices address the live stack relative to the current top.
func (m *Machine) Get(idx int32) uint32 {
	if idx >= 0 {
		return m.env[idx]
	}
	return m.stack[int32(m.sp)+idx]
}

// GetFloat reads a float32 through Get.
func (m *Machine) GetFloat(idx int32) float32 {
	return math.Float32frombits(m.Get(idx))
}

// Get64 reads a u64 spanning two consecutive slots, low word first.
func (m *Machine) Get64(idx int32) uint64 {
	lo := m.Get(idx)
	hi := m.Get(idx + 1)
	return uint64(lo) | uint64(hi)<<32
}

// Push pushes a u32 onto the stack.
func (m *Machine) Push(v uint32) {
	m.stack[m.sp] = v
	m.sp++
}

// PushFloat pushes a float32 onto the stack.
func (m *Machine) PushFloat(v float32) {
	m.Push(math.Float32bits(v))
}

// Return arranges for v to be the value left on top of the stack once the
// machine pops the syscall's declared argument count. It must be called
// at most once per syscall, after all arguments have been read.
func (m *Machine) Return(argc uint32, v uint32) {
	m.stack[m.sp-argc] = v
	m.sp++
}

// ReturnFloat is Return for a float32 result.
func (m *Machine) ReturnFloat(argc uint32, v float32) {
	m.Return(argc, math.Float32bits(v))
}

// Env exposes the environment block, for host callbacks.
func (m *Machine) Env() []uint32 {
	return m.env
}

// Reset discards the stack. Hosts call it after an entry-point Call whose
// arguments they pushed themselves.
func (m *Machine) Reset() {
	m.sp = 0
}

// Call executes bytecode from the given entry byte offset until an End
// instruction. Arguments for the entry point, if any, must be pushed
// before the call; during execution they are addressable through GetArg's
// negative indices, anchored at the entry-frame stack pointer.
func (m *Machine) Call(bytecode []byte, entry uint32) {
	ip := int(entry)
	sp := m.sp
	m.base = sp

	u32 := func() uint32 {
		v := binary.LittleEndian.Uint32(bytecode[ip:])
		ip += 4
		return v
	}

	// The comparison convention: a comparison that holds skips the
	// immediately following instruction, which is always a Jmp.
	skip := op.Width(op.Jmp)

	for {
		code := op.Code(bytecode[ip])
		ip++
		switch code {
		case op.End:
			m.sp = sp
			return
		case op.Syscall:
			argc := u32()
			m.sp = sp
			m.syscall(m, argc)
			sp = m.sp
			sp -= argc
		case op.Const32:
			m.stack[sp] = u32()
			sp++
		case op.Const64:
			v := binary.LittleEndian.Uint64(bytecode[ip:])
			ip += 8
			m.stack[sp] = uint32(v)
			m.stack[sp+1] = uint32(v >> 32)
			sp += 2
		case op.Pop:
			sp--
		case op.Eq:
			sp -= 2
			if m.stack[sp] == m.stack[sp+1] {
				ip += skip
			}
		case op.Neq:
			sp -= 2
			if m.stack[sp] != m.stack[sp+1] {
				ip += skip
			}
		case op.Lt:
			sp -= 2
			if m.stack[sp] < m.stack[sp+1] {
				ip += skip
			}
		case op.LtF:
			sp -= 2
			if math.Float32frombits(m.stack[sp]) < math.Float32frombits(m.stack[sp+1]) {
				ip += skip
			}
		case op.Gt:
			sp -= 2
			if m.stack[sp] > m.stack[sp+1] {
				ip += skip
			}
		case op.GtF:
			sp -= 2
			if math.Float32frombits(m.stack[sp]) > math.Float32frombits(m.stack[sp+1]) {
				ip += skip
			}
		case op.Add:
			sp--
			m.stack[sp-1] += m.stack[sp]
		case op.AddF:
			sp--
			a := math.Float32frombits(m.stack[sp-1])
			b := math.Float32frombits(m.stack[sp])
			m.stack[sp-1] = math.Float32bits(a + b)
		case op.Mul:
			sp--
			m.stack[sp-1] *= m.stack[sp]
		case op.MulF:
			sp--
			a := math.Float32frombits(m.stack[sp-1])
			b := math.Float32frombits(m.stack[sp])
			m.stack[sp-1] = math.Float32bits(a * b)
		case op.Jmp:
			ip = int(u32())
		case op.Call:
			target := u32()
			m.stack[sp] = uint32(ip)
			sp++
			ip = int(target)
		case op.Ret:
			sp--
			ip = int(m.stack[sp])
		case op.GetEnv:
			m.stack[sp] = m.env[u32()]
			sp++
		case op.SetEnv:
			idx := u32()
			sp--
			m.env[idx] = m.stack[sp]
		case op.GetArg:
			idx := int32(u32())
			if idx < 0 {
				m.stack[sp] = m.stack[int32(m.base)+idx]
			} else {
				m.stack[sp] = m.stack[idx]
			}
			sp++
		}
	}
}
