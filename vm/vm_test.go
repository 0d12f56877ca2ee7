package vm

import (
	"math"
	"testing"

	"github.com/nodeforge/vscript/asm"
	"github.com/stretchr/testify/require"
)

func finalize(t *testing.T, w *asm.Writer) []byte {
	t.Helper()
	buf, err := w.Finalize()
	require.Nil(t, err)
	return buf
}

func TestIntAddMul(t *testing.T) {
	w := asm.NewWriter()
	w.Const(2)
	w.Const(3)
	w.Add()
	w.Const(4)
	w.Mul()
	w.SetEnv(0)
	w.End()

	env := make([]uint32, 1)
	m := New(env)
	m.Call(finalize(t, w), 0)
	require.Equal(t, uint32(20), env[0])
}

func TestFloatAddMul(t *testing.T) {
	w := asm.NewWriter()
	w.ConstFloat(1.5)
	w.ConstFloat(2.25)
	w.AddF()
	w.ConstFloat(2)
	w.MulF()
	w.SetEnv(0)
	w.End()

	env := make([]uint32, 1)
	m := New(env)
	m.Call(finalize(t, w), 0)
	require.Equal(t, float32(7.5), math.Float32frombits(env[0]))
}

func TestStackBalancedAfterCall(t *testing.T) {
	w := asm.NewWriter()
	w.Const(1)
	w.Pop()
	w.End()

	m := New(nil)
	m.Call(finalize(t, w), 0)
	require.Equal(t, uint32(0), m.sp)
}

// Comparisons do not jump themselves; they skip the following Jmp when
// the comparison holds.
func TestComparisonSkipConvention(t *testing.T) {
	tests := []struct {
		name string
		emit func(w *asm.Writer)
		a, b uint32
		want uint32 // env[0]: 1 when comparison held, 0 otherwise
	}{
		{"eq true", (*asm.Writer).Eq, 5, 5, 1},
		{"eq false", (*asm.Writer).Eq, 5, 6, 0},
		{"neq true", (*asm.Writer).Neq, 5, 6, 1},
		{"neq false", (*asm.Writer).Neq, 5, 5, 0},
		{"gt true", (*asm.Writer).Gt, 7, 3, 1},
		{"gt false", (*asm.Writer).Gt, 3, 7, 0},
		{"lt true", (*asm.Writer).Lt, 3, 7, 1},
		{"lt false", (*asm.Writer).Lt, 7, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := asm.NewWriter()
			taken := w.CreateLabel()
			w.Const(tt.a)
			w.Const(tt.b)
			tt.emit(w)
			w.Jmp(taken) // skipped when the comparison holds
			w.Const(1)
			w.SetEnv(0)
			w.End()
			w.PlaceLabel(taken)
			w.Const(0)
			w.SetEnv(0)
			w.End()

			env := make([]uint32, 1)
			env[0] = 99
			m := New(env)
			m.Call(finalize(t, w), 0)
			require.Equal(t, tt.want, env[0])
		})
	}
}

func TestFloatComparisonsSymmetric(t *testing.T) {
	tests := []struct {
		name string
		emit func(w *asm.Writer)
		a, b float32
		want uint32
	}{
		{"gtf true", (*asm.Writer).GtF, 2.5, 1.5, 1},
		{"gtf false", (*asm.Writer).GtF, 1.5, 2.5, 0},
		{"ltf true", (*asm.Writer).LtF, 1.5, 2.5, 1},
		{"ltf false", (*asm.Writer).LtF, 2.5, 1.5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := asm.NewWriter()
			taken := w.CreateLabel()
			w.ConstFloat(tt.a)
			w.ConstFloat(tt.b)
			tt.emit(w)
			w.Jmp(taken)
			w.Const(1)
			w.SetEnv(0)
			w.End()
			w.PlaceLabel(taken)
			w.Const(0)
			w.SetEnv(0)
			w.End()

			env := make([]uint32, 1)
			m := New(env)
			m.Call(finalize(t, w), 0)
			require.Equal(t, tt.want, env[0])

			// Both float comparisons must leave the stack balanced.
			require.Equal(t, uint32(0), m.sp)
		})
	}
}

func TestCallRet(t *testing.T) {
	w := asm.NewWriter()
	fn := w.CreateLabel()
	w.Call(fn)
	w.Const(1)
	w.SetEnv(1)
	w.End()
	w.PlaceLabel(fn)
	w.Const(42)
	w.SetEnv(0)
	w.Ret()

	env := make([]uint32, 2)
	m := New(env)
	m.Call(finalize(t, w), 0)
	require.Equal(t, uint32(42), env[0])
	// Execution resumed after the call site.
	require.Equal(t, uint32(1), env[1])
	require.Equal(t, uint32(0), m.sp)
}

func TestEnvGetSet(t *testing.T) {
	w := asm.NewWriter()
	w.GetEnv(0)
	w.GetEnv(1)
	w.Add()
	w.SetEnv(2)
	w.End()

	env := []uint32{10, 32, 0}
	m := New(env)
	m.Call(finalize(t, w), 0)
	require.Equal(t, uint32(42), env[2])
}

func TestConst64OccupiesTwoSlots(t *testing.T) {
	w := asm.NewWriter()
	w.Const64(0x0000000700000003)
	w.Add() // low + high words
	w.SetEnv(0)
	w.End()

	env := make([]uint32, 1)
	m := New(env)
	m.Call(finalize(t, w), 0)
	require.Equal(t, uint32(10), env[0])
}

func TestSyscallArgPopping(t *testing.T) {
	w := asm.NewWriter()
	w.Const(7) // op id by convention
	w.Const(100)
	w.Const(200)
	w.Syscall(3)
	w.End()

	var gotOp, gotA, gotB uint32
	var gotArgc uint32
	m := New(nil, WithSyscall(func(m *Machine, argc uint32) {
		gotArgc = argc
		gotOp = m.Get(-int32(argc))
		gotA = m.Get(-2)
		gotB = m.Get(-1)
	}))
	m.Call(finalize(t, w), 0)
	require.Equal(t, uint32(3), gotArgc)
	require.Equal(t, uint32(7), gotOp)
	require.Equal(t, uint32(100), gotA)
	require.Equal(t, uint32(200), gotB)
	require.Equal(t, uint32(0), m.sp)
}

func TestSyscallReturnValue(t *testing.T) {
	w := asm.NewWriter()
	w.Const(3) // op id
	w.Const(5) // argument
	w.Syscall(2)
	w.SetEnv(0) // consume the returned value
	w.End()

	m := New(make([]uint32, 1), WithSyscall(func(m *Machine, argc uint32) {
		arg := m.Get(-1)
		m.Return(argc, arg*arg)
	}))
	env := m.Env()
	m.Call(finalize(t, w), 0)
	require.Equal(t, uint32(25), env[0])
	require.Equal(t, uint32(0), m.sp)
}

func TestGetArgReadsEntryArguments(t *testing.T) {
	w := asm.NewWriter()
	w.GetArg(-2)
	w.GetArg(-1)
	w.Add()
	w.SetEnv(0)
	w.End()

	env := make([]uint32, 1)
	m := New(env)
	m.Push(30)
	m.Push(12)
	m.Call(finalize(t, w), 0)
	require.Equal(t, uint32(42), env[0])
	// Entry arguments remain for the host to discard.
	require.Equal(t, uint32(2), m.sp)
}

func TestGetArgAnchorsAtEntryFrame(t *testing.T) {
	// The anchor must be the entry-frame sp, not the live top: push
	// values on the stack before reading the argument.
	w := asm.NewWriter()
	w.Const(1000)
	w.GetArg(-1)
	w.SetEnv(0)
	w.Pop()
	w.End()

	env := make([]uint32, 1)
	m := New(env)
	m.Push(77)
	m.Call(finalize(t, w), 0)
	require.Equal(t, uint32(77), env[0])
}

func TestAccessorsFromHost(t *testing.T) {
	env := []uint32{math.Float32bits(2.5), 9}
	m := New(env)
	m.PushFloat(1.25)
	require.Equal(t, float32(2.5), m.GetFloat(0))
	require.Equal(t, uint32(9), m.Get(1))
	require.Equal(t, float32(1.25), m.GetFloat(-1))
	require.Equal(t, env, m.Env())
}
