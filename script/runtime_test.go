package script

import (
	"math"
	"testing"

	"github.com/nodeforge/vscript/asm"
	"github.com/nodeforge/vscript/graph"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	op       SyscallOp
	entity   uint32
	property uint32
	value    float32
	args     []uint32
}

type fakeWorld struct {
	calls      []recordedCall
	properties map[uint32]float32
}

func (w *fakeWorld) SetYaw(entity uint32, yaw float32) {
	w.calls = append(w.calls, recordedCall{op: SyscallSetYaw, entity: entity, value: yaw})
}

func (w *fakeWorld) SetPropertyFloat(entity, property uint32, value float32) {
	w.calls = append(w.calls, recordedCall{op: SyscallSetProperty, entity: entity, property: property, value: value})
}

func (w *fakeWorld) GetPropertyFloat(entity, property uint32) float32 {
	w.calls = append(w.calls, recordedCall{op: SyscallGetProperty, entity: entity, property: property})
	return w.properties[property]
}

func (w *fakeWorld) CallMethod(entity, method uint32, args []uint32) {
	w.calls = append(w.calls, recordedCall{op: SyscallCallMethod, entity: entity, property: method, args: args})
}

func finalize(t *testing.T, w *asm.Writer) []byte {
	t.Helper()
	buf, err := w.Finalize()
	require.Nil(t, err)
	return buf
}

func variables(n int) []graph.Variable {
	return make([]graph.Variable, n)
}

func TestRuntimeAttachRunsStart(t *testing.T) {
	w := asm.NewWriter()
	w.GetEnv(EnvSelf)
	w.SetEnv(EnvVariables)
	w.End()

	art := &Artifact{
		Start:     0,
		Update:    NoEntry,
		MouseMove: NoEntry,
		KeyInput:  NoEntry,
		Variables: variables(1),
		Bytecode:  finalize(t, w),
	}

	r := NewRuntime(&fakeWorld{})
	inst := r.Attach(42, art)
	require.Equal(t, uint32(42), inst.Variable(0))
	require.Same(t, inst, r.Instance(42))
}

func TestRuntimeUpdateAccumulatesDelta(t *testing.T) {
	w := asm.NewWriter()
	w.GetEnv(EnvVariables)
	w.GetEnv(EnvTimeDelta)
	w.AddF()
	w.SetEnv(EnvVariables)
	w.End()

	art := &Artifact{
		Start:     NoEntry,
		Update:    0,
		MouseMove: NoEntry,
		KeyInput:  NoEntry,
		Variables: variables(1),
		Bytecode:  finalize(t, w),
	}

	r := NewRuntime(&fakeWorld{})
	inst := r.Attach(1, art)
	r.Update(0.5)
	r.Update(0.25)
	require.Equal(t, float32(0.75), inst.VariableFloat(0))
}

func TestRuntimeMouseMoveArguments(t *testing.T) {
	w := asm.NewWriter()
	w.GetArg(-2)
	w.SetEnv(EnvVariables)
	w.GetArg(-1)
	w.SetEnv(EnvVariables + 1)
	w.End()

	art := &Artifact{
		Start:     NoEntry,
		Update:    NoEntry,
		MouseMove: 0,
		KeyInput:  NoEntry,
		Variables: variables(2),
		Bytecode:  finalize(t, w),
	}

	r := NewRuntime(&fakeWorld{})
	inst := r.Attach(1, art)
	r.OnMouseMove(3, -4)
	require.Equal(t, float32(3), inst.VariableFloat(0))
	require.Equal(t, float32(-4), inst.VariableFloat(1))

	// The stack is reset between events, so deltas never accumulate.
	r.OnMouseMove(8, 9)
	require.Equal(t, float32(8), inst.VariableFloat(0))
	require.Equal(t, float32(9), inst.VariableFloat(1))
}

func TestRuntimeKeyEvent(t *testing.T) {
	w := asm.NewWriter()
	w.GetArg(-1)
	w.SetEnv(EnvVariables)
	w.End()

	art := &Artifact{
		Start:     NoEntry,
		Update:    NoEntry,
		MouseMove: NoEntry,
		KeyInput:  0,
		Variables: variables(1),
		Bytecode:  finalize(t, w),
	}

	r := NewRuntime(&fakeWorld{})
	inst := r.Attach(1, art)
	r.OnKeyEvent(65)
	require.Equal(t, uint32(65), inst.Variable(0))
}

func TestDispatchSetYaw(t *testing.T) {
	w := asm.NewWriter()
	w.Const(uint32(SyscallSetYaw))
	w.GetEnv(EnvSelf)
	w.ConstFloat(1.5)
	w.Syscall(3)
	w.End()

	art := &Artifact{
		Start:     0,
		Update:    NoEntry,
		MouseMove: NoEntry,
		KeyInput:  NoEntry,
		Bytecode:  finalize(t, w),
	}

	world := &fakeWorld{}
	NewRuntime(world).Attach(7, art)
	require.Equal(t, []recordedCall{
		{op: SyscallSetYaw, entity: 7, value: 1.5},
	}, world.calls)
}

func TestDispatchSetAndGetProperty(t *testing.T) {
	hash := PropertyHash("camera", "fov")

	w := asm.NewWriter()
	w.Const(uint32(SyscallGetProperty))
	w.GetEnv(EnvSelf)
	w.Const(hash)
	w.Syscall(3)
	w.SetEnv(EnvVariables)

	w.Const(uint32(SyscallSetProperty))
	w.GetEnv(EnvSelf)
	w.Const(hash)
	w.GetEnv(EnvVariables)
	w.Syscall(4)
	w.End()

	art := &Artifact{
		Start:     0,
		Update:    NoEntry,
		MouseMove: NoEntry,
		KeyInput:  NoEntry,
		Variables: variables(1),
		Bytecode:  finalize(t, w),
	}

	world := &fakeWorld{properties: map[uint32]float32{hash: 60}}
	inst := NewRuntime(world).Attach(3, art)
	require.Equal(t, float32(60), inst.VariableFloat(0))
	require.Equal(t, []recordedCall{
		{op: SyscallGetProperty, entity: 3, property: hash},
		{op: SyscallSetProperty, entity: 3, property: hash, value: 60},
	}, world.calls)
}

func TestDispatchCallMethod(t *testing.T) {
	hash := MethodHash("navmesh", "navigate")

	w := asm.NewWriter()
	w.Const(uint32(SyscallCallMethod))
	w.Const(hash)
	w.GetEnv(EnvSelf)
	w.Const(10)
	w.Const(20)
	w.Syscall(5)
	w.End()

	art := &Artifact{
		Start:     0,
		Update:    NoEntry,
		MouseMove: NoEntry,
		KeyInput:  NoEntry,
		Bytecode:  finalize(t, w),
	}

	world := &fakeWorld{}
	NewRuntime(world).Attach(9, art)
	require.Equal(t, []recordedCall{
		{op: SyscallCallMethod, entity: 9, property: hash, args: []uint32{10, 20}},
	}, world.calls)
}

func TestRuntimeDetach(t *testing.T) {
	w := asm.NewWriter()
	w.GetEnv(EnvVariables)
	w.Const(1)
	w.Add()
	w.SetEnv(EnvVariables)
	w.End()

	art := &Artifact{
		Start:     NoEntry,
		Update:    0,
		MouseMove: NoEntry,
		KeyInput:  NoEntry,
		Variables: variables(1),
		Bytecode:  finalize(t, w),
	}

	r := NewRuntime(&fakeWorld{})
	a := r.Attach(1, art)
	b := r.Attach(2, art)
	r.Update(0)
	r.Detach(1)
	r.Update(0)

	require.Equal(t, uint32(1), a.Variable(0))
	require.Equal(t, uint32(2), b.Variable(0))
	require.Nil(t, r.Instance(1))
}

func TestInstanceEnvLayout(t *testing.T) {
	art := &Artifact{
		Start:     NoEntry,
		Update:    NoEntry,
		MouseMove: NoEntry,
		KeyInput:  NoEntry,
		Variables: variables(2),
		Bytecode:  []byte{1}, // single end instruction, never run
	}

	r := NewRuntime(&fakeWorld{})
	inst := r.Attach(5, art)
	require.Len(t, inst.Env(), EnvVariables+2)
	require.Equal(t, uint32(5), inst.Env()[EnvSelf])
	require.Equal(t, float32(0), math.Float32frombits(inst.Env()[EnvTimeDelta]))
}
