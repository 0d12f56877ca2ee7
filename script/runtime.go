package script

import (
	"math"

	"github.com/nodeforge/vscript/vm"
	"github.com/rs/zerolog"
)

// World is the host side of the foreign-call contract. Property and
// method identities arrive as the stable hashes computed at compile time;
// the world resolves them through its own reflection registry.
type World interface {
	SetYaw(entity uint32, yaw float32)
	SetPropertyFloat(entity, property uint32, value float32)
	GetPropertyFloat(entity, property uint32) float32
	CallMethod(entity, method uint32, args []uint32)
}

// Dispatch adapts a World into the VM's syscall callback. The operation
// identifier is the first pushed argument, found at stack index -argc.
func Dispatch(w World) vm.Syscall {
	return func(m *vm.Machine, argc uint32) {
		switch SyscallOp(m.Get(-int32(argc))) {
		case SyscallSetProperty:
			w.SetPropertyFloat(m.Get(-3), m.Get(-2), m.GetFloat(-1))
		case SyscallSetYaw:
			w.SetYaw(m.Get(-2), m.GetFloat(-1))
		case SyscallCallMethod:
			n := int32(argc) - 3
			args := make([]uint32, n)
			for i := int32(0); i < n; i++ {
				args[i] = m.Get(i - n)
			}
			w.CallMethod(m.Get(-int32(argc)+2), m.Get(-int32(argc)+1), args)
		case SyscallGetProperty:
			m.ReturnFloat(argc, w.GetPropertyFloat(m.Get(-2), m.Get(-1)))
		}
	}
}

// Instance is one compiled script bound to one entity: its own
// environment block and machine over a shared artifact.
type Instance struct {
	art *Artifact
	m   *vm.Machine
	env []uint32
}

// Runtime owns the script instances of a world and routes host events to
// their entry points.
type Runtime struct {
	world     World
	log       zerolog.Logger
	instances map[uint32]*Instance
	order     []uint32
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithLogger sets the runtime's logger.
func WithLogger(log zerolog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.log = log
	}
}

// NewRuntime returns a runtime dispatching foreign calls to the world.
func NewRuntime(world World, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		world:     world,
		log:       zerolog.Nop(),
		instances: map[uint32]*Instance{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach binds the artifact to an entity and runs its start entry point.
// Attaching over an existing instance replaces it.
func (r *Runtime) Attach(entity uint32, art *Artifact) *Instance {
	env := make([]uint32, art.EnvironmentSize())
	env[EnvSelf] = entity
	inst := &Instance{
		art: art,
		env: env,
		m:   vm.New(env, vm.WithSyscall(Dispatch(r.world))),
	}
	if _, exists := r.instances[entity]; !exists {
		r.order = append(r.order, entity)
	}
	r.instances[entity] = inst
	r.log.Debug().Uint32("entity", entity).Msg("script attached")
	if art.Start != NoEntry {
		inst.m.Call(art.Bytecode, art.Start)
	}
	return inst
}

// Detach removes the entity's instance, if any.
func (r *Runtime) Detach(entity uint32) {
	if _, ok := r.instances[entity]; !ok {
		return
	}
	delete(r.instances, entity)
	for i, id := range r.order {
		if id == entity {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.log.Debug().Uint32("entity", entity).Msg("script detached")
}

// Instance returns the entity's instance or nil.
func (r *Runtime) Instance(entity uint32) *Instance {
	return r.instances[entity]
}

// Env exposes an instance's environment block.
func (i *Instance) Env() []uint32 {
	return i.env
}

// Variable reads a variable slot by table index.
func (i *Instance) Variable(idx uint32) uint32 {
	return i.env[EnvVariables+idx]
}

// VariableFloat reads a variable slot as a float32.
func (i *Instance) VariableFloat(idx uint32) float32 {
	return math.Float32frombits(i.Variable(idx))
}

// Update advances every instance by td, in attach order.
func (r *Runtime) Update(td float32) {
	for _, entity := range r.order {
		inst := r.instances[entity]
		if inst.art.Update == NoEntry {
			continue
		}
		inst.env[EnvTimeDelta] = math.Float32bits(td)
		inst.m.Call(inst.art.Bytecode, inst.art.Update)
	}
}

// OnMouseMove delivers a pointer-move event to every instance.
func (r *Runtime) OnMouseMove(dx, dy float32) {
	for _, entity := range r.order {
		inst := r.instances[entity]
		if inst.art.MouseMove == NoEntry {
			continue
		}
		inst.m.PushFloat(dx)
		inst.m.PushFloat(dy)
		inst.m.Call(inst.art.Bytecode, inst.art.MouseMove)
		inst.m.Reset()
	}
}

// OnKeyEvent delivers a key event to every instance.
func (r *Runtime) OnKeyEvent(key uint32) {
	for _, entity := range r.order {
		inst := r.instances[entity]
		if inst.art.KeyInput == NoEntry {
			continue
		}
		inst.m.Push(key)
		inst.m.Call(inst.art.Bytecode, inst.art.KeyInput)
		inst.m.Reset()
	}
}
