// Package script defines the compiled-artifact format and the runtime
// contract between compiled bytecode and its host: the environment slot
// layout, the foreign-call operation identifiers, and the stable property
// hashing used to bind reflected component properties at compile time.
package script

import (
	"hash/fnv"
)

// Environment slot layout. The environment is the flat, index-addressed
// block of state outside the evaluation stack. Slot 2 is reserved.
const (
	EnvSelf      = 0 // entity owning the running script
	EnvWorld     = 1 // opaque host handle
	EnvTimeDelta = 3 // per-frame delta, float bits
	EnvVariables = 4 // first script variable slot
)

// SyscallOp identifies a foreign-call operation. By convention the op id
// is the first value pushed for a Syscall instruction, so the host
// dispatcher finds it at stack index -argc.
type SyscallOp uint32

const (
	SyscallSetProperty SyscallOp = 0
	SyscallSetYaw      SyscallOp = 1
	SyscallCallMethod  SyscallOp = 2
	SyscallGetProperty SyscallOp = 3
)

func (s SyscallOp) String() string {
	switch s {
	case SyscallSetProperty:
		return "set_property"
	case SyscallSetYaw:
		return "set_yaw"
	case SyscallCallMethod:
		return "call_method"
	case SyscallGetProperty:
		return "get_property"
	default:
		return "unknown"
	}
}

// PropertyHash returns the stable hash binding a (component, property)
// pair at compile time. The host resolves the hash back to a property
// through its reflection registry.
func PropertyHash(component, property string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(component))
	h.Write([]byte{'.'})
	h.Write([]byte(property))
	return h.Sum32()
}

// MethodHash returns the stable hash binding a (component, function) pair
// for call-component-method foreign calls.
func MethodHash(component, function string) uint32 {
	return PropertyHash(component, function)
}
