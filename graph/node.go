package graph

// NodeType is the closed tag enumerating every node variant. Values are
// part of the persisted format and must not be renumbered.
type NodeType uint32

const (
	TypeAdd NodeType = iota
	TypeSequence
	TypeSelf
	TypeSetYaw
	TypeConst
	TypeMouseMove
	TypeUpdate
	TypeGetVariable
	TypeSetVariable
	TypeSetProperty
	TypeMul
	TypeCall
	TypeIf
	TypeSwitch
	TypeEq
	TypeNeq
	TypeGt
	TypeLt
	TypeStart
	TypeKeyInput
	TypeGetProperty
)

func (t NodeType) String() string {
	switch t {
	case TypeAdd:
		return "Add"
	case TypeSequence:
		return "Sequence"
	case TypeSelf:
		return "Self"
	case TypeSetYaw:
		return "SetYaw"
	case TypeConst:
		return "Const"
	case TypeMouseMove:
		return "MouseMove"
	case TypeUpdate:
		return "Update"
	case TypeGetVariable:
		return "GetVariable"
	case TypeSetVariable:
		return "SetVariable"
	case TypeSetProperty:
		return "SetProperty"
	case TypeMul:
		return "Mul"
	case TypeCall:
		return "Call"
	case TypeIf:
		return "If"
	case TypeSwitch:
		return "Switch"
	case TypeEq:
		return "Eq"
	case TypeNeq:
		return "Neq"
	case TypeGt:
		return "Gt"
	case TypeLt:
		return "Lt"
	case TypeStart:
		return "Start"
	case TypeKeyInput:
		return "KeyInput"
	case TypeGetProperty:
		return "GetProperty"
	default:
		return "Unknown"
	}
}

// Node is the common surface of every node variant. Variants are plain
// data; code generation lives in the compiler package as an exhaustive
// switch over NodeType.
type Node interface {
	Type() NodeType
	ID() NodeID

	// Diag is the node's compile diagnostic, empty when the last compile
	// had nothing to report for it.
	Diag() string
	SetDiag(msg string)

	base() *nodeBase
}

// nodeBase carries the state shared by all variants: identity, editor
// position (cosmetic, never affects compiled output) and the compile
// diagnostic.
type nodeBase struct {
	id   NodeID
	X, Y float32
	diag string
}

func (b *nodeBase) ID() NodeID         { return b.id }
func (b *nodeBase) Diag() string       { return b.diag }
func (b *nodeBase) SetDiag(msg string) { b.diag = msg }
func (b *nodeBase) base() *nodeBase    { return b }

// ConstNode produces a literal. Bits holds the raw 32-bit value; Kind
// tells the compiler whether it is integer-like or floating-point.
// Output pins: 0 value.
type ConstNode struct {
	nodeBase
	Bits uint32
	Kind ValueType
}

func (n *ConstNode) Type() NodeType { return TypeConst }

// AddNode sums its two data inputs. Input pins: 0 and 1 operands; output
// pin 0 result. The instruction variant follows the first operand's type.
type AddNode struct{ nodeBase }

func (n *AddNode) Type() NodeType { return TypeAdd }

// MulNode multiplies its two data inputs; pins as AddNode.
type MulNode struct{ nodeBase }

func (n *MulNode) Type() NodeType { return TypeMul }

// CompareOp selects the comparison a CompareNode performs.
type CompareOp uint32

const (
	CmpEq CompareOp = iota
	CmpNeq
	CmpGt
	CmpLt
)

// CompareNode compares its two data inputs. It only generates valid code
// as the condition of an If node: the emitted comparison instruction
// conditionally skips the jump the If emits right after it.
// Input pins: 0 and 1 operands.
type CompareNode struct {
	nodeBase
	Op CompareOp
}

func (n *CompareNode) Type() NodeType {
	switch n.Op {
	case CmpNeq:
		return TypeNeq
	case CmpGt:
		return TypeGt
	case CmpLt:
		return TypeLt
	default:
		return TypeEq
	}
}

// IfNode branches control flow on its condition input.
// Input pins: 0 flow, 1 condition. Output pins: 0 true branch, 1 false
// branch.
type IfNode struct{ nodeBase }

func (n *IfNode) Type() NodeType { return TypeIf }

// SwitchNode statically selects one of its two successor chains at compile
// time; the untaken branch is never compiled.
// Input pins: 0 flow. Output pins: 0 when On, 1 when not.
type SwitchNode struct {
	nodeBase
	On bool
}

func (n *SwitchNode) Type() NodeType { return TypeSwitch }

// SequenceNode runs each connected successor chain in output pin order.
// Input pins: 0 flow. Output pins: 0..OutCount-1 flow.
type SequenceNode struct {
	nodeBase
	OutCount uint32
}

func (n *SequenceNode) Type() NodeType { return TypeSequence }

// SelfNode produces the entity owning the running script.
// Output pins: 0 entity.
type SelfNode struct{ nodeBase }

func (n *SelfNode) Type() NodeType { return TypeSelf }

// GetVariableNode reads a variable table slot. Output pins: 0 value.
type GetVariableNode struct {
	nodeBase
	Var uint32
}

func (n *GetVariableNode) Type() NodeType { return TypeGetVariable }

// SetVariableNode writes its value input into a variable table slot.
// Input pins: 0 flow, 1 value. Output pins: 0 flow.
type SetVariableNode struct {
	nodeBase
	Var uint32
}

func (n *SetVariableNode) Type() NodeType { return TypeSetVariable }

// SetYawNode rotates an entity around the vertical axis via a foreign
// call. Input pins: 0 flow, 1 entity, 2 yaw. Output pins: 0 flow.
type SetYawNode struct{ nodeBase }

func (n *SetYawNode) Type() NodeType { return TypeSetYaw }

// SetPropertyNode writes a float component property via a foreign call.
// The property identity is resolved to a stable hash at compile time.
// Input pins: 0 flow, 1 entity, 2 value. Output pins: 0 flow.
type SetPropertyNode struct {
	nodeBase
	Component string
	Property  string
}

func (n *SetPropertyNode) Type() NodeType { return TypeSetProperty }

// GetPropertyNode reads a float component property via a foreign call.
// Input pins: 0 entity. Output pins: 0 value.
type GetPropertyNode struct {
	nodeBase
	Component string
	Property  string
}

func (n *GetPropertyNode) Type() NodeType { return TypeGetProperty }

// CallNode invokes a reflected component method via a foreign call.
// Input pins: 0 flow, 1 entity, 2..2+ArgCount-1 arguments. Output pins:
// 0 flow.
type CallNode struct {
	nodeBase
	Component string
	Function  string
	ArgCount  uint32
}

func (n *CallNode) Type() NodeType { return TypeCall }

// StartNode is the entry point run once when the script starts.
// Output pins: 0 flow.
type StartNode struct{ nodeBase }

func (n *StartNode) Type() NodeType { return TypeStart }

// UpdateNode is the per-frame entry point.
// Output pins: 0 flow, 1 time delta.
type UpdateNode struct{ nodeBase }

func (n *UpdateNode) Type() NodeType { return TypeUpdate }

// MouseMoveNode is the pointer-move entry point.
// Output pins: 0 flow, 1 delta x, 2 delta y.
type MouseMoveNode struct{ nodeBase }

func (n *MouseMoveNode) Type() NodeType { return TypeMouseMove }

// KeyInputNode is the key-event entry point.
// Output pins: 0 flow, 1 key id.
type KeyInputNode struct{ nodeBase }

func (n *KeyInputNode) Type() NodeType { return TypeKeyInput }

// IsEntryPoint reports whether the node type designates a separately
// invocable function in the compiled artifact.
func IsEntryPoint(t NodeType) bool {
	switch t {
	case TypeStart, TypeUpdate, TypeMouseMove, TypeKeyInput:
		return true
	}
	return false
}

// createNode instantiates the variant for a persisted type tag.
func createNode(t NodeType) Node {
	switch t {
	case TypeAdd:
		return &AddNode{}
	case TypeSequence:
		return &SequenceNode{OutCount: 2}
	case TypeSelf:
		return &SelfNode{}
	case TypeSetYaw:
		return &SetYawNode{}
	case TypeConst:
		return &ConstNode{}
	case TypeMouseMove:
		return &MouseMoveNode{}
	case TypeUpdate:
		return &UpdateNode{}
	case TypeGetVariable:
		return &GetVariableNode{}
	case TypeSetVariable:
		return &SetVariableNode{}
	case TypeSetProperty:
		return &SetPropertyNode{}
	case TypeMul:
		return &MulNode{}
	case TypeCall:
		return &CallNode{}
	case TypeIf:
		return &IfNode{}
	case TypeSwitch:
		return &SwitchNode{}
	case TypeEq:
		return &CompareNode{Op: CmpEq}
	case TypeNeq:
		return &CompareNode{Op: CmpNeq}
	case TypeGt:
		return &CompareNode{Op: CmpGt}
	case TypeLt:
		return &CompareNode{Op: CmpLt}
	case TypeStart:
		return &StartNode{}
	case TypeKeyInput:
		return &KeyInputNode{}
	case TypeGetProperty:
		return &GetPropertyNode{}
	}
	return nil
}

// NewConstInt returns a Const node holding an integer-like literal.
func NewConstInt(v uint32) *ConstNode {
	return &ConstNode{Bits: v, Kind: U32}
}

// NewConstFloat returns a Const node holding a floating-point literal.
func NewConstFloat(v float32) *ConstNode {
	return &ConstNode{Bits: floatBits(v), Kind: Float}
}
