// Package compiler generates stack-machine bytecode from a visual script
// graph.
//
// Code generation walks the graph from its entry-point nodes. Data nodes
// emit their operands first and their own instruction last, leaving
// exactly one value on the stack; control nodes emit their side effects
// and then continue into their flow successor. A node that cannot resolve
// a required input or successor records a diagnostic on itself and emits
// nothing for that subtree; the compile as a whole still produces a byte
// buffer. Callers must therefore check the returned diagnostics before
// trusting the artifact.
package compiler

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/nodeforge/vscript/asm"
	"github.com/nodeforge/vscript/graph"
	"github.com/nodeforge/vscript/script"
)

type config struct {
	capacity int
}

// Option configures a compile.
type Option func(*config)

// WithCapacity bounds the bytecode buffer in bytes.
func WithCapacity(n int) Option {
	return func(c *config) {
		c.capacity = n
	}
}

// Compile walks the graph and produces a compiled artifact for the custom
// VM backend. The returned error aggregates every node diagnostic; a
// non-nil error does not mean the artifact is absent, only that it must
// not be trusted. The one hard failure, returning a nil artifact, is the
// bytecode buffer overflowing its capacity or an internal label going
// unplaced.
func Compile(g *graph.Graph, opts ...Option) (*script.Artifact, error) {
	cfg := config{capacity: asm.DefaultCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &compiler{
		g:        g,
		w:        asm.NewWriterCapacity(cfg.capacity),
		visiting: map[graph.NodeID]bool{},
		typing:   map[graph.NodeID]bool{},
	}

	for _, n := range g.Nodes {
		n.SetDiag("")
	}

	art := &script.Artifact{
		Start:     script.NoEntry,
		Update:    script.NoEntry,
		MouseMove: script.NoEntry,
		KeyInput:  script.NoEntry,
	}
	for _, n := range g.Nodes {
		var slot *uint32
		switch n.Type() {
		case graph.TypeStart:
			slot = &art.Start
		case graph.TypeUpdate:
			slot = &art.Update
		case graph.TypeMouseMove:
			slot = &art.MouseMove
		case graph.TypeKeyInput:
			slot = &art.KeyInput
		default:
			continue
		}
		*slot = uint32(c.w.Len())
		if succ, _, ok := g.FlowTarget(n.ID(), 0); ok {
			c.genFlow(succ)
		}
		c.w.End()
	}

	bytecode, err := c.w.Finalize()
	if err != nil {
		return nil, err
	}
	art.Bytecode = bytecode
	art.Variables = append([]graph.Variable(nil), g.Variables...)
	return art, c.diags.ErrorOrNil()
}

type compiler struct {
	g     *graph.Graph
	w     *asm.Writer
	diags *multierror.Error

	// recursion guards: a deserialized graph may contain data-flow
	// cycles the editor would never produce
	visiting map[graph.NodeID]bool
	typing   map[graph.NodeID]bool
}

func (c *compiler) fail(n graph.Node, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if n.Diag() == "" {
		n.SetDiag(msg)
	}
	c.diags = multierror.Append(c.diags, fmt.Errorf("node %d (%s): %s", n.ID(), n.Type(), msg))
}

// genSuccessor continues the flow chain out of the given pin; a missing
// successor simply ends the chain.
func (c *compiler) genSuccessor(n graph.Node, outPin uint8) {
	if succ, _, ok := c.g.FlowTarget(n.ID(), outPin); ok {
		c.genFlow(succ)
	}
}

// genFlow emits a control node's side effects and continues into its
// successor chain.
func (c *compiler) genFlow(n graph.Node) {
	switch n := n.(type) {
	case *graph.SetVariableNode:
		if int(n.Var) >= len(c.g.Variables) {
			c.fail(n, "variable index %d out of range", n.Var)
			return
		}
		src, srcPin, ok := c.g.DataSource(n.ID(), 1)
		if !ok {
			c.fail(n, "value input is not connected")
			return
		}
		c.genData(src, srcPin)
		c.w.SetEnv(script.EnvVariables + n.Var)
		c.genSuccessor(n, 0)

	case *graph.SetYawNode:
		entity, entityPin, okEntity := c.g.DataSource(n.ID(), 1)
		yaw, yawPin, okYaw := c.g.DataSource(n.ID(), 2)
		if !okEntity {
			c.fail(n, "entity input is not connected")
			return
		}
		if !okYaw {
			c.fail(n, "yaw input is not connected")
			return
		}
		c.w.Const(uint32(script.SyscallSetYaw))
		c.genData(entity, entityPin)
		c.genData(yaw, yawPin)
		c.w.Syscall(3)
		c.genSuccessor(n, 0)

	case *graph.SetPropertyNode:
		entity, entityPin, okEntity := c.g.DataSource(n.ID(), 1)
		value, valuePin, okValue := c.g.DataSource(n.ID(), 2)
		if !okEntity {
			c.fail(n, "entity input is not connected")
			return
		}
		if !okValue {
			c.fail(n, "value input is not connected")
			return
		}
		c.w.Const(uint32(script.SyscallSetProperty))
		c.genData(entity, entityPin)
		c.w.Const(script.PropertyHash(n.Component, n.Property))
		c.genData(value, valuePin)
		c.w.Syscall(4)
		c.genSuccessor(n, 0)

	case *graph.CallNode:
		entity, entityPin, okEntity := c.g.DataSource(n.ID(), 1)
		if !okEntity {
			c.fail(n, "entity input is not connected")
			return
		}
		type arg struct {
			node graph.Node
			pin  uint8
		}
		args := make([]arg, 0, n.ArgCount)
		for i := uint32(0); i < n.ArgCount; i++ {
			src, pin, ok := c.g.DataSource(n.ID(), uint8(2+i))
			if !ok {
				c.fail(n, "argument %d is not connected", i)
				return
			}
			args = append(args, arg{src, pin})
		}
		c.w.Const(uint32(script.SyscallCallMethod))
		c.w.Const(script.MethodHash(n.Component, n.Function))
		c.genData(entity, entityPin)
		for _, a := range args {
			c.genData(a.node, a.pin)
		}
		c.w.Syscall(3 + n.ArgCount)
		c.genSuccessor(n, 0)

	case *graph.IfNode:
		cond, condPin, ok := c.g.DataSource(n.ID(), 1)
		if !ok {
			c.fail(n, "condition input is not connected")
			return
		}
		elseLabel := c.w.CreateLabel()
		joinLabel := c.w.CreateLabel()
		if cmp, isCmp := cond.(*graph.CompareNode); isCmp {
			c.genCompare(cmp)
		} else {
			// Normalize a plain value into the skip convention: any
			// non-zero condition skips the jump to the false branch.
			c.genData(cond, condPin)
			c.w.Const(0)
			c.w.Neq()
		}
		c.w.Jmp(elseLabel)
		c.genSuccessor(n, 0)
		c.w.Jmp(joinLabel)
		c.w.PlaceLabel(elseLabel)
		c.genSuccessor(n, 1)
		c.w.PlaceLabel(joinLabel)

	case *graph.SwitchNode:
		// Statically configured: only the selected chain is compiled.
		if n.On {
			c.genSuccessor(n, 0)
		} else {
			c.genSuccessor(n, 1)
		}

	case *graph.SequenceNode:
		for i := uint32(0); i < n.OutCount; i++ {
			c.genSuccessor(n, uint8(i))
		}

	default:
		c.fail(n, "cannot appear in a flow chain")
	}
}

// genData emits instructions leaving exactly one value on the stack for
// the given output pin. Comparison nodes never qualify: their emitted
// instruction skips the jump after it instead of producing a value, so
// they are rejected here and only reachable through genCompare.
func (c *compiler) genData(n graph.Node, outPin uint8) {
	if c.visiting[n.ID()] {
		c.fail(n, "data-flow cycle")
		return
	}
	c.visiting[n.ID()] = true
	defer delete(c.visiting, n.ID())

	switch n := n.(type) {
	case *graph.ConstNode:
		c.w.Const(n.Bits)

	case *graph.AddNode:
		c.genBinary(n, false)

	case *graph.MulNode:
		c.genBinary(n, true)

	case *graph.CompareNode:
		c.fail(n, "comparison is only valid as the condition of an If node")

	case *graph.GetVariableNode:
		if int(n.Var) >= len(c.g.Variables) {
			c.fail(n, "variable index %d out of range", n.Var)
			return
		}
		c.w.GetEnv(script.EnvVariables + n.Var)

	case *graph.SelfNode:
		c.w.GetEnv(script.EnvSelf)

	case *graph.UpdateNode:
		if outPin != 1 {
			c.fail(n, "pin %d does not produce a value", outPin)
			return
		}
		c.w.GetEnv(script.EnvTimeDelta)

	case *graph.MouseMoveNode:
		switch outPin {
		case 1:
			c.w.GetArg(-2)
		case 2:
			c.w.GetArg(-1)
		default:
			c.fail(n, "pin %d does not produce a value", outPin)
		}

	case *graph.KeyInputNode:
		if outPin != 1 {
			c.fail(n, "pin %d does not produce a value", outPin)
			return
		}
		c.w.GetArg(-1)

	case *graph.GetPropertyNode:
		entity, entityPin, ok := c.g.DataSource(n.ID(), 0)
		if !ok {
			c.fail(n, "entity input is not connected")
			return
		}
		c.w.Const(uint32(script.SyscallGetProperty))
		c.genData(entity, entityPin)
		c.w.Const(script.PropertyHash(n.Component, n.Property))
		c.w.Syscall(3)

	default:
		c.fail(n, "does not produce a value")
	}
}

// genCompare emits an If condition: both operands, then the comparison
// instruction that skips the jump the If emits right after it.
func (c *compiler) genCompare(n *graph.CompareNode) {
	if c.visiting[n.ID()] {
		c.fail(n, "data-flow cycle")
		return
	}
	c.visiting[n.ID()] = true
	defer delete(c.visiting, n.ID())

	a, aPin, okA := c.g.DataSource(n.ID(), 0)
	b, bPin, okB := c.g.DataSource(n.ID(), 1)
	if !okA || !okB {
		c.fail(n, "operand is not connected")
		return
	}
	isFloat := c.valueType(a, aPin) == graph.Float
	c.genData(a, aPin)
	c.genData(b, bPin)
	switch n.Op {
	case graph.CmpEq:
		c.w.Eq()
	case graph.CmpNeq:
		c.w.Neq()
	case graph.CmpGt:
		if isFloat {
			c.w.GtF()
		} else {
			c.w.Gt()
		}
	case graph.CmpLt:
		if isFloat {
			c.w.LtF()
		} else {
			c.w.Lt()
		}
	}
}

func (c *compiler) genBinary(n graph.Node, mul bool) {
	a, aPin, okA := c.g.DataSource(n.ID(), 0)
	b, bPin, okB := c.g.DataSource(n.ID(), 1)
	if !okA || !okB {
		c.fail(n, "operand is not connected")
		return
	}
	c.genData(a, aPin)
	c.genData(b, bPin)
	// Instruction selection follows the first operand's type.
	isFloat := c.valueType(a, aPin) == graph.Float
	switch {
	case mul && isFloat:
		c.w.MulF()
	case mul:
		c.w.Mul()
	case isFloat:
		c.w.AddF()
	default:
		c.w.Add()
	}
}

// valueType reports the scalar kind flowing out of the given pin,
// following the first operand upstream for operator nodes.
func (c *compiler) valueType(n graph.Node, outPin uint8) graph.ValueType {
	if c.typing[n.ID()] {
		c.fail(n, "data-flow cycle in type inference")
		return graph.U32
	}
	c.typing[n.ID()] = true
	defer delete(c.typing, n.ID())

	switch n := n.(type) {
	case *graph.ConstNode:
		return n.Kind
	case *graph.AddNode, *graph.MulNode, *graph.CompareNode:
		if src, pin, ok := c.g.DataSource(n.ID(), 0); ok {
			return c.valueType(src, pin)
		}
		return graph.U32
	case *graph.GetVariableNode:
		if int(n.Var) < len(c.g.Variables) {
			return c.g.Variables[n.Var].Type
		}
		return graph.U32
	case *graph.SelfNode:
		return graph.Entity
	case *graph.UpdateNode, *graph.MouseMoveNode:
		return graph.Float
	case *graph.GetPropertyNode:
		return graph.Float
	default:
		return graph.U32
	}
}
