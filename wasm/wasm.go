// Package wasm compiles a visual script graph to a self-contained binary
// module. Entry-point nodes become exported functions named start, update,
// onMouseMove and onKeyEvent; foreign calls go through a fixed
// three-function host API imported from the host module; script
// variables and the owning entity become exported mutable globals the
// host reads and writes directly.
//
// Diagnostics follow the bytecode backend's policy: a node that cannot
// resolve a required input records a per-node diagnostic and its subtree
// is skipped, but compilation still produces a module.
package wasm

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/nodeforge/vscript/graph"
	"github.com/nodeforge/vscript/script"
)

// Host API function names, imported from the HostModule namespace.
const (
	HostModule      = "host"
	FnSetYaw        = "setYaw"
	FnSetProperty   = "setPropertyFloat"
	FnGetProperty   = "getPropertyFloat"
	GlobalSelf      = "self"
	ExportStart     = "start"
	ExportUpdate    = "update"
	ExportMouseMove = "onMouseMove"
	ExportKeyEvent  = "onKeyEvent"
)

// Compile translates the graph into a binary module. The error aggregates
// node diagnostics; as with the bytecode backend a non-nil error still
// comes with a structurally valid module that must not be trusted.
func Compile(g *graph.Graph) ([]byte, error) {
	for _, n := range g.Nodes {
		n.SetDiag("")
	}

	m := &Module{}
	c := &compiler{
		g:        g,
		m:        m,
		setYaw:   m.ImportFunc(HostModule, FnSetYaw, []byte{I32, F32}, nil),
		setProp:  m.ImportFunc(HostModule, FnSetProperty, []byte{I32, I32, F32}, nil),
		getProp:  m.ImportFunc(HostModule, FnGetProperty, []byte{I32, I32}, []byte{F32}),
		visiting: map[graph.NodeID]bool{},
		typing:   map[graph.NodeID]bool{},
	}

	c.self = m.AddGlobal(I32, []byte{opI32Const, 0})
	m.Export(GlobalSelf, KindGlobal, c.self)
	for _, v := range g.Variables {
		valType := byte(I32)
		init := []byte{opI32Const, 0}
		if v.Type == graph.Float {
			valType = F32
			init = append([]byte{opF32Const}, appendF32(nil, 0)...)
		}
		idx := m.AddGlobal(valType, init)
		m.Export(v.Name, KindGlobal, idx)
		c.vars = append(c.vars, idx)
	}

	for _, n := range g.Nodes {
		var name string
		var params []byte
		switch n.Type() {
		case graph.TypeStart:
			name = ExportStart
		case graph.TypeUpdate:
			name, params = ExportUpdate, []byte{F32}
		case graph.TypeMouseMove:
			name, params = ExportMouseMove, []byte{F32, F32}
		case graph.TypeKeyInput:
			name, params = ExportKeyEvent, []byte{I32}
		default:
			continue
		}
		c.expr = nil
		if succ, _, ok := g.FlowTarget(n.ID(), 0); ok {
			c.genFlow(succ)
		}
		m.Export(name, KindFunc, m.AddFunc(params, nil, c.expr))
	}

	return m.Encode(), c.diags.ErrorOrNil()
}

type compiler struct {
	g     *graph.Graph
	m     *Module
	diags *multierror.Error
	expr  []byte

	setYaw  uint32
	setProp uint32
	getProp uint32
	self    uint32
	vars    []uint32

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

func (c *compiler) op(b ...byte) {
	c.expr = append(c.expr, b...)
}

func (c *compiler) constI32(v int32) {
	c.expr = append(c.expr, opI32Const)
	c.expr = appendS32(c.expr, v)
}

func (c *compiler) constF32(v float32) {
	c.expr = append(c.expr, opF32Const)
	c.expr = appendF32(c.expr, v)
}

func (c *compiler) call(fn uint32) {
	c.expr = append(c.expr, opCall)
	c.expr = appendU32(c.expr, fn)
}

func (c *compiler) globalGet(idx uint32) {
	c.expr = append(c.expr, opGlobalGet)
	c.expr = appendU32(c.expr, idx)
}

func (c *compiler) globalSet(idx uint32) {
	c.expr = append(c.expr, opGlobalSet)
	c.expr = appendU32(c.expr, idx)
}

func (c *compiler) localGet(idx uint32) {
	c.expr = append(c.expr, opLocalGet)
	c.expr = appendU32(c.expr, idx)
}

func (c *compiler) genSuccessor(n graph.Node, outPin uint8) {
	if succ, _, ok := c.g.FlowTarget(n.ID(), outPin); ok {
		c.genFlow(succ)
	}
}

func (c *compiler) genFlow(n graph.Node) {
	switch n := n.(type) {
	case *graph.SetVariableNode:
		if int(n.Var) >= len(c.vars) {
			c.fail(n, "variable index %d out of range", n.Var)
			return
		}
		src, srcPin, ok := c.g.DataSource(n.ID(), 1)
		if !ok {
			c.fail(n, "value input is not connected")
			return
		}
		c.genData(src, srcPin)
		c.globalSet(c.vars[n.Var])
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
		c.genData(entity, entityPin)
		c.genData(yaw, yawPin)
		c.call(c.setYaw)
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
		c.genData(entity, entityPin)
		c.constI32(int32(script.PropertyHash(n.Component, n.Property)))
		c.genData(value, valuePin)
		c.call(c.setProp)
		c.genSuccessor(n, 0)

	case *graph.IfNode:
		cond, condPin, ok := c.g.DataSource(n.ID(), 1)
		if !ok {
			c.fail(n, "condition input is not connected")
			return
		}
		c.genData(cond, condPin)
		if _, isCmp := cond.(*graph.CompareNode); !isCmp {
			// A plain value condition is tested against zero.
			if c.valueType(cond, condPin) == graph.Float {
				c.constF32(0)
				c.op(opF32Ne)
			} else {
				c.constI32(0)
				c.op(opI32Ne)
			}
		}
		c.op(opIf, blockVoid)
		c.genSuccessor(n, 0)
		c.op(opElse)
		c.genSuccessor(n, 1)
		c.op(opEnd)

	case *graph.SwitchNode:
		if n.On {
			c.genSuccessor(n, 0)
		} else {
			c.genSuccessor(n, 1)
		}

	case *graph.SequenceNode:
		for i := uint32(0); i < n.OutCount; i++ {
			c.genSuccessor(n, uint8(i))
		}

	case *graph.CallNode:
		// The host API is a closed three-function set; arbitrary
		// component methods have no import to bind to.
		c.fail(n, "component method calls are not supported by this backend")

	default:
		c.fail(n, "cannot appear in a flow chain")
	}
}

func (c *compiler) genData(n graph.Node, outPin uint8) {
	if c.visiting[n.ID()] {
		c.fail(n, "data-flow cycle")
		return
	}
	c.visiting[n.ID()] = true
	defer delete(c.visiting, n.ID())

	switch n := n.(type) {
	case *graph.ConstNode:
		if n.Kind == graph.Float {
			c.op(opF32Const)
			c.expr = append(c.expr, byte(n.Bits), byte(n.Bits>>8), byte(n.Bits>>16), byte(n.Bits>>24))
		} else {
			c.constI32(int32(n.Bits))
		}

	case *graph.AddNode:
		c.genBinary(n, opI32Add, opF32Add)

	case *graph.MulNode:
		c.genBinary(n, opI32Mul, opF32Mul)

	case *graph.CompareNode:
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
			if isFloat {
				c.op(opF32Eq)
			} else {
				c.op(opI32Eq)
			}
		case graph.CmpNeq:
			if isFloat {
				c.op(opF32Ne)
			} else {
				c.op(opI32Ne)
			}
		case graph.CmpGt:
			if isFloat {
				c.op(opF32Gt)
			} else {
				c.op(opI32GtU)
			}
		case graph.CmpLt:
			if isFloat {
				c.op(opF32Lt)
			} else {
				c.op(opI32LtU)
			}
		}

	case *graph.GetVariableNode:
		if int(n.Var) >= len(c.vars) {
			c.fail(n, "variable index %d out of range", n.Var)
			return
		}
		c.globalGet(c.vars[n.Var])

	case *graph.SelfNode:
		c.globalGet(c.self)

	case *graph.UpdateNode:
		if outPin != 1 {
			c.fail(n, "pin %d does not produce a value", outPin)
			return
		}
		c.localGet(0)

	case *graph.MouseMoveNode:
		switch outPin {
		case 1:
			c.localGet(0)
		case 2:
			c.localGet(1)
		default:
			c.fail(n, "pin %d does not produce a value", outPin)
		}

	case *graph.KeyInputNode:
		if outPin != 1 {
			c.fail(n, "pin %d does not produce a value", outPin)
			return
		}
		c.localGet(0)

	case *graph.GetPropertyNode:
		entity, entityPin, ok := c.g.DataSource(n.ID(), 0)
		if !ok {
			c.fail(n, "entity input is not connected")
			return
		}
		c.genData(entity, entityPin)
		c.constI32(int32(script.PropertyHash(n.Component, n.Property)))
		c.call(c.getProp)

	default:
		c.fail(n, "does not produce a value")
	}
}

func (c *compiler) genBinary(n graph.Node, intOp, floatOp byte) {
	a, aPin, okA := c.g.DataSource(n.ID(), 0)
	b, bPin, okB := c.g.DataSource(n.ID(), 1)
	if !okA || !okB {
		c.fail(n, "operand is not connected")
		return
	}
	c.genData(a, aPin)
	c.genData(b, bPin)
	if c.valueType(a, aPin) == graph.Float {
		c.op(floatOp)
	} else {
		c.op(intOp)
	}
}

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
