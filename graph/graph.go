// Package graph defines the visual-script data model: typed nodes, the
// links connecting their pins, and the variable table. A graph is mutated
// by an editor, persisted as a flat binary blob, and handed read-only to
// the compiler.
package graph

// ValueType is the scalar kind flowing through a data pin. It exists only
// so the compiler can pick integer or floating-point instruction variants.
type ValueType uint32

const (
	U32 ValueType = iota
	I32
	Float
	Entity
)

// NodeID identifies a node for the lifetime of its graph. Ids are assigned
// from a monotonically increasing counter and never reused.
type NodeID uint16

// PinRef addresses one pin of one node. Pin indices are small integers
// local to the node, counted separately for inputs and outputs; flow and
// data pins share the same numbering within a direction.
type PinRef struct {
	Node   NodeID
	Pin    uint8
	Output bool
}

// The persisted link table packs a PinRef into a single u32. The packing
// is a file-format detail only; in memory the three fields stay explicit.
const (
	outputFlag = uint32(1) << 31
	nodeMask   = 0x7fff
)

func (r PinRef) pack() uint32 {
	v := uint32(r.Node)&nodeMask | uint32(r.Pin)<<16
	if r.Output {
		v |= outputFlag
	}
	return v
}

func unpackPin(v uint32) PinRef {
	return PinRef{
		Node:   NodeID(v & nodeMask),
		Pin:    uint8(v >> 16 & 0xff),
		Output: v&outputFlag != 0,
	}
}

// Link connects a source pin to a destination pin. From must be an output
// pin and To an input pin; endpoints are not validated against the
// referenced node's declared pins, a stale reference is simply never found.
type Link struct {
	From PinRef
	To   PinRef
}

// Variable is one entry of the graph's variable table, referenced by index
// from GetVariable/SetVariable nodes.
type Variable struct {
	Name string
	Type ValueType
}

// Graph owns its nodes, links and variables. Destroying the graph destroys
// every node; nodes are only ever borrowed by callers.
type Graph struct {
	Nodes     []Node
	Links     []Link
	Variables []Variable

	counter NodeID
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{}
}

// Add assigns the node the next id, appends it and returns it. The graph
// retains ownership.
func (g *Graph) Add(n Node) Node {
	g.counter++
	n.base().id = g.counter
	g.Nodes = append(g.Nodes, n)
	return n
}

// RemoveNode deletes the node at the given index and every link touching
// it, so no dangling links survive the mutation.
func (g *Graph) RemoveNode(index int) {
	id := g.Nodes[index].ID()
	for i := len(g.Links) - 1; i >= 0; i-- {
		if g.Links[i].From.Node == id || g.Links[i].To.Node == id {
			g.Links = append(g.Links[:i], g.Links[i+1:]...)
		}
	}
	g.Nodes = append(g.Nodes[:index], g.Nodes[index+1:]...)
}

// RemoveLink deletes the link at the given index.
func (g *Graph) RemoveLink(index int) {
	g.Links = append(g.Links[:index], g.Links[index+1:]...)
}

// NodeByID scans for a node with the given id, returning nil if absent.
func (g *Graph) NodeByID(id NodeID) Node {
	for _, n := range g.Nodes {
		if n.ID() == id {
			return n
		}
	}
	return nil
}

// Connect appends a link from an output pin to an input pin.
func (g *Graph) Connect(from Node, fromPin uint8, to Node, toPin uint8) {
	g.Links = append(g.Links, Link{
		From: PinRef{Node: from.ID(), Pin: fromPin, Output: true},
		To:   PinRef{Node: to.ID(), Pin: toPin},
	})
}

// DataSource finds the link feeding the given input pin and returns the
// producing node and its output pin. When several links target the same
// input, the last one in scan order wins. The second return is false when
// the pin is unconnected.
func (g *Graph) DataSource(id NodeID, pin uint8) (Node, uint8, bool) {
	want := PinRef{Node: id, Pin: pin}
	var src PinRef
	found := false
	for _, l := range g.Links {
		if l.To == want {
			src = l.From
			found = true
		}
	}
	if !found {
		return nil, 0, false
	}
	n := g.NodeByID(src.Node)
	if n == nil {
		return nil, 0, false
	}
	return n, src.Pin, true
}

// FlowTarget finds the link driven by the given output pin and returns the
// consuming node and its input pin, or false when unconnected.
func (g *Graph) FlowTarget(id NodeID, pin uint8) (Node, uint8, bool) {
	want := PinRef{Node: id, Pin: pin, Output: true}
	var dst PinRef
	found := false
	for _, l := range g.Links {
		if l.From == want {
			dst = l.To
			found = true
		}
	}
	if !found {
		return nil, 0, false
	}
	n := g.NodeByID(dst.Node)
	if n == nil {
		return nil, 0, false
	}
	return n, dst.Pin, true
}

// AddVariable appends a variable table entry and returns its index.
func (g *Graph) AddVariable(name string, t ValueType) uint32 {
	g.Variables = append(g.Variables, Variable{Name: name, Type: t})
	return uint32(len(g.Variables) - 1)
}
