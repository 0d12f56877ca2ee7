package graph

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Persisted graph format: magic, version, node-id counter, variable table,
// link table (packed pin pairs), node table (type tag, id, position,
// variant payload). The format is the editable source of truth; a
// serialize/deserialize round trip reproduces an equivalent graph.
const (
	Magic   = uint32(0x5f4c5653) // "_LVS"
	Version = uint32(0)
)

var (
	ErrBadMagic   = errors.New("not a visual script graph")
	ErrBadVersion = errors.New("unsupported graph version")
)

func floatBits(v float32) uint32 { return math.Float32bits(v) }

type blobWriter struct {
	w   io.Writer
	err error
}

func (b *blobWriter) u32(v uint32) {
	if b.err != nil {
		return
	}
	b.err = binary.Write(b.w, binary.LittleEndian, v)
}

func (b *blobWriter) u16(v uint16) {
	if b.err != nil {
		return
	}
	b.err = binary.Write(b.w, binary.LittleEndian, v)
}

func (b *blobWriter) f32(v float32) { b.u32(math.Float32bits(v)) }

func (b *blobWriter) str(s string) {
	b.u32(uint32(len(s)))
	if b.err != nil {
		return
	}
	_, b.err = io.WriteString(b.w, s)
}

type blobReader struct {
	r   io.Reader
	err error
}

func (b *blobReader) u32() uint32 {
	var v uint32
	if b.err == nil {
		b.err = binary.Read(b.r, binary.LittleEndian, &v)
	}
	return v
}

func (b *blobReader) u16() uint16 {
	var v uint16
	if b.err == nil {
		b.err = binary.Read(b.r, binary.LittleEndian, &v)
	}
	return v
}

func (b *blobReader) f32() float32 { return math.Float32frombits(b.u32()) }

func (b *blobReader) str() string {
	n := b.u32()
	if b.err != nil {
		return ""
	}
	buf := make([]byte, n)
	_, b.err = io.ReadFull(b.r, buf)
	return string(buf)
}

// Serialize writes the graph in its persisted binary form.
func (g *Graph) Serialize(w io.Writer) error {
	b := &blobWriter{w: w}
	b.u32(Magic)
	b.u32(Version)
	b.u16(uint16(g.counter))

	b.u32(uint32(len(g.Variables)))
	for _, v := range g.Variables {
		b.str(v.Name)
		b.u32(uint32(v.Type))
	}

	b.u32(uint32(len(g.Links)))
	for _, l := range g.Links {
		b.u32(l.From.pack())
		b.u32(l.To.pack())
	}

	b.u32(uint32(len(g.Nodes)))
	for _, n := range g.Nodes {
		b.u32(uint32(n.Type()))
		b.u16(uint16(n.ID()))
		b.f32(n.base().X)
		b.f32(n.base().Y)
		writePayload(b, n)
	}
	return b.err
}

// Deserialize reads a persisted graph, replacing nothing on failure: the
// caller discards the partial result and falls back to an empty graph.
func Deserialize(r io.Reader) (*Graph, error) {
	b := &blobReader{r: r}
	if magic := b.u32(); b.err == nil && magic != Magic {
		return nil, ErrBadMagic
	}
	if version := b.u32(); b.err == nil && version > Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, version)
	}

	g := New()
	g.counter = NodeID(b.u16())

	varCount := b.u32()
	for i := uint32(0); i < varCount && b.err == nil; i++ {
		name := b.str()
		typ := ValueType(b.u32())
		g.Variables = append(g.Variables, Variable{Name: name, Type: typ})
	}

	linkCount := b.u32()
	for i := uint32(0); i < linkCount && b.err == nil; i++ {
		from := unpackPin(b.u32())
		to := unpackPin(b.u32())
		g.Links = append(g.Links, Link{From: from, To: to})
	}

	nodeCount := b.u32()
	for i := uint32(0); i < nodeCount && b.err == nil; i++ {
		tag := NodeType(b.u32())
		n := createNode(tag)
		if n == nil {
			return nil, fmt.Errorf("unknown node type %d", tag)
		}
		n.base().id = NodeID(b.u16())
		n.base().X = b.f32()
		n.base().Y = b.f32()
		if err := readPayload(b, n); err != nil {
			return nil, err
		}
		g.Nodes = append(g.Nodes, n)
	}
	if b.err != nil {
		return nil, b.err
	}
	return g, nil
}

func writePayload(b *blobWriter, n Node) {
	switch n := n.(type) {
	case *ConstNode:
		b.u32(uint32(n.Kind))
		b.u32(n.Bits)
	case *GetVariableNode:
		b.u32(n.Var)
	case *SetVariableNode:
		b.u32(n.Var)
	case *SetPropertyNode:
		b.str(n.Component)
		b.str(n.Property)
	case *GetPropertyNode:
		b.str(n.Component)
		b.str(n.Property)
	case *CallNode:
		b.str(n.Component)
		b.str(n.Function)
		b.u32(n.ArgCount)
	case *SwitchNode:
		if n.On {
			b.u32(1)
		} else {
			b.u32(0)
		}
	case *SequenceNode:
		b.u32(n.OutCount)
	}
}

func readPayload(b *blobReader, n Node) error {
	switch n := n.(type) {
	case *ConstNode:
		n.Kind = ValueType(b.u32())
		n.Bits = b.u32()
	case *GetVariableNode:
		n.Var = b.u32()
	case *SetVariableNode:
		n.Var = b.u32()
	case *SetPropertyNode:
		n.Component = b.str()
		n.Property = b.str()
	case *GetPropertyNode:
		n.Component = b.str()
		n.Property = b.str()
	case *CallNode:
		n.Component = b.str()
		n.Function = b.str()
		n.ArgCount = b.u32()
	case *SwitchNode:
		n.On = b.u32() != 0
	case *SequenceNode:
		n.OutCount = b.u32()
	}
	return b.err
}
