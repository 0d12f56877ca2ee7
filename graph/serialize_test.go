package graph

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildGraph() *Graph {
	g := New()
	g.AddVariable("x", U32)
	g.AddVariable("speed", Float)

	start := g.Add(&StartNode{})
	c1 := g.Add(NewConstInt(2))
	c2 := g.Add(NewConstFloat(3.5))
	add := g.Add(&AddNode{})
	set := g.Add(&SetVariableNode{Var: 0})
	g.Add(&SetPropertyNode{Component: "camera", Property: "fov"})
	g.Add(&CallNode{Component: "navmesh_agent", Function: "navigate", ArgCount: 2})
	g.Add(&SwitchNode{On: true})
	seq := g.Add(&SequenceNode{OutCount: 3})

	g.Connect(c1, 0, add, 0)
	g.Connect(c2, 0, add, 1)
	g.Connect(add, 0, set, 1)
	g.Connect(start, 0, set, 0)
	g.Connect(set, 0, seq, 0)
	return g
}

func TestSerializeRoundTrip(t *testing.T) {
	g := buildGraph()

	var buf bytes.Buffer
	require.Nil(t, g.Serialize(&buf))

	got, err := Deserialize(&buf)
	require.Nil(t, err)

	require.Equal(t, g.Variables, got.Variables)
	require.Equal(t, g.Links, got.Links)
	require.Equal(t, g.counter, got.counter)
	require.Len(t, got.Nodes, len(g.Nodes))
	for i, want := range g.Nodes {
		require.Equal(t, want.Type(), got.Nodes[i].Type(), "node %d", i)
		require.Equal(t, want.ID(), got.Nodes[i].ID(), "node %d", i)
	}

	// Variant payloads survive.
	c, ok := got.Nodes[1].(*ConstNode)
	require.True(t, ok)
	require.Equal(t, uint32(2), c.Bits)
	require.Equal(t, U32, c.Kind)

	prop, ok := got.Nodes[5].(*SetPropertyNode)
	require.True(t, ok)
	require.Equal(t, "camera", prop.Component)
	require.Equal(t, "fov", prop.Property)

	call, ok := got.Nodes[6].(*CallNode)
	require.True(t, ok)
	require.Equal(t, "navmesh_agent", call.Component)
	require.Equal(t, "navigate", call.Function)
	require.Equal(t, uint32(2), call.ArgCount)

	sw, ok := got.Nodes[7].(*SwitchNode)
	require.True(t, ok)
	require.True(t, sw.On)

	seq, ok := got.Nodes[8].(*SequenceNode)
	require.True(t, ok)
	require.Equal(t, uint32(3), seq.OutCount)
}

func TestRoundTripPreservesIDCounter(t *testing.T) {
	g := New()
	g.Add(&AddNode{})
	g.Add(&MulNode{})
	g.RemoveNode(1)

	var buf bytes.Buffer
	require.Nil(t, g.Serialize(&buf))
	got, err := Deserialize(&buf)
	require.Nil(t, err)

	// New nodes added after a load must not collide with persisted ids.
	n := got.Add(&SelfNode{})
	require.Equal(t, NodeID(3), n.ID())
}

func TestDeserializeBadMagic(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(0xdeadbeef))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	_, err := Deserialize(&buf)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestDeserializeBadVersion(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, Magic)
	binary.Write(&buf, binary.LittleEndian, uint32(99))
	_, err := Deserialize(&buf)
	require.ErrorIs(t, err, ErrBadVersion)
}

func TestDeserializeTruncated(t *testing.T) {
	g := buildGraph()
	var buf bytes.Buffer
	require.Nil(t, g.Serialize(&buf))
	blob := buf.Bytes()

	_, err := Deserialize(bytes.NewReader(blob[:len(blob)-4]))
	require.NotNil(t, err)
}
