package script

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/nodeforge/vscript/graph"
	"github.com/stretchr/testify/require"
)

func TestArtifactRoundTrip(t *testing.T) {
	art := &Artifact{
		Start:     0,
		Update:    12,
		MouseMove: NoEntry,
		KeyInput:  30,
		Variables: []graph.Variable{
			{Name: "speed", Type: graph.Float},
			{Name: "count", Type: graph.U32},
		},
		Bytecode: []byte{1, 2, 3, 4, 5},
	}

	var buf bytes.Buffer
	require.Nil(t, art.Save(&buf))
	loaded, err := Load(&buf)
	require.Nil(t, err)
	require.Equal(t, art, loaded)
}

func TestArtifactBadMagic(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(0xdeadbeef))
	binary.Write(&buf, binary.LittleEndian, ArtifactVersion)

	_, err := Load(&buf)
	require.ErrorIs(t, err, ErrArtifactMagic)
}

func TestArtifactFutureVersion(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, ArtifactMagic)
	binary.Write(&buf, binary.LittleEndian, ArtifactVersion+1)

	_, err := Load(&buf)
	require.ErrorIs(t, err, ErrArtifactVersion)
}

func TestArtifactTruncated(t *testing.T) {
	art := &Artifact{Variables: nil, Bytecode: []byte{1, 2, 3}}
	var buf bytes.Buffer
	require.Nil(t, art.Save(&buf))

	cut := buf.Bytes()[:buf.Len()-2]
	_, err := Load(bytes.NewReader(cut))
	require.NotNil(t, err)
}

func TestEnvironmentSize(t *testing.T) {
	art := &Artifact{Variables: []graph.Variable{{Name: "x"}, {Name: "y"}}}
	require.Equal(t, EnvVariables+2, art.EnvironmentSize())
}

func TestPropertyHashStable(t *testing.T) {
	h := PropertyHash("camera", "fov")
	require.Equal(t, h, PropertyHash("camera", "fov"))
	require.NotEqual(t, h, PropertyHash("camera", "near"))

	// Separator keeps (ab, c) and (a, bc) distinct.
	require.NotEqual(t, PropertyHash("ab", "c"), PropertyHash("a", "bc"))
	require.Equal(t, PropertyHash("navmesh", "navigate"), MethodHash("navmesh", "navigate"))
}
