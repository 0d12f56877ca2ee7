package script

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/nodeforge/vscript/graph"
)

// Compiled artifact format (custom-VM backend): a short header followed by
// the entry-point offsets, the variable table, and the raw bytecode. The
// artifact is immutable once produced and may be shared by any number of
// VM instances.
const (
	ArtifactMagic   = uint32(0x5f736372) // "_scr"
	ArtifactVersion = uint32(0)
)

// NoEntry marks an entry point with no node in the source graph.
const NoEntry = ^uint32(0)

var (
	ErrArtifactMagic   = errors.New("not a compiled script")
	ErrArtifactVersion = errors.New("unsupported script version")
)

// Artifact is a compiled script: bytecode plus the byte offsets of its
// well-known entry points and the variable table describing the
// environment slots from EnvVariables upward.
type Artifact struct {
	Start     uint32
	Update    uint32
	MouseMove uint32
	KeyInput  uint32
	Variables []graph.Variable
	Bytecode  []byte
}

// Save writes the artifact in its persisted binary form.
func (a *Artifact) Save(w io.Writer) error {
	write := func(v interface{}) error {
		return binary.Write(w, binary.LittleEndian, v)
	}
	for _, v := range []uint32{ArtifactMagic, ArtifactVersion, a.Start, a.Update, a.MouseMove, a.KeyInput} {
		if err := write(v); err != nil {
			return err
		}
	}
	if err := write(uint32(len(a.Variables))); err != nil {
		return err
	}
	for _, v := range a.Variables {
		if err := write(uint32(len(v.Name))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, v.Name); err != nil {
			return err
		}
		if err := write(uint32(v.Type)); err != nil {
			return err
		}
	}
	if err := write(uint32(len(a.Bytecode))); err != nil {
		return err
	}
	_, err := w.Write(a.Bytecode)
	return err
}

// Load reads a persisted artifact. On failure the caller discards the
// partial result.
func Load(r io.Reader) (*Artifact, error) {
	var u32 = func() (uint32, error) {
		var v uint32
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	}
	magic, err := u32()
	if err != nil {
		return nil, err
	}
	if magic != ArtifactMagic {
		return nil, ErrArtifactMagic
	}
	version, err := u32()
	if err != nil {
		return nil, err
	}
	if version > ArtifactVersion {
		return nil, fmt.Errorf("%w: %d", ErrArtifactVersion, version)
	}

	a := &Artifact{}
	for _, dst := range []*uint32{&a.Start, &a.Update, &a.MouseMove, &a.KeyInput} {
		if *dst, err = u32(); err != nil {
			return nil, err
		}
	}

	varCount, err := u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < varCount; i++ {
		nameLen, err := u32()
		if err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, err
		}
		typ, err := u32()
		if err != nil {
			return nil, err
		}
		a.Variables = append(a.Variables, graph.Variable{
			Name: string(name),
			Type: graph.ValueType(typ),
		})
	}

	size, err := u32()
	if err != nil {
		return nil, err
	}
	a.Bytecode = make([]byte, size)
	if _, err := io.ReadFull(r, a.Bytecode); err != nil {
		return nil, err
	}
	return a, nil
}

// EnvironmentSize returns the number of u32 environment slots the
// artifact's bytecode expects.
func (a *Artifact) EnvironmentSize() int {
	return EnvVariables + len(a.Variables)
}
