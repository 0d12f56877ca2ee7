package wasm

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nodeforge/vscript/script"
)

// Persisted form of the binary-module backend: the common artifact header
// followed by the raw module bytes. The module itself is self-describing,
// so no length prefix is needed.

// Save writes the compiled module with the artifact header.
func Save(w io.Writer, module []byte) error {
	for _, v := range []uint32{script.ArtifactMagic, script.ArtifactVersion} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	_, err := w.Write(module)
	return err
}

// Load reads a persisted module, validating the header.
func Load(r io.Reader) ([]byte, error) {
	var magic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != script.ArtifactMagic {
		return nil, script.ErrArtifactMagic
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version > script.ArtifactVersion {
		return nil, fmt.Errorf("%w: %d", script.ErrArtifactVersion, version)
	}
	return io.ReadAll(r)
}
