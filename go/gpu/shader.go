package gpu

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

type ShaderType uint8

const (
	ShaderVertex ShaderType = iota
	ShaderPixel
)

func (t ShaderType) String() string {
	if t == ShaderVertex {
		return "vertex"
	}
	return "pixel"
}

// short name used in dump file extensions
func (t ShaderType) ext() string {
	if t == ShaderVertex {
		return "vs"
	}
	return "ps"
}

type VertexAttribute struct {
	Location uint32
	// offset into the vertex, in words
	Offset  uint32
	Format  VertexFormat
	Signed  bool
	Integer bool
}

type VertexBinding struct {
	Binding     uint32
	StrideWords uint32
	Attributes  []VertexAttribute
}

// Shader is one guest shader program, identified by its microcode hash.
// Translation fills Binary (SPIR-V), Disassembly and, for vertex shaders,
// Bindings. A shader that failed to translate or prepare stays invalid.
type Shader struct {
	Type         ShaderType
	GuestAddress uint32
	Hash         uint64
	Data         []uint32

	Binary      []byte
	Disassembly string
	Bindings    []VertexBinding

	module ShaderModule
	valid  bool
	ready  chan struct{}
}

func newShader(t ShaderType, guestAddr uint32, hash uint64, words []uint32) *Shader {
	data := make([]uint32, len(words))
	copy(data, words)
	return &Shader{
		Type:         t,
		GuestAddress: guestAddr,
		Hash:         hash,
		Data:         data,
		ready:        make(chan struct{}),
	}
}

func (s *Shader) IsValid() bool { return s != nil && s.valid }

func (s *Shader) Module() ShaderModule { return s.module }

func (s *Shader) String() string {
	return fmt.Sprintf("%s shader %016X at 0x%08X (%d words)", s.Type, s.Hash, s.GuestAddress, len(s.Data))
}

// Microcode returns the raw words as little-endian bytes.
func (s *Shader) Microcode() []byte {
	out := make([]byte, len(s.Data)*4)
	for i, w := range s.Data {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// Dump writes the microcode, translated binary and disassembly into dir.
func (s *Shader) Dump(dir, prefix string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create shader dump dir")
	}
	base := filepath.Join(dir, fmt.Sprintf("shader_%s_%016X.%s", prefix, s.Hash, s.Type.ext()))
	files := []struct {
		suffix string
		data   []byte
	}{
		{".ucode.bin", s.Microcode()},
		{".ucode.txt", []byte(s.Disassembly)},
		{".spv", s.Binary},
	}
	for _, f := range files {
		if len(f.data) == 0 {
			continue
		}
		if err := os.WriteFile(base+f.suffix, f.data, 0644); err != nil {
			return errors.Wrapf(err, "failed to dump %s", s)
		}
	}
	return nil
}

// Translator turns microcode into SPIR-V.
type Translator interface {
	Translate(s *Shader) error
}
