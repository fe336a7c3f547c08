package gpu

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/models"
)

const shaderRecordVersion = 1

type shaderRecord struct {
	Version      uint8
	Type         uint8
	BinaryLen    uint32 `struc:"uint32,sizeof=Binary"`
	Binary       []byte
	DisasmLen    uint32 `struc:"uint32,sizeof=Disassembly"`
	Disassembly  []byte
	BindingCount uint16
}

type bindingRecord struct {
	Binding     uint32
	StrideWords uint32
	AttrCount   uint16
}

type attributeRecord struct {
	Location uint32
	Offset   uint32
	Format   uint32
	Signed   bool
	Integer  bool
}

// ShaderStore persists translated shaders across runs, keyed by microcode
// hash.
type ShaderStore struct {
	db *pebble.DB
}

// OpenShaderStore opens (or creates) a store in dir. fs may be nil for the
// real filesystem.
func OpenShaderStore(dir string, fs vfs.FS) (*ShaderStore, error) {
	opts := &pebble.Options{}
	if fs != nil {
		opts.FS = fs
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open shader store")
	}
	return &ShaderStore{db: db}, nil
}

func shaderKey(hash uint64) []byte {
	key := make([]byte, 7+8)
	copy(key, "shader/")
	binary.BigEndian.PutUint64(key[7:], hash)
	return key
}

func encodeShader(s *Shader) ([]byte, error) {
	var buf bytes.Buffer
	st := models.NewStrucWriter(&buf)
	rec := &shaderRecord{
		Version:      shaderRecordVersion,
		Type:         uint8(s.Type),
		Binary:       s.Binary,
		Disassembly:  []byte(s.Disassembly),
		BindingCount: uint16(len(s.Bindings)),
	}
	if err := st.Pack(rec); err != nil {
		return nil, err
	}
	for _, b := range s.Bindings {
		if err := st.Pack(&bindingRecord{b.Binding, b.StrideWords, uint16(len(b.Attributes))}); err != nil {
			return nil, err
		}
		for _, a := range b.Attributes {
			if err := st.Pack(&attributeRecord{a.Location, a.Offset, uint32(a.Format), a.Signed, a.Integer}); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

func decodeShader(data []byte, s *Shader) error {
	st := models.NewStrucReader(bytes.NewReader(data))
	var rec shaderRecord
	if err := st.Unpack(&rec); err != nil {
		return err
	}
	if rec.Version != shaderRecordVersion {
		return errors.Errorf("shader record version %d, expected %d", rec.Version, shaderRecordVersion)
	}
	if ShaderType(rec.Type) != s.Type {
		return errors.Errorf("stored shader %016X is a %s shader", s.Hash, ShaderType(rec.Type))
	}
	bindings := make([]VertexBinding, rec.BindingCount)
	for i := range bindings {
		var br bindingRecord
		if err := st.Unpack(&br); err != nil {
			return err
		}
		b := VertexBinding{Binding: br.Binding, StrideWords: br.StrideWords}
		for j := 0; j < int(br.AttrCount); j++ {
			var ar attributeRecord
			if err := st.Unpack(&ar); err != nil {
				return err
			}
			b.Attributes = append(b.Attributes, VertexAttribute{
				Location: ar.Location,
				Offset:   ar.Offset,
				Format:   VertexFormat(ar.Format),
				Signed:   ar.Signed,
				Integer:  ar.Integer,
			})
		}
		bindings[i] = b
	}
	s.Binary = rec.Binary
	s.Disassembly = string(rec.Disassembly)
	s.Bindings = bindings
	return nil
}

// Load fills in a shader's translation from the store. It reports false if
// the shader has not been stored.
func (st *ShaderStore) Load(s *Shader) (bool, error) {
	data, closer, err := st.db.Get(shaderKey(s.Hash))
	if err == pebble.ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, errors.Wrap(err, "shader store get")
	}
	defer closer.Close()
	if err := decodeShader(data, s); err != nil {
		return false, errors.Wrapf(err, "decoding stored shader %016X", s.Hash)
	}
	return true, nil
}

func (st *ShaderStore) Save(s *Shader) error {
	data, err := encodeShader(s)
	if err != nil {
		return errors.Wrap(err, "encoding shader")
	}
	return errors.Wrap(st.db.Set(shaderKey(s.Hash), data, pebble.Sync), "shader store set")
}

func (st *ShaderStore) Delete(hash uint64) error {
	return st.db.Delete(shaderKey(hash), pebble.Sync)
}

func (st *ShaderStore) Close() error {
	return st.db.Close()
}
