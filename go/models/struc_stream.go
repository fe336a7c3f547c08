package models

import (
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
)

// StrucStream packs or unpacks a sequence of little-endian records.
type StrucStream struct {
	r       io.Reader
	w       io.Writer
	Options *struc.Options
}

func NewStrucReader(r io.Reader) *StrucStream {
	return &StrucStream{r: r, Options: &struc.Options{Order: binary.LittleEndian}}
}

func NewStrucWriter(w io.Writer) *StrucStream {
	return &StrucStream{w: w, Options: &struc.Options{Order: binary.LittleEndian}}
}

func (s *StrucStream) Pack(vals ...interface{}) error {
	for _, v := range vals {
		if err := struc.PackWithOptions(s.w, v, s.Options); err != nil {
			return err
		}
	}
	return nil
}

func (s *StrucStream) Unpack(vals ...interface{}) error {
	for _, v := range vals {
		if err := struc.UnpackWithOptions(s.r, v, s.Options); err != nil {
			return err
		}
	}
	return nil
}
