package cpu

import (
	ks "github.com/keystone-engine/keystone/bindings/go/keystone"
	"github.com/pkg/errors"
)

type Keystone struct {
	ks *ks.Keystone
}

func NewKeystone() (*Keystone, error) {
	k := &Keystone{}
	return k, k.Open()
}

func (k *Keystone) Open() (err error) {
	k.ks, err = ks.New(ks.ARCH_X86, ks.MODE_64)
	return errors.Wrap(err, "ks.New() failed")
}

func (k *Keystone) Close() error {
	if k.ks == nil {
		return nil
	}
	err := k.ks.Close()
	k.ks = nil
	return err
}

// Asm assembles intel syntax x86-64 as if placed at addr.
func (k *Keystone) Asm(asm string, addr uint64) ([]byte, error) {
	if k.ks == nil {
		if err := k.Open(); err != nil {
			return nil, err
		}
	}
	out, _, ok := k.ks.Assemble(asm, addr)
	if !ok {
		return nil, errors.Wrap(k.ks.LastError(), "ks.Assemble() failed")
	}
	return out, nil
}
