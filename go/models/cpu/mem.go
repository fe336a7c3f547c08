package cpu

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
)

// Mem is a simulated 64-bit little-endian host address space. It stands in
// for executable memory when JIT output is inspected or patched but never run.
type Mem struct {
	sync.RWMutex
	sim MemSim
}

func NewMem() *Mem {
	return &Mem{}
}

func (m *Mem) MemMapProt(addr, size uint64, prot int) error {
	return m.MemMapDesc(addr, size, prot, "")
}

func (m *Mem) MemMapDesc(addr, size uint64, prot int, desc string) error {
	if size == 0 || addr+size < addr {
		return errors.Errorf("bad mapping 0x%x+0x%x", addr, size)
	}
	m.Lock()
	m.sim.Map(addr, size, prot, desc)
	m.Unlock()
	return nil
}

func (m *Mem) MemProt(addr, size uint64, prot int) error {
	m.Lock()
	defer m.Unlock()
	if mapped, _ := m.sim.covered(addr, size, 0); !mapped {
		return errors.New("range not mapped")
	}
	m.sim.Prot(addr, size, prot)
	return nil
}

func (m *Mem) MemUnmap(addr, size uint64) error {
	m.Lock()
	defer m.Unlock()
	if mapped, _ := m.sim.covered(addr, size, 0); !mapped {
		return errors.New("range not mapped")
	}
	m.sim.Unmap(addr, size)
	return nil
}

func (m *Mem) MemReadInto(p []byte, addr uint64) error {
	m.RLock()
	defer m.RUnlock()
	return m.sim.Read(addr, p, 0)
}

func (m *Mem) MemRead(addr, size uint64) ([]byte, error) {
	p := make([]byte, size)
	if err := m.MemReadInto(p, addr); err != nil {
		return nil, err
	}
	return p, nil
}

// MemWrite ignores protections, like a debugger poke.
func (m *Mem) MemWrite(addr uint64, p []byte) error {
	m.Lock()
	defer m.Unlock()
	return m.sim.Write(addr, p, 0)
}

// Fetch reads instruction bytes, failing on non-executable memory.
func (m *Mem) Fetch(addr, size uint64) ([]byte, error) {
	p := make([]byte, size)
	m.RLock()
	defer m.RUnlock()
	if err := m.sim.Read(addr, p, PROT_EXEC); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Mem) ReadUint64(addr uint64) (uint64, error) {
	var buf [8]byte
	if err := m.MemReadInto(buf[:], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (m *Mem) WriteUint64(addr, val uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], val)
	return m.MemWrite(addr, buf[:])
}

func (m *Mem) Mappings() Regions {
	m.RLock()
	defer m.RUnlock()
	out := make(Regions, len(m.sim.Regions))
	copy(out, m.sim.Regions)
	return out
}
