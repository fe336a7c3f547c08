package cpu

import (
	"bytes"
	"sync"

	cs "github.com/lunixbochs/capstr"
	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/models"
)

type listingEntry struct {
	mem []byte
	dis []models.Ins
}

// Capstr produces x86-64 listings without operand detail, for display. The
// debugger steps with Capstone, which carries operands.
type Capstr struct {
	mu    sync.Mutex
	cs    *cs.Engine
	cache map[uint64]*listingEntry
}

func (c *Capstr) open() error {
	engine, err := cs.New(cs.ARCH_X86, cs.MODE_64)
	if err != nil {
		return errors.Wrap(err, "cs.New() failed")
	}
	c.cs = engine
	c.cache = make(map[uint64]*listingEntry)
	return nil
}

func (c *Capstr) Dis(mem []byte, addr uint64) ([]models.Ins, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cs == nil {
		if err := c.open(); err != nil {
			return nil, err
		}
	}
	if ent, ok := c.cache[addr]; ok && bytes.Equal(ent.mem, mem) {
		return ent.dis, nil
	}
	dis, err := c.cs.Dis(mem, addr, 0)
	if err != nil {
		return nil, errors.Wrap(err, "capstone disassembly failed")
	}
	ret := make([]models.Ins, len(dis))
	for i, v := range dis {
		ret[i] = v
	}
	c.cache[addr] = &listingEntry{mem: append([]byte(nil), mem...), dis: ret}
	return ret, nil
}
