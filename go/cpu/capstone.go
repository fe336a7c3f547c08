package cpu

import (
	"bytes"
	"sync"

	cs "github.com/bnagy/gapstone"
	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/models"
)

// longest x86 instruction
const MaxInsLen = 15

type discacheEntry struct {
	mem []byte
	ins *cs.Instruction
}

type discache struct {
	sync.RWMutex
	cache map[uint64]*discacheEntry
}

func (d *discache) Get(addr uint64, mem []byte) *cs.Instruction {
	d.RLock()
	defer d.RUnlock()
	if ent, ok := d.cache[addr]; ok && bytes.HasPrefix(mem, ent.mem) {
		return ent.ins
	}
	return nil
}

func (d *discache) Put(addr uint64, ins *cs.Instruction) {
	d.Lock()
	defer d.Unlock()
	d.cache[addr] = &discacheEntry{mem: ins.Bytes, ins: ins}
}

// Capstone decodes x86-64 in intel syntax with operand detail enabled.
type Capstone struct {
	mu sync.Mutex
	cs *cs.Engine
	dc discache
}

func NewCapstone() (*Capstone, error) {
	c := &Capstone{}
	return c, c.Open()
}

func (c *Capstone) Open() error {
	engine, err := cs.New(cs.CS_ARCH_X86, cs.CS_MODE_64)
	if err != nil {
		return errors.Wrap(err, "cs.New() failed")
	}
	if err := engine.SetOption(cs.CS_OPT_SYNTAX, cs.CS_OPT_SYNTAX_INTEL); err != nil {
		engine.Close()
		return errors.Wrap(err, "capstone syntax option failed")
	}
	if err := engine.SetOption(cs.CS_OPT_DETAIL, cs.CS_OPT_ON); err != nil {
		engine.Close()
		return errors.Wrap(err, "capstone detail option failed")
	}
	c.cs = &engine
	c.dc.cache = make(map[uint64]*discacheEntry)
	return nil
}

func (c *Capstone) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cs == nil {
		return nil
	}
	err := c.cs.Close()
	c.cs = nil
	return err
}

// Decode decodes the single instruction at the start of mem.
func (c *Capstone) Decode(mem []byte, addr uint64) (*cs.Instruction, error) {
	if ins := c.dc.Get(addr, mem); ins != nil {
		return ins, nil
	}
	c.mu.Lock()
	if c.cs == nil {
		c.mu.Unlock()
		return nil, errors.New("capstone engine closed")
	}
	dis, err := c.cs.Disasm(mem, addr, 1)
	c.mu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "capstone disassembly failed")
	}
	if len(dis) == 0 {
		return nil, errors.Errorf("no instruction decoded at %#x", addr)
	}
	ins := &dis[0]
	c.dc.Put(addr, ins)
	return ins, nil
}

func (c *Capstone) Dis(mem []byte, addr uint64) ([]models.Ins, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cs == nil {
		return nil, errors.New("capstone engine closed")
	}
	dis, err := c.cs.Disasm(mem, addr, 0)
	if err != nil {
		return nil, errors.Wrap(err, "capstone disassembly failed")
	}
	ret := make([]models.Ins, len(dis))
	for i, ins := range dis {
		ret[i] = csIns(ins)
	}
	return ret, nil
}

// wrapper to make gapstone.Instruction conform to the models.Ins interface
type csIns cs.Instruction

func (c csIns) Addr() uint64     { return uint64(c.Address) }
func (c csIns) Bytes() []byte    { return cs.Instruction(c).Bytes }
func (c csIns) Mnemonic() string { return cs.Instruction(c).Mnemonic }
func (c csIns) OpStr() string    { return cs.Instruction(c).OpStr }

var hostRegs = map[uint]int{
	cs.X86_REG_RAX: models.RAX,
	cs.X86_REG_RCX: models.RCX,
	cs.X86_REG_RDX: models.RDX,
	cs.X86_REG_RBX: models.RBX,
	cs.X86_REG_RSP: models.RSP,
	cs.X86_REG_RBP: models.RBP,
	cs.X86_REG_RSI: models.RSI,
	cs.X86_REG_RDI: models.RDI,
	cs.X86_REG_R8:  models.R8,
	cs.X86_REG_R9:  models.R9,
	cs.X86_REG_R10: models.R10,
	cs.X86_REG_R11: models.R11,
	cs.X86_REG_R12: models.R12,
	cs.X86_REG_R13: models.R13,
	cs.X86_REG_R14: models.R14,
	cs.X86_REG_R15: models.R15,
	cs.X86_REG_RIP: models.RIP,
}

// HostReg maps a capstone register id to a HostContext register.
func HostReg(reg uint) (int, bool) {
	enum, ok := hostRegs[reg]
	return enum, ok
}
