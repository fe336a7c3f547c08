package x64

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/models"
	"github.com/ST3ALth/xenia/go/models/cpu"
)

const (
	codeAlign       = 16
	codeCommitChunk = 0x100000
	pageSize        = 0x1000
)

// Uint32Storer is implemented by memory that can publish an indirection
// entry with a single atomic store.
type Uint32Storer interface {
	StoreUint32(addr uint64, val uint32) error
}

type SourceMapEntry struct {
	GuestAddr  uint32
	HostOffset uint32
}

// CompiledFunction maps a guest address range to placed host code. It never
// moves or changes once placed.
type CompiledFunction struct {
	GuestStart uint32
	GuestEnd   uint32
	HostAddr   uint64
	Size       uint64
	SourceMap  []SourceMapEntry
}

func (f *CompiledFunction) GuestAddress() uint32 { return f.GuestStart }

func (f *CompiledFunction) ContainsGuest(addr uint32) bool {
	return addr >= f.GuestStart && addr < f.GuestEnd
}

func (f *CompiledFunction) ContainsHost(addr uint64) bool {
	return addr >= f.HostAddr && addr < f.HostAddr+f.Size
}

func (f *CompiledFunction) MapGuestToHost(guest uint32) uint64 {
	for _, e := range f.SourceMap {
		if e.GuestAddr == guest {
			return f.HostAddr + uint64(e.HostOffset)
		}
	}
	return 0
}

var _ models.GuestFunction = &CompiledFunction{}

// CodeCache owns the generated code region and the indirection table.
//
// The table is mapped at the guest addresses it covers: the 32-bit entry for
// guest address A lives at host address A and holds the host address of the
// code for A, or the resolve thunk until A is compiled. All placed code is
// below 4GiB so it fits an entry.
type CodeCache struct {
	mu  sync.Mutex
	mem models.Memory

	indirectionBase    uint64
	indirectionSize    uint64
	indirectionDefault uint32
	committedTable     map[uint64]bool

	codeBase      uint64
	codeSize      uint64
	next          uint64
	codeCommitted uint64

	functions []*CompiledFunction
	byGuest   map[uint32][]*CompiledFunction
}

func NewCodeCache(mem models.Memory, cfg *models.Config) (*CodeCache, error) {
	cfg = cfg.Init()
	if cfg.CodeCacheBase+cfg.CodeCacheSize > 1<<32 {
		return nil, errors.Errorf("code cache 0x%x+0x%x does not fit in 32 bits", cfg.CodeCacheBase, cfg.CodeCacheSize)
	}
	if cfg.IndirectionBase+cfg.IndirectionSize > 1<<32 {
		return nil, errors.Errorf("indirection table 0x%x+0x%x does not fit in 32 bits", cfg.IndirectionBase, cfg.IndirectionSize)
	}
	return &CodeCache{
		mem:             mem,
		indirectionBase: cfg.IndirectionBase,
		indirectionSize: cfg.IndirectionSize,
		committedTable:  make(map[uint64]bool),
		codeBase:        cfg.CodeCacheBase,
		codeSize:        cfg.CodeCacheSize &^ (pageSize - 1),
		next:            cfg.CodeCacheBase,
		codeCommitted:   cfg.CodeCacheBase,
		byGuest:         make(map[uint32][]*CompiledFunction),
	}, nil
}

func (c *CodeCache) Base() uint64 { return c.codeBase }

func (c *CodeCache) Memory() models.Memory { return c.mem }

// Used returns how many bytes of the code region have been handed out.
func (c *CodeCache) Used() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next - c.codeBase
}

func (c *CodeCache) SetIndirectionTableDefault(addr uint32) {
	c.mu.Lock()
	c.indirectionDefault = addr
	c.mu.Unlock()
}

func (c *CodeCache) inTable(guest uint64) bool {
	return guest >= c.indirectionBase && guest < c.indirectionBase+c.indirectionSize
}

// CommitExecutableRange backs the indirection entries for [low, high] and
// points every new entry at the default target.
func (c *CodeCache) CommitExecutableRange(low, high uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inTable(uint64(low)) || !c.inTable(uint64(high)) || high < low {
		return errors.Errorf("range 0x%08x-0x%08x outside indirection table", low, high)
	}
	start := uint64(low) &^ (pageSize - 1)
	end := (uint64(high) + pageSize) &^ (pageSize - 1)
	fill := make([]byte, pageSize)
	for i := 0; i < pageSize; i += 4 {
		binary.LittleEndian.PutUint32(fill[i:], c.indirectionDefault)
	}
	for page := start; page < end; page += pageSize {
		if c.committedTable[page] {
			continue
		}
		if err := c.mem.MemMapProt(page, pageSize, cpu.PROT_RW); err != nil {
			return errors.Wrapf(err, "failed to commit indirection page 0x%x", page)
		}
		if err := c.mem.MemWrite(page, fill); err != nil {
			return err
		}
		c.committedTable[page] = true
	}
	return nil
}

func (c *CodeCache) tableCommitted(guest uint32) bool {
	return c.committedTable[uint64(guest)&^(pageSize-1)]
}

func (c *CodeCache) readEntry(guest uint32) (uint32, error) {
	var buf [4]byte
	if err := c.mem.MemReadInto(buf[:], uint64(guest)); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (c *CodeCache) writeEntry(guest uint32, host uint32) error {
	if s, ok := c.mem.(Uint32Storer); ok {
		return s.StoreUint32(uint64(guest), host)
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], host)
	return c.mem.MemWrite(uint64(guest), buf[:])
}

// Indirection returns the current entry for a guest address.
func (c *CodeCache) Indirection(guest uint32) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tableCommitted(guest) {
		return 0, errors.Errorf("indirection entry 0x%08x not committed", guest)
	}
	return c.readEntry(guest)
}

// AddIndirection points guest at host. The first resolver wins: if the entry
// was already patched to something else, that address is returned instead.
func (c *CodeCache) AddIndirection(guest uint32, host uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addIndirection(guest, host)
}

func (c *CodeCache) addIndirection(guest uint32, host uint64) (uint64, error) {
	if host>>32 != 0 {
		return 0, errors.Errorf("host address 0x%x does not fit an indirection entry", host)
	}
	if !c.tableCommitted(guest) {
		// nothing to patch, callers go through the resolver
		return host, nil
	}
	cur, err := c.readEntry(guest)
	if err != nil {
		return 0, err
	}
	if cur != c.indirectionDefault {
		return uint64(cur), nil
	}
	return host, c.writeEntry(guest, uint32(host))
}

// allocate reserves size bytes of code space, committing more as needed.
func (c *CodeCache) allocate(size uint64) (uint64, error) {
	addr := (c.next + codeAlign - 1) &^ (codeAlign - 1)
	end := addr + size
	if end > c.codeBase+c.codeSize {
		return 0, errors.Errorf("code cache exhausted (0x%x bytes requested)", size)
	}
	for c.codeCommitted < end {
		chunk := uint64(codeCommitChunk)
		if c.codeCommitted+chunk > c.codeBase+c.codeSize {
			chunk = c.codeBase + c.codeSize - c.codeCommitted
		}
		if err := c.mem.MemMapProt(c.codeCommitted, chunk, cpu.PROT_ALL); err != nil {
			return 0, errors.Wrapf(err, "failed to commit code at 0x%x", c.codeCommitted)
		}
		c.codeCommitted += chunk
	}
	c.next = end
	return addr, nil
}

func (c *CodeCache) place(data []byte) (uint64, error) {
	addr, err := c.allocate(uint64(len(data)))
	if err != nil {
		return 0, err
	}
	return addr, c.mem.MemWrite(addr, data)
}

// PlaceHostCode copies code with no guest mapping, such as the thunks.
func (c *CodeCache) PlaceHostCode(code []byte) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.place(code)
}

// PlaceData copies read-only data used by emitted code.
func (c *CodeCache) PlaceData(data []byte) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.place(data)
}

// PlaceGuestCode publishes compiled code for the guest range [start, end)
// and patches the indirection entry for start.
func (c *CodeCache) PlaceGuestCode(start, end uint32, code []byte, srcmap []SourceMapEntry) (*CompiledFunction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, err := c.place(code)
	if err != nil {
		return nil, err
	}
	fn := &CompiledFunction{
		GuestStart: start,
		GuestEnd:   end,
		HostAddr:   addr,
		Size:       uint64(len(code)),
		SourceMap:  srcmap,
	}
	c.functions = append(c.functions, fn)
	c.byGuest[start] = append(c.byGuest[start], fn)
	if _, err := c.addIndirection(start, addr); err != nil {
		return nil, err
	}
	return fn, nil
}

// LookupFunction finds the compiled function containing a host address.
func (c *CodeCache) LookupFunction(hostPC uint64) *CompiledFunction {
	c.mu.Lock()
	defer c.mu.Unlock()
	// functions are appended in address order
	i := sort.Search(len(c.functions), func(i int) bool {
		return c.functions[i].HostAddr+c.functions[i].Size > hostPC
	})
	if i < len(c.functions) && c.functions[i].ContainsHost(hostPC) {
		return c.functions[i]
	}
	return nil
}

// FunctionStartingAt returns the first compiled copy of a guest function.
func (c *CodeCache) FunctionStartingAt(guest uint32) *CompiledFunction {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fns := c.byGuest[guest]; len(fns) > 0 {
		return fns[0]
	}
	return nil
}

// FunctionsContaining lists every compiled copy covering a guest address.
func (c *CodeCache) FunctionsContaining(guest uint32) []*CompiledFunction {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*CompiledFunction
	for _, fn := range c.functions {
		if fn.ContainsGuest(guest) {
			out = append(out, fn)
		}
	}
	return out
}
