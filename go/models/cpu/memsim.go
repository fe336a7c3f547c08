package cpu

import (
	"fmt"
	"sort"
)

type MemError struct {
	Addr uint64
	Size int
	Enum int
}

func (m *MemError) Error() string {
	reason := "memory error"
	switch m.Enum {
	case MEM_WRITE_UNMAPPED:
		reason = "unmapped write"
	case MEM_READ_UNMAPPED:
		reason = "unmapped read"
	case MEM_FETCH_UNMAPPED:
		reason = "unmapped fetch"
	case MEM_WRITE_PROT:
		reason = "protected write"
	case MEM_READ_PROT:
		reason = "protected read"
	case MEM_FETCH_PROT:
		reason = "protected exec"
	}
	return fmt.Sprintf("%s at %#x(%d)", reason, m.Addr, m.Size)
}

// MemSim is a sorted list of non-overlapping regions.
type MemSim struct {
	Regions Regions
}

// covered reports whether [addr, addr+size) is fully mapped, and whether
// every region in it carries all bits of prot.
func (m *MemSim) covered(addr, size uint64, prot int) (mapped, allowed bool) {
	i := m.Regions.find(addr)
	if i < 0 {
		return false, false
	}
	allowed = true
	end := addr + size
	for _, r := range m.Regions[i:] {
		if !r.Contains(addr) {
			break
		}
		if r.Prot&prot != prot {
			allowed = false
		}
		addr = r.End()
		if addr >= end {
			break
		}
	}
	return addr >= end, allowed
}

// remove drops [addr, addr+size) from the region list. Returns the regions
// that were cut so callers can reinsert them.
func (m *MemSim) remove(addr, size uint64) []*Region {
	var keep Regions
	var cut []*Region
	for _, r := range m.Regions {
		start, n, ok := r.Overlap(addr, size)
		if !ok {
			keep = append(keep, r)
			continue
		}
		left, right := r.cut(start, n)
		if left != nil {
			keep = append(keep, left)
		}
		if right != nil {
			keep = append(keep, right)
		}
		o := start - r.Addr
		cut = append(cut, &Region{Addr: start, Size: n, Prot: r.Prot, Data: r.Data[o : o+n], Desc: r.Desc})
	}
	m.Regions = keep
	return cut
}

func (m *MemSim) insert(rs ...*Region) {
	m.Regions = append(m.Regions, rs...)
	sort.Slice(m.Regions, func(i, j int) bool { return m.Regions[i].Addr < m.Regions[j].Addr })
}

// Map replaces anything in [addr, addr+size) with a zeroed region.
func (m *MemSim) Map(addr, size uint64, prot int, desc string) *Region {
	m.remove(addr, size)
	r := &Region{Addr: addr, Size: size, Prot: prot, Data: make([]byte, size), Desc: desc}
	m.insert(r)
	return r
}

func (m *MemSim) Prot(addr, size uint64, prot int) {
	cut := m.remove(addr, size)
	for _, r := range cut {
		r.Prot = prot
	}
	m.insert(cut...)
}

func (m *MemSim) Unmap(addr, size uint64) {
	m.remove(addr, size)
}

func (m *MemSim) Read(addr uint64, p []byte, prot int) error {
	mapped, allowed := m.covered(addr, uint64(len(p)), prot)
	if !mapped || !allowed {
		enum := MEM_READ_UNMAPPED
		switch {
		case prot&PROT_EXEC != 0 && !mapped:
			enum = MEM_FETCH_UNMAPPED
		case prot&PROT_EXEC != 0:
			enum = MEM_FETCH_PROT
		case mapped:
			enum = MEM_READ_PROT
		}
		return &MemError{Addr: addr, Size: len(p), Enum: enum}
	}
	for i := m.Regions.find(addr); len(p) > 0; i++ {
		r := m.Regions[i]
		n := copy(p, r.Data[addr-r.Addr:])
		addr, p = addr+uint64(n), p[n:]
	}
	return nil
}

func (m *MemSim) Write(addr uint64, p []byte, prot int) error {
	mapped, allowed := m.covered(addr, uint64(len(p)), prot)
	if !mapped {
		return &MemError{Addr: addr, Size: len(p), Enum: MEM_WRITE_UNMAPPED}
	} else if !allowed {
		return &MemError{Addr: addr, Size: len(p), Enum: MEM_WRITE_PROT}
	}
	for i := m.Regions.find(addr); len(p) > 0; i++ {
		r := m.Regions[i]
		n := copy(r.Data[addr-r.Addr:], p)
		addr, p = addr+uint64(n), p[n:]
	}
	return nil
}
