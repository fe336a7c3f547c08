package cpu

import (
	"fmt"
	"sort"
	"strings"
)

// Region is one contiguous mapping of host memory.
type Region struct {
	Addr uint64
	Size uint64
	Prot int
	Data []byte
	Desc string
}

func (r *Region) String() string {
	s := fmt.Sprintf("0x%x-0x%x %s", r.Addr, r.End(), ProtString(r.Prot))
	if r.Desc != "" {
		s += fmt.Sprintf(" [%s]", r.Desc)
	}
	return s
}

func (r *Region) End() uint64 { return r.Addr + r.Size }

func (r *Region) Contains(addr uint64) bool {
	return addr >= r.Addr && addr < r.End()
}

// Overlap returns the intersection of r with [addr, addr+size).
func (r *Region) Overlap(addr, size uint64) (uint64, uint64, bool) {
	start, end := r.Addr, r.End()
	if addr > start {
		start = addr
	}
	if e := addr + size; e < end {
		end = e
	}
	if end <= start {
		return 0, 0, false
	}
	return start, end - start, true
}

// cut returns the parts of r outside [addr, addr+size), sharing r's backing data.
func (r *Region) cut(addr, size uint64) (left, right *Region) {
	if addr > r.Addr {
		n := addr - r.Addr
		left = &Region{Addr: r.Addr, Size: n, Prot: r.Prot, Data: r.Data[:n], Desc: r.Desc}
	}
	if end := addr + size; end < r.End() {
		o := end - r.Addr
		right = &Region{Addr: end, Size: r.Size - o, Prot: r.Prot, Data: r.Data[o:], Desc: r.Desc}
	}
	return left, right
}

type Regions []*Region

func (rs Regions) String() string {
	s := make([]string, len(rs))
	for i, r := range rs {
		s[i] = r.String()
	}
	return strings.Join(s, "\n")
}

// find returns the index of the region containing addr, or -1.
func (rs Regions) find(addr uint64) int {
	i := sort.Search(len(rs), func(i int) bool { return rs[i].End() > addr })
	if i < len(rs) && rs[i].Contains(addr) {
		return i
	}
	return -1
}

func (rs Regions) Find(addr uint64) *Region {
	if i := rs.find(addr); i >= 0 {
		return rs[i]
	}
	return nil
}
