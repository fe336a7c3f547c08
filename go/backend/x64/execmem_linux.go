//go:build linux && amd64

package x64

import (
	"sort"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type nativeRegion struct {
	addr uint64
	data []byte
}

// NativeMemory maps real host memory at fixed addresses, so the code cache
// and indirection table land where emitted code expects them.
type NativeMemory struct {
	mu      sync.RWMutex
	regions []*nativeRegion
}

func NewNativeMemory() *NativeMemory {
	return &NativeMemory{}
}

func (m *NativeMemory) MemMapProt(addr, size uint64, prot int) error {
	ptr, err := unix.MmapPtr(-1, 0, unsafe.Pointer(uintptr(addr)), uintptr(size), prot,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED_NOREPLACE)
	if err != nil {
		return errors.Wrapf(err, "mmap 0x%x+0x%x", addr, size)
	}
	if uint64(uintptr(ptr)) != addr {
		unix.MunmapPtr(ptr, uintptr(size))
		return errors.Errorf("mmap 0x%x: kernel placed mapping at %p", addr, ptr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions = append(m.regions, &nativeRegion{addr: addr, data: unsafe.Slice((*byte)(ptr), size)})
	sort.Slice(m.regions, func(i, j int) bool { return m.regions[i].addr < m.regions[j].addr })
	return nil
}

func (m *NativeMemory) find(addr, size uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := sort.Search(len(m.regions), func(i int) bool {
		r := m.regions[i]
		return r.addr+uint64(len(r.data)) > addr
	})
	if i < len(m.regions) {
		r := m.regions[i]
		if addr >= r.addr && addr+size <= r.addr+uint64(len(r.data)) {
			o := addr - r.addr
			return r.data[o : o+size], nil
		}
	}
	return nil, errors.Errorf("0x%x+0x%x is not mapped", addr, size)
}

func (m *NativeMemory) MemProt(addr, size uint64, prot int) error {
	p, err := m.find(addr, size)
	if err != nil {
		return err
	}
	return errors.Wrap(unix.Mprotect(p, prot), "mprotect")
}

func (m *NativeMemory) MemReadInto(p []byte, addr uint64) error {
	src, err := m.find(addr, uint64(len(p)))
	if err != nil {
		return err
	}
	copy(p, src)
	return nil
}

func (m *NativeMemory) MemRead(addr, size uint64) ([]byte, error) {
	p := make([]byte, size)
	return p, m.MemReadInto(p, addr)
}

func (m *NativeMemory) MemWrite(addr uint64, p []byte) error {
	dst, err := m.find(addr, uint64(len(p)))
	if err != nil {
		return err
	}
	copy(dst, p)
	return nil
}

func (m *NativeMemory) StoreUint32(addr uint64, val uint32) error {
	if addr&3 != 0 {
		return errors.Errorf("unaligned indirection store at 0x%x", addr)
	}
	dst, err := m.find(addr, 4)
	if err != nil {
		return err
	}
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&dst[0])), val)
	return nil
}

func (m *NativeMemory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for _, r := range m.regions {
		if err := unix.Munmap(r.data); err != nil && first == nil {
			first = err
		}
	}
	m.regions = nil
	return first
}
