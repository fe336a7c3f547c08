package models

// Memory is the host address space the code cache and breakpoint manager
// write into. Implemented by the simulated memory in models/cpu, the unicorn
// host and the native mmap region.
type Memory interface {
	MemMapProt(addr, size uint64, prot int) error
	MemProt(addr, size uint64, prot int) error
	MemRead(addr, size uint64) ([]byte, error)
	MemReadInto(p []byte, addr uint64) error
	MemWrite(addr uint64, p []byte) error
}
