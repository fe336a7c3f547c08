package cpu

type Hook interface{}

// Cpu is the minimum an emulated host needs to run thunks and JIT output.
type Cpu interface {
	MemMapProt(addr, size uint64, prot int) error
	MemProt(addr, size uint64, prot int) error
	MemUnmap(addr, size uint64) error

	MemRead(addr, size uint64) ([]byte, error)
	MemReadInto(p []byte, addr uint64) error
	MemWrite(addr uint64, p []byte) error

	RegRead(reg int) (uint64, error)
	RegWrite(reg int, val uint64) error

	Start(begin, until uint64) error
	Stop() error

	HookAdd(htype int, cb interface{}, begin, end uint64, extra ...int) (Hook, error)
	HookDel(hook Hook) error

	Close() error
}
