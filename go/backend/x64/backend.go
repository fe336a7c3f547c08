// Package x64 is the x86-64 host backend: it owns the code cache, emits the
// guest/host transition thunks, steps host code for the debugger and patches
// breakpoint traps into compiled code.
package x64

import (
	"encoding/binary"
	"log"
	"sync"

	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/cpu"
	"github.com/ST3ALth/xenia/go/exception"
	"github.com/ST3ALth/xenia/go/models"
)

// 0x9FFF0000-0x9FFFFFFF stays on the resolve thunk and is handed to
// emitted code as the "not yet known" call target.
const (
	SpecialIndirectionLow  = 0x9FFF0000
	SpecialIndirectionHigh = 0x9FFFFFFF
)

var ErrNotInitialized = errors.New("backend not initialized")

// Processor is the guest execution engine the backend serves.
type Processor interface {
	// ResolveFunction compiles (or finds) the guest function at addr and
	// returns its host entry point.
	ResolveFunction(guestAddr uint32) (uint64, error)
	// OnThreadBreakpointHit runs in the faulting thread's exception context.
	OnThreadBreakpointHit(ex *models.Exception)
}

type Backend struct {
	Config     *models.Config
	Dispatcher *exception.Dispatcher

	log      *log.Logger
	mem      models.Memory
	proc     Processor
	resolver uint64

	cache        *CodeCache
	dis          *cpu.Capstone
	registration *exception.Registration

	thunks     [3]uint64
	thunkSizes [3]int
	constants  uint64

	bpMu        sync.Mutex
	breakpoints []*models.Breakpoint
}

// New creates a backend writing code into mem. resolver is the host address
// of the native routine the resolve thunk calls with (context, guest address).
func New(cfg *models.Config, mem models.Memory, proc Processor, resolver uint64) *Backend {
	cfg = cfg.Init()
	return &Backend{
		Config:     cfg,
		Dispatcher: exception.Default,
		log:        cfg.Logger(),
		mem:        mem,
		proc:       proc,
		resolver:   resolver,
	}
}

func (b *Backend) Initialize() error {
	CheckFrameLayout()

	cache, err := NewCodeCache(b.mem, b.Config)
	if err != nil {
		return errors.Wrap(err, "failed to reserve executable memory")
	}
	b.cache = cache
	b.dis, err = cpu.NewCapstone()
	if err != nil {
		return err
	}

	for _, kind := range ThunkKinds {
		addr, size, err := b.build(kind)
		if err != nil {
			return errors.Wrapf(err, "failed to emit %s thunk", kind)
		}
		b.thunks[kind] = addr
		b.thunkSizes[kind] = size
	}
	resolve := b.thunks[ResolveFunction]
	if resolve>>32 != 0 {
		return errors.Errorf("resolve thunk 0x%x is outside 32-bit space", resolve)
	}
	cache.SetIndirectionTableDefault(uint32(resolve))
	if err := cache.CommitExecutableRange(SpecialIndirectionLow, SpecialIndirectionHigh); err != nil {
		return err
	}

	b.constants, err = cache.PlaceData(constantData())
	if err != nil {
		return errors.Wrap(err, "failed to place emitter constants")
	}

	if b.Dispatcher == nil {
		return errors.New("no exception dispatcher")
	}
	b.registration = b.Dispatcher.Register("x64 backend", exception.IllegalInstruction, b.ExceptionCallback)
	return nil
}

// Build emits and places one thunk.
func (b *Backend) Build(kind ThunkKind) (uint64, error) {
	addr, _, err := b.build(kind)
	return addr, err
}

func (b *Backend) build(kind ThunkKind) (uint64, int, error) {
	if b.cache == nil {
		return 0, 0, ErrNotInitialized
	}
	e := &ThunkEmitter{SaveXmm: b.Config.SaveVectorRegisters, Resolver: b.resolver}
	code, err := e.Emit(kind)
	if err != nil {
		return 0, 0, err
	}
	addr, err := b.cache.PlaceHostCode(code)
	return addr, len(code), err
}

func (b *Backend) Shutdown() {
	if b.registration != nil {
		b.Dispatcher.Unregister(b.registration)
		b.registration = nil
	}
	if b.dis != nil {
		b.dis.Close()
		b.dis = nil
	}
}

func (b *Backend) CodeCache() *CodeCache { return b.cache }

func (b *Backend) Memory() models.Memory { return b.mem }

func (b *Backend) Disassembler() *cpu.Capstone { return b.dis }

func (b *Backend) Thunk(kind ThunkKind) uint64 { return b.thunks[kind] }

// ThunkCode reads a thunk back from where Initialize placed it.
func (b *Backend) ThunkCode(kind ThunkKind) ([]byte, error) {
	if b.cache == nil {
		return nil, ErrNotInitialized
	}
	return b.mem.MemRead(b.thunks[kind], uint64(b.thunkSizes[kind]))
}

func (b *Backend) ConstantAddress(c XmmConst) uint64 {
	return b.constants + uint64(c)*16
}

// ResolveFunction is the body of the native resolve routine. It returns the
// host address to jump to, compiling through the processor when needed, and
// patches the indirection entry so later calls skip the thunk. Returns 0 on
// failure, which faults at the jump.
func (b *Backend) ResolveFunction(context uint64, guest uint64) uint64 {
	addr := uint32(guest)
	if fn := b.cache.FunctionStartingAt(addr); fn != nil {
		host, err := b.cache.AddIndirection(addr, fn.HostAddr)
		if err == nil {
			return host
		}
	}
	host, err := b.proc.ResolveFunction(addr)
	if err != nil {
		b.log.Printf("failed to resolve function 0x%08x: %v", addr, err)
		return 0
	}
	host, err = b.cache.AddIndirection(addr, host)
	if err != nil {
		b.log.Printf("failed to patch indirection for 0x%08x: %v", addr, err)
		return 0
	}
	b.Config.Debugf("resolved 0x%08x -> 0x%x (context 0x%x)", addr, host, context)
	return host
}

// ExceptionCallback claims illegal-instruction faults raised by our traps.
// It runs in the faulting thread and must not take locks.
func (b *Backend) ExceptionCallback(ex *models.Exception) bool {
	if ex.Code != models.ExceptionIllegalInstruction {
		return false
	}
	var buf [2]byte
	if err := b.mem.MemReadInto(buf[:], ex.PC); err != nil {
		return false
	}
	if binary.BigEndian.Uint16(buf[:]) != TrapEncoding {
		return false
	}
	b.proc.OnThreadBreakpointHit(ex)
	return true
}
