// Package debug drives JIT output under the emulated host: raw code is placed
// in the code cache as a guest function, entered through the host-to-guest
// thunk and stepped with the backend's trap breakpoints.
package debug

import (
	"fmt"
	"log"

	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/backend/x64"
	"github.com/ST3ALth/xenia/go/cpu"
	"github.com/ST3ALth/xenia/go/cpu/unicorn"
	"github.com/ST3ALth/xenia/go/exception"
	"github.com/ST3ALth/xenia/go/models"
)

const (
	DefaultGuestBase = 0x82000000

	stackTop  = 0x20000000
	stackSize = 0x10000
	// win64 home area plus the return address
	entryFrame = 8 * 5
)

var (
	ErrExited     = errors.New("program exited")
	ErrNotStarted = errors.New("no code loaded")
)

// Debugger owns one emulated host with an initialized backend. It is the
// backend's Processor: guest addresses resolve to code placed with Load.
type Debugger struct {
	Config  *models.Config
	Host    *unicorn.Host
	Backend *x64.Backend
	Guest   *x64.CompiledFunction

	log     *log.Logger
	asm     *cpu.Keystone
	listing cpu.Capstr
	ret     uint64

	pc      uint64
	args    []uint64
	started bool
	exited  bool
	// context at the previous stop, for diffs
	last models.HostContext
	hits []*models.Exception
}

func NewDebugger(cfg *models.Config) (*Debugger, error) {
	cfg = cfg.Init()
	d := &Debugger{Config: cfg, log: cfg.Logger()}
	disp := exception.NewDispatcher()
	h, err := unicorn.NewHost(disp)
	if err != nil {
		return nil, err
	}
	d.Host = h
	if _, err := h.MapStack(stackTop, stackSize); err != nil {
		h.Close()
		return nil, err
	}
	resolver, err := h.RegisterNative("resolve_function", func(ctx, guest uint64) uint64 {
		return d.Backend.ResolveFunction(ctx, guest)
	})
	if err != nil {
		h.Close()
		return nil, err
	}
	if d.ret, err = h.ReturnAddress(); err != nil {
		h.Close()
		return nil, err
	}
	d.Backend = x64.New(cfg, h, d, resolver)
	d.Backend.Dispatcher = disp
	if err := d.Backend.Initialize(); err != nil {
		d.Close()
		return nil, errors.Wrap(err, "backend initialization failed")
	}
	if d.asm, err = cpu.NewKeystone(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Debugger) Close() error {
	if d.asm != nil {
		d.asm.Close()
	}
	d.Backend.Shutdown()
	return d.Host.Close()
}

// ResolveFunction implements x64.Processor.
func (d *Debugger) ResolveFunction(guest uint32) (uint64, error) {
	if fn := d.Backend.CodeCache().FunctionStartingAt(guest); fn != nil {
		return fn.HostAddr, nil
	}
	return 0, errors.Errorf("no code placed for guest 0x%08x", guest)
}

// OnThreadBreakpointHit implements x64.Processor.
func (d *Debugger) OnThreadBreakpointHit(ex *models.Exception) {
	d.hits = append(d.hits, ex)
}

// Hits lists every breakpoint exception seen so far, temporary step traps
// included.
func (d *Debugger) Hits() []*models.Exception { return d.hits }

// Load places x86-64 code as the guest function at guestBase, one source map
// entry per instruction, and enters it with args.
func (d *Debugger) Load(code []byte, guestBase uint32, args ...uint64) (*x64.CompiledFunction, error) {
	if len(args) > 2 {
		return nil, errors.Errorf("too many arguments: %d", len(args))
	}
	dis, err := d.Backend.Disassembler().Dis(code, uint64(guestBase))
	if err != nil {
		return nil, err
	}
	if len(dis) == 0 {
		return nil, errors.New("no instructions decoded")
	}
	srcmap := make([]x64.SourceMapEntry, len(dis))
	for i, ins := range dis {
		srcmap[i] = x64.SourceMapEntry{GuestAddr: uint32(ins.Addr()), HostOffset: uint32(ins.Addr()) - guestBase}
	}
	end := guestBase + uint32(len(code))
	fn, err := d.Backend.CodeCache().PlaceGuestCode(guestBase, end, code, srcmap)
	if err != nil {
		return nil, err
	}
	d.Guest = fn
	d.args = args
	return fn, d.Restart()
}

// Restart rebuilds the entry frame and stops on the first thunk instruction.
func (d *Debugger) Restart() error {
	if d.Guest == nil {
		return ErrNotStarted
	}
	sp := uint64(stackTop - entryFrame)
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(d.ret >> (8 * uint(i)))
	}
	if err := d.Host.MemWrite(sp, buf[:]); err != nil {
		return err
	}
	regs := []struct {
		enum int
		val  uint64
	}{
		{models.RSP, sp},
		{models.RCX, d.Guest.HostAddr},
		{models.RDX, 0},
		{models.R8, 0},
	}
	for i, v := range d.args {
		regs[2+i].val = v
	}
	for _, r := range regs {
		if err := d.Host.HostRegWrite(r.enum, r.val); err != nil {
			return err
		}
	}
	d.pc = d.Backend.Thunk(x64.HostToGuest)
	if err := d.Host.HostRegWrite(models.RIP, d.pc); err != nil {
		return err
	}
	d.started, d.exited = true, false
	ctx, err := d.Context()
	if err != nil {
		return err
	}
	d.last = *ctx
	return nil
}

func (d *Debugger) PC() uint64 { return d.pc }

func (d *Debugger) Exited() bool { return d.exited }

// Context reads the current register state into the thread info.
func (d *Debugger) Context() (*models.HostContext, error) {
	ctx, err := d.Host.Context()
	if err != nil {
		return nil, err
	}
	// the emulator pc is stale after a stop
	ctx.Rip = d.pc
	d.Host.Thread.HostContext = *ctx
	return ctx, nil
}

func (d *Debugger) SetReg(enum int, val uint64) error {
	if enum == models.RIP {
		d.pc = val
	}
	return d.Host.HostRegWrite(enum, val)
}

func (d *Debugger) MemRead(addr, size uint64) ([]byte, error) {
	return d.Host.MemRead(addr, size)
}

func (d *Debugger) MemWrite(addr uint64, p []byte) error {
	return d.Host.MemWrite(addr, p)
}

func (d *Debugger) Disassemble(addr, size uint64) ([]models.Ins, error) {
	mem, err := d.Host.MemRead(addr, size)
	if err != nil {
		return nil, err
	}
	return d.listing.Dis(mem, addr)
}

// Assemble assembles asm for addr and writes it there.
func (d *Debugger) Assemble(asm string, addr uint64) ([]byte, error) {
	code, err := d.asm.Asm(asm, addr)
	if err != nil {
		return nil, err
	}
	return code, d.Host.MemWrite(addr, code)
}

// GuestAddress maps a host pc in placed guest code back to the guest
// instruction it belongs to.
func (d *Debugger) GuestAddress(pc uint64) (uint32, bool) {
	fn := d.Backend.CodeCache().LookupFunction(pc)
	if fn == nil || len(fn.SourceMap) == 0 {
		return 0, false
	}
	off := uint32(pc - fn.HostAddr)
	guest, found := uint32(0), false
	for _, e := range fn.SourceMap {
		if e.HostOffset <= off {
			guest, found = e.GuestAddr, true
		}
	}
	return guest, found
}

// Break parses and installs a breakpoint.
func (d *Debugger) Break(desc string) (*models.Breakpoint, error) {
	bp, err := models.NewBreakpoint(desc)
	if err != nil {
		return nil, err
	}
	return bp, d.install(bp)
}

func (d *Debugger) install(bp *models.Breakpoint) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%v", r)
		}
	}()
	return d.Backend.InstallBreakpoint(bp)
}

func (d *Debugger) Breakpoints() []*models.Breakpoint { return d.Backend.Breakpoints() }

func (d *Debugger) Delete(i int) error {
	bps := d.Backend.Breakpoints()
	if i < 0 || i >= len(bps) {
		return errors.Errorf("no breakpoint #%d", i)
	}
	return d.Backend.UninstallBreakpoint(bps[i])
}

func (d *Debugger) ready() error {
	if !d.started {
		return ErrNotStarted
	}
	if d.exited {
		return ErrExited
	}
	return nil
}

// run resumes at d.pc until the program returns or a trap fires.
func (d *Debugger) run(reason models.StopReason) (*models.Stop, error) {
	ctx, err := d.Context()
	if err != nil {
		return nil, err
	}
	d.last = *ctx
	err = d.Host.Run(d.pc, d.ret)
	if err == nil {
		d.exited = true
		d.pc = d.ret
		rax, err := d.Host.HostRegRead(models.RAX)
		return &models.Stop{Reason: models.StopExit, PC: d.ret, Result: rax}, err
	}
	fault, ok := errors.Cause(err).(*unicorn.Fault)
	if !ok || !fault.Handled {
		return nil, err
	}
	d.pc = fault.Exception.PC
	return &models.Stop{Reason: reason, PC: d.pc, Breakpoint: d.Backend.BreakpointAt(d.pc)}, nil
}

// stepOver runs past a trap at pc with its breakpoint lifted.
func (d *Debugger) stepOver(bp *models.Breakpoint) (*models.Stop, error) {
	if err := d.Backend.UninstallBreakpoint(bp); err != nil {
		return nil, err
	}
	stop, err := d.step()
	if ierr := d.install(bp); ierr != nil && err == nil {
		err = ierr
	}
	return stop, err
}

func (d *Debugger) nextPC() (next uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%v", r)
		}
	}()
	next, err = d.Backend.CalculateNextHostInstruction(&d.Host.Thread, d.pc)
	if errors.Cause(err) == x64.ErrUnimplemented {
		d.log.Printf("step: %v", err)
		err = nil
	}
	if err != nil {
		return 0, err
	}
	// natives run inside their hook, so stop after the call instead
	if _, ok := d.Host.NativeName(next); ok && next != d.ret {
		mem, err := d.Host.MemRead(d.pc, cpu.MaxInsLen)
		if err != nil {
			return 0, err
		}
		ins, err := d.Backend.Disassembler().Decode(mem, d.pc)
		if err != nil {
			return 0, err
		}
		next = d.pc + uint64(ins.Size)
	}
	return next, nil
}

func (d *Debugger) step() (*models.Stop, error) {
	if _, err := d.Context(); err != nil {
		return nil, err
	}
	next, err := d.nextPC()
	if err != nil {
		return nil, err
	}
	var tmp *models.Breakpoint
	if next != d.ret && d.Backend.BreakpointAt(next) == nil {
		tmp = models.NewHostBreakpoint(next)
		if err := d.install(tmp); err != nil {
			return nil, err
		}
	}
	stop, err := d.run(models.StopStep)
	if tmp != nil {
		if uerr := d.Backend.UninstallBreakpoint(tmp); uerr != nil && err == nil {
			err = uerr
		}
		if stop != nil && stop.Breakpoint == tmp {
			stop.Breakpoint = nil
		}
	}
	return stop, err
}

// Step executes one host instruction.
func (d *Debugger) Step() (*models.Stop, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	if bp := d.Backend.BreakpointAt(d.pc); bp != nil {
		return d.stepOver(bp)
	}
	return d.step()
}

// Continue runs until the next breakpoint or the end of the program.
func (d *Debugger) Continue() (*models.Stop, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	if bp := d.Backend.BreakpointAt(d.pc); bp != nil {
		stop, err := d.stepOver(bp)
		if err != nil || stop.Reason == models.StopExit {
			return stop, err
		}
		if stop.Breakpoint != nil {
			stop.Reason = models.StopBreakpoint
			return stop, nil
		}
	}
	return d.run(models.StopBreakpoint)
}

// Status describes the stop location and the registers changed since the
// previous stop.
func (d *Debugger) Status(color bool) (string, error) {
	ctx, err := d.Context()
	if err != nil {
		return "", err
	}
	loc := fmt.Sprintf("pc 0x%x", d.pc)
	if guest, ok := d.GuestAddress(d.pc); ok {
		loc += fmt.Sprintf(" (guest 0x%08x)", guest)
	} else if name, ok := d.Host.NativeName(d.pc); ok {
		loc += fmt.Sprintf(" (%s)", name)
	} else {
		for _, kind := range x64.ThunkKinds {
			if d.Backend.Thunk(kind) == d.pc {
				loc += fmt.Sprintf(" (%s thunk)", kind)
			}
		}
	}
	return loc + "\n" + ctx.Changes(&d.last).String(color), nil
}
