package unicorn

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/lunixbochs/argjoy"
	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/ST3ALth/xenia/go/exception"
	"github.com/ST3ALth/xenia/go/models"
	"github.com/ST3ALth/xenia/go/models/cpu"
)

const (
	DefaultStubBase = 0x7f000000
	stubPageSize    = 0x1000
)

// Fault is returned by Run when emulation stopped on a host exception.
type Fault struct {
	Exception *models.Exception
	Handled   bool
	Err       error
}

func (f *Fault) Error() string {
	if f.Handled {
		return fmt.Sprintf("stopped: %s", f.Exception)
	}
	return fmt.Sprintf("unhandled %s: %v", f.Exception, f.Err)
}

type native struct {
	name string
	fn   reflect.Value
}

// Host is an emulated x86-64 machine that runs thunks and JIT output.
// Native Go functions are reachable at stub addresses, and faults are
// turned into models.Exception and offered to the dispatcher.
type Host struct {
	*UnicornCpu
	Thread models.ThreadDebugInfo

	dispatcher *exception.Dispatcher
	aj         *argjoy.Argjoy

	mu        sync.Mutex
	stubBase  uint64
	stubNext  uint64
	stubLimit uint64
	natives   map[uint64]*native
	retStub   uint64
	lastFault uint64
	nativeErr error
}

func NewHost(d *exception.Dispatcher) (*Host, error) {
	u, err := X86_64.New()
	if err != nil {
		return nil, err
	}
	if d == nil {
		d = exception.Default
	}
	aj := argjoy.NewArgjoy()
	aj.Register(argjoy.IntToInt)
	h := &Host{
		UnicornCpu: u,
		dispatcher: d,
		aj:         aj,
		stubBase:   DefaultStubBase,
		stubNext:   DefaultStubBase,
		natives:    make(map[uint64]*native),
	}
	_, err = u.HookAdd(cpu.HOOK_MEM_ERR, func(_ cpu.Cpu, access int, addr uint64, size int, val int64) bool {
		h.lastFault = addr
		return false
	}, 1, 0)
	if err != nil {
		u.Close()
		return nil, errors.Wrap(err, "failed to hook memory faults")
	}
	return h, nil
}

func (h *Host) MapStack(top, size uint64) (uint64, error) {
	if err := h.MemMapProt(top-size, size, cpu.PROT_RW); err != nil {
		return 0, errors.Wrap(err, "failed to map stack")
	}
	return top, h.HostRegWrite(models.RSP, top)
}

// RegisterNative places a ret at a fresh stub address and runs fn when
// execution reaches it. Arguments come from rcx, rdx, r8 and r9 in that
// order, and the first result is returned in rax.
func (h *Host) RegisterNative(name string, fn interface{}) (uint64, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.Type().IsVariadic() || v.Type().NumIn() > 4 {
		return 0, errors.Errorf("native %s: need a non-variadic func with at most 4 args, got %T", name, fn)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stubNext >= h.stubLimit {
		if err := h.MemMapProt(h.stubNext, stubPageSize, cpu.PROT_RX); err != nil {
			return 0, errors.Wrap(err, "failed to map native stub page")
		}
		h.stubLimit = h.stubNext + stubPageSize
	}
	addr := h.stubNext
	h.stubNext += 16
	if err := h.MemWrite(addr, []byte{0xc3}); err != nil {
		return 0, err
	}
	n := &native{name: name, fn: v}
	h.natives[addr] = n
	_, err := h.HookAdd(cpu.HOOK_CODE, func(c cpu.Cpu, addr uint64, size uint32) {
		if err := h.callNative(n); err != nil {
			h.nativeErr = err
			h.Stop()
		}
	}, addr, addr)
	if err != nil {
		return 0, errors.Wrap(err, "failed to hook native stub")
	}
	return addr, nil
}

func (h *Host) NativeName(addr uint64) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n, ok := h.natives[addr]; ok {
		return n.name, true
	}
	return "", false
}

var argRegs = []int{models.RCX, models.RDX, models.R8, models.R9}

func (h *Host) callNative(n *native) error {
	args := make([]interface{}, n.fn.Type().NumIn())
	for i := range args {
		val, err := h.HostRegRead(argRegs[i])
		if err != nil {
			return err
		}
		args[i] = val
	}
	out, err := h.aj.Call(n.fn.Interface(), args...)
	if err != nil {
		return errors.Wrapf(err, "native %s", n.name)
	}
	if len(out) == 0 {
		return nil
	}
	if err, ok := out[len(out)-1].(error); ok && err != nil {
		return errors.Wrapf(err, "native %s", n.name)
	}
	ret := reflect.ValueOf(out[0])
	switch ret.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return h.HostRegWrite(models.RAX, ret.Uint())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return h.HostRegWrite(models.RAX, uint64(ret.Int()))
	case reflect.Bool:
		var b uint64
		if ret.Bool() {
			b = 1
		}
		return h.HostRegWrite(models.RAX, b)
	}
	return nil
}

func exceptionCode(err error) models.ExceptionCode {
	switch err {
	case uc.UcError(uc.ERR_INSN_INVALID):
		return models.ExceptionIllegalInstruction
	case uc.UcError(uc.ERR_READ_UNMAPPED), uc.UcError(uc.ERR_WRITE_UNMAPPED), uc.UcError(uc.ERR_FETCH_UNMAPPED),
		uc.UcError(uc.ERR_READ_PROT), uc.UcError(uc.ERR_WRITE_PROT), uc.UcError(uc.ERR_FETCH_PROT):
		return models.ExceptionAccessViolation
	}
	return models.ExceptionUnknown
}

// Run executes from begin until the until address is reached. A fault is
// offered to the dispatcher and comes back as *Fault; the handler may edit
// the exception context, which is written back before returning.
func (h *Host) Run(begin, until uint64) error {
	h.nativeErr = nil
	err := h.Start(begin, until)
	if h.nativeErr != nil {
		return h.nativeErr
	}
	if err == nil {
		return nil
	}
	ctx, cerr := h.Context()
	if cerr != nil {
		return errors.Wrapf(cerr, "reading context after %v", err)
	}
	h.Thread.HostContext = *ctx
	ex := &models.Exception{
		Code:    exceptionCode(err),
		PC:      ctx.Rip,
		Context: &h.Thread.HostContext,
		Thread:  &h.Thread,
	}
	if ex.Code == models.ExceptionAccessViolation {
		ex.FaultAddress = h.lastFault
	}
	handled := h.dispatcher.Dispatch(ex)
	if handled {
		if err := h.SetContext(ex.Context); err != nil {
			return err
		}
	}
	return &Fault{Exception: ex, Handled: handled, Err: err}
}

// Call runs a function at addr with up to four arguments, returning rax.
// A return address pointing at a private ret stub ends the run.
func (h *Host) Call(addr uint64, args ...uint64) (uint64, error) {
	if len(args) > len(argRegs) {
		return 0, errors.Errorf("too many arguments: %d", len(args))
	}
	ret, err := h.ReturnAddress()
	if err != nil {
		return 0, err
	}
	for i, v := range args {
		if err := h.HostRegWrite(argRegs[i], v); err != nil {
			return 0, err
		}
	}
	sp, err := h.HostRegRead(models.RSP)
	if err != nil {
		return 0, err
	}
	// keep the win64 home area above the return address
	sp -= 8 * 5
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(ret >> (8 * uint(i)))
	}
	if err := h.MemWrite(sp, buf[:]); err != nil {
		return 0, err
	}
	if err := h.HostRegWrite(models.RSP, sp); err != nil {
		return 0, err
	}
	if err := h.Run(addr, ret); err != nil {
		return 0, err
	}
	// the return address was consumed by ret
	if err := h.HostRegWrite(models.RSP, sp+8*5); err != nil {
		return 0, err
	}
	return h.HostRegRead(models.RAX)
}

// ReturnAddress is a ret stub for use as the outermost return address of a
// run; pass it as Run's until address.
func (h *Host) ReturnAddress() (uint64, error) {
	if h.retStub != 0 {
		return h.retStub, nil
	}
	addr, err := h.RegisterNative("return", func() {})
	if err != nil {
		return 0, err
	}
	h.retStub = addr
	return addr, nil
}
