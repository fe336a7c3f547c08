package x64

import (
	"fmt"

	"github.com/pkg/errors"
)

type ThunkKind int

const (
	HostToGuest ThunkKind = iota
	GuestToHost
	ResolveFunction
)

func (k ThunkKind) String() string {
	switch k {
	case HostToGuest:
		return "host_to_guest"
	case GuestToHost:
		return "guest_to_host"
	case ResolveFunction:
		return "resolve_function"
	}
	return fmt.Sprintf("thunk(%d)", int(k))
}

var ThunkKinds = []ThunkKind{HostToGuest, GuestToHost, ResolveFunction}

// ThunkBuilder hides the register shuffles: callers only get an entry
// point that follows the documented argument contract.
//
//	HostToGuest(target=rcx, arg0=rdx, arg1=r8)
//	GuestToHost(context=rcx, target=rdx, arg0=r8, arg1=r9, arg2=r10)
//	ResolveFunction(context=rcx, guest address=rbx), tail jumps to the result
type ThunkBuilder interface {
	Build(kind ThunkKind) (uint64, error)
}

// ThunkEmitter produces the raw thunk bytes.
type ThunkEmitter struct {
	SaveXmm bool
	// host address of the native resolve routine: (context, guest) -> host
	Resolver uint64
}

func (e *ThunkEmitter) Emit(kind ThunkKind) ([]byte, error) {
	a := NewAssembler()
	switch kind {
	case HostToGuest:
		e.emitHostToGuest(a)
	case GuestToHost:
		e.emitGuestToHost(a)
	case ResolveFunction:
		if e.Resolver == 0 {
			return nil, errors.Errorf("resolve thunk needs a resolver address")
		}
		e.emitResolveFunction(a)
	default:
		return nil, errors.Errorf("unknown thunk kind %d", kind)
	}
	return a.Bytes(), nil
}

func (e *ThunkEmitter) pushRegisters(a *Assembler) {
	for _, r := range savedRegs {
		a.MovStackReg(r.disp, r.reg)
	}
	if e.SaveXmm {
		for i := 0; i < 10; i++ {
			a.MovapsStackXmm(SaveXmm6+int32(i)*16, Xmm(6+i))
		}
	}
}

func (e *ThunkEmitter) popRegisters(a *Assembler) {
	if e.SaveXmm {
		for i := 0; i < 10; i++ {
			a.MovapsXmmStack(Xmm(6+i), SaveXmm6+int32(i)*16)
		}
	}
	for _, r := range savedRegs {
		a.MovRegStack(r.reg, r.disp)
	}
}

// rcx = target, rdx = arg0, r8 = arg1
func (e *ThunkEmitter) emitHostToGuest(a *Assembler) {
	size := frameSize(e.SaveXmm)

	a.MovStackReg(HomeR8, R8)
	a.MovStackReg(HomeRdx, RDX)
	a.MovStackReg(HomeRcx, RCX)
	a.SubRsp(size)
	e.pushRegisters(a)

	a.MovRegReg(RAX, RCX)
	a.MovRegReg(RCX, RDX)
	a.MovRegReg(RDX, R8)
	a.CallReg(RAX)

	e.popRegisters(a)
	a.AddRsp(size)
	a.MovRegStack(RCX, HomeRcx)
	a.MovRegStack(RDX, HomeRdx)
	a.MovRegStack(R8, HomeR8)
	a.Ret()
}

// rcx = context, rdx = target, r8/r9/r10 = args
func (e *ThunkEmitter) emitGuestToHost(a *Assembler) {
	size := frameSize(e.SaveXmm)

	a.MovStackReg(HomeRdx, RDX)
	a.MovStackReg(HomeRcx, RCX)
	a.SubRsp(size)
	e.pushRegisters(a)

	a.MovRegReg(RAX, RDX)
	a.MovRegReg(RDX, R8)
	a.MovRegReg(R8, R9)
	a.MovRegReg(R9, R10)
	a.CallReg(RAX)

	e.popRegisters(a)
	a.AddRsp(size)
	a.MovRegStack(RCX, HomeRcx)
	a.MovRegStack(RDX, HomeRdx)
	a.Ret()
}

// rcx = context, rbx = guest address; jumps to the resolved host code so the
// caller's return address is still on top of the stack.
func (e *ThunkEmitter) emitResolveFunction(a *Assembler) {
	size := frameSize(e.SaveXmm)

	a.MovStackReg(HomeRdx, RDX)
	a.MovStackReg(HomeRcx, RCX)
	a.SubRsp(size)
	e.pushRegisters(a)

	a.MovRegReg(RDX, RBX)
	a.MovRegImm64(RAX, e.Resolver)
	a.CallReg(RAX)

	e.popRegisters(a)
	a.AddRsp(size)
	a.MovRegStack(RCX, HomeRcx)
	a.MovRegStack(RDX, HomeRdx)
	a.JmpReg(RAX)
}
