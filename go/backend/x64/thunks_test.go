package x64

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/ST3ALth/xenia/go/cpu"
	"github.com/ST3ALth/xenia/go/cpu/unicorn"
	"github.com/ST3ALth/xenia/go/exception"
	"github.com/ST3ALth/xenia/go/models"
	mcpu "github.com/ST3ALth/xenia/go/models/cpu"
)

const (
	thunkBase  = 0x10000000
	stackTop   = 0x20000000
	targetBase = 0x30000000
)

func TestThunkDisassembly(t *testing.T) {
	e := &ThunkEmitter{}
	code, err := e.Emit(HostToGuest)
	if err != nil {
		t.Fatal(err)
	}
	dis, err := cpu.NewCapstone()
	if err != nil {
		t.Fatal(err)
	}
	defer dis.Close()
	ins, err := dis.Dis(code, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"mov qword ptr [rsp + 0x18], r8",
		"mov qword ptr [rsp + 0x10], rdx",
		"mov qword ptr [rsp + 8], rcx",
		"sub rsp, 0x78",
		"mov qword ptr [rsp + 0x30], rbx",
		"mov qword ptr [rsp + 0x38], rcx",
		"mov qword ptr [rsp + 0x40], rbp",
		"mov qword ptr [rsp + 0x48], rsi",
		"mov qword ptr [rsp + 0x50], rdi",
		"mov qword ptr [rsp + 0x58], r12",
		"mov qword ptr [rsp + 0x60], r13",
		"mov qword ptr [rsp + 0x68], r14",
		"mov qword ptr [rsp + 0x70], r15",
		"mov rax, rcx",
		"mov rcx, rdx",
		"mov rdx, r8",
		"call rax",
	}
	if len(ins) < len(want) {
		t.Fatalf("only %d instructions decoded", len(ins))
	}
	for i, w := range want {
		got := ins[i].Mnemonic() + " " + ins[i].OpStr()
		if got != w {
			t.Errorf("instruction %d: got %q, want %q", i, got, w)
		}
	}
	last := ins[len(ins)-1]
	if last.Mnemonic() != "ret" {
		t.Errorf("thunk should end in ret, got %s", last.Mnemonic())
	}
}

func TestResolveThunkNeedsResolver(t *testing.T) {
	e := &ThunkEmitter{}
	if _, err := e.Emit(ResolveFunction); err == nil {
		t.Fatal("expected error without a resolver address")
	}
}

type thunkHost struct {
	*unicorn.Host
	t *testing.T
}

func newThunkHost(t *testing.T) *thunkHost {
	h, err := unicorn.NewHost(exception.NewDispatcher())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.MapStack(stackTop, 0x10000); err != nil {
		t.Fatal(err)
	}
	if err := h.MemMapProt(thunkBase, 0x1000, mcpu.PROT_RX); err != nil {
		t.Fatal(err)
	}
	if err := h.MemMapProt(targetBase, 0x1000, mcpu.PROT_RX); err != nil {
		t.Fatal(err)
	}
	return &thunkHost{h, t}
}

func (h *thunkHost) place(e *ThunkEmitter, kind ThunkKind) uint64 {
	code, err := e.Emit(kind)
	if err != nil {
		h.t.Fatal(err)
	}
	if err := h.MemWrite(thunkBase, code); err != nil {
		h.t.Fatal(err)
	}
	return thunkBase
}

func (h *thunkHost) set(enum int, val uint64) {
	if err := h.HostRegWrite(enum, val); err != nil {
		h.t.Fatal(err)
	}
}

func (h *thunkHost) get(enum int) uint64 {
	val, err := h.HostRegRead(enum)
	if err != nil {
		h.t.Fatal(err)
	}
	return val
}

var calleeSaved = []int{models.RBX, models.RBP, models.RSI, models.RDI, models.R12, models.R13, models.R14, models.R15}

func forEachFrame(t *testing.T, fn func(t *testing.T, saveXmm bool)) {
	for _, saveXmm := range []bool{false, true} {
		t.Run(fmt.Sprintf("xmm=%v", saveXmm), func(t *testing.T) { fn(t, saveXmm) })
	}
}

func TestHostToGuestThunk(t *testing.T) {
	forEachFrame(t, func(t *testing.T, saveXmm bool) {
		h := newThunkHost(t)
		defer h.Close()
		var got [2]uint64
		target, err := h.RegisterNative("guest", func(arg0, arg1 uint64) uint64 {
			got = [2]uint64{arg0, arg1}
			return 42
		})
		if err != nil {
			t.Fatal(err)
		}
		thunk := h.place(&ThunkEmitter{SaveXmm: saveXmm}, HostToGuest)
		for i, reg := range calleeSaved {
			h.set(reg, 0x5000+uint64(i))
		}
		ret, err := h.Call(thunk, target, 7, 9)
		if err != nil {
			t.Fatal(err)
		}
		if ret != 42 {
			t.Errorf("return value %d, expected 42", ret)
		}
		if got != [2]uint64{7, 9} {
			t.Errorf("guest got args %v, expected [7 9]", got)
		}
		if h.get(models.RCX) != target || h.get(models.RDX) != 7 || h.get(models.R8) != 9 {
			t.Error("argument registers not restored")
		}
		for i, reg := range calleeSaved {
			if v := h.get(reg); v != 0x5000+uint64(i) {
				t.Errorf("%s = 0x%x after thunk", models.HostRegNames[reg], v)
			}
		}
		if sp := h.get(models.RSP); sp != stackTop {
			t.Errorf("rsp = 0x%x, expected 0x%x", sp, stackTop)
		}
	})
}

func TestGuestToHostThunk(t *testing.T) {
	forEachFrame(t, func(t *testing.T, saveXmm bool) {
		h := newThunkHost(t)
		defer h.Close()
		var got [4]uint64
		target, err := h.RegisterNative("export", func(ctx, a0, a1, a2 uint64) uint64 {
			got = [4]uint64{ctx, a0, a1, a2}
			return 0x77
		})
		if err != nil {
			t.Fatal(err)
		}
		thunk := h.place(&ThunkEmitter{SaveXmm: saveXmm}, GuestToHost)
		h.set(models.R10, 3)
		ret, err := h.Call(thunk, 0xC0DE, target, 1, 2)
		if err != nil {
			t.Fatal(err)
		}
		if ret != 0x77 {
			t.Errorf("return value 0x%x", ret)
		}
		if got != [4]uint64{0xC0DE, 1, 2, 3} {
			t.Errorf("host export got %x", got)
		}
		if h.get(models.RCX) != 0xC0DE || h.get(models.RDX) != target {
			t.Error("rcx/rdx not restored")
		}
	})
}

func TestResolveThunkTailCall(t *testing.T) {
	forEachFrame(t, func(t *testing.T, saveXmm bool) {
		h := newThunkHost(t)
		defer h.Close()
		const resolved = targetBase + 0x100
		var ctx, guest uint64
		resolver, err := h.RegisterNative("resolve", func(c, g uint64) uint64 {
			ctx, guest = c, g
			return resolved
		})
		if err != nil {
			t.Fatal(err)
		}
		thunk := h.place(&ThunkEmitter{SaveXmm: saveXmm, Resolver: resolver}, ResolveFunction)

		// as if a compiled function had just called the thunk
		const sp = stackTop - 0x108
		const retAddr = 0x12345678
		var ret [8]byte
		binary.LittleEndian.PutUint64(ret[:], retAddr)
		if err := h.MemWrite(sp, ret[:]); err != nil {
			t.Fatal(err)
		}
		h.set(models.RSP, sp)
		h.set(models.RBX, 0x82001234)
		h.set(models.RCX, 0xC0DE)
		h.set(models.RDX, 0xAAAA)
		h.set(models.R12, 0x1212)

		if err := h.Run(thunk, resolved); err != nil {
			t.Fatal(err)
		}
		if ctx != 0xC0DE || guest != 0x82001234 {
			t.Errorf("resolver called with (0x%x, 0x%x)", ctx, guest)
		}
		if pc := h.get(models.RIP); pc != resolved {
			t.Errorf("rip = 0x%x, expected 0x%x", pc, resolved)
		}
		if got := h.get(models.RSP); got != sp {
			t.Errorf("rsp = 0x%x, expected 0x%x", got, sp)
		}
		top, err := h.MemRead(sp, 8)
		if err != nil {
			t.Fatal(err)
		}
		if got := binary.LittleEndian.Uint64(top); got != retAddr {
			t.Errorf("return address clobbered: 0x%x", got)
		}
		if h.get(models.RBX) != 0x82001234 || h.get(models.RCX) != 0xC0DE ||
			h.get(models.RDX) != 0xAAAA || h.get(models.R12) != 0x1212 {
			t.Error("registers not restored before tail jump")
		}
	})
}
