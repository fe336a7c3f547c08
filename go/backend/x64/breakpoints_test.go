package x64

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/cpu/unicorn"
	"github.com/ST3ALth/xenia/go/exception"
	"github.com/ST3ALth/xenia/go/models"
)

var nops = bytes.Repeat([]byte{0x90}, 0x20)

func placeGuest(t *testing.T, b *Backend) *CompiledFunction {
	srcmap := []SourceMapEntry{{0x82000000, 0}, {0x82000004, 0x08}, {0x82000008, 0x10}}
	fn, err := b.CodeCache().PlaceGuestCode(0x82000000, 0x8200000c, nops, srcmap)
	if err != nil {
		t.Fatal(err)
	}
	return fn
}

func TestGuestBreakpointEveryCopy(t *testing.T) {
	b, mem, _ := newMemBackend(t)
	f1 := placeGuest(t, b)
	f2 := placeGuest(t, b)

	bp := models.NewGuestBreakpoint(0x82000004)
	if err := b.InstallBreakpoint(bp); err != nil {
		t.Fatal(err)
	}
	for _, fn := range []*CompiledFunction{f1, f2} {
		p, _ := mem.MemRead(fn.HostAddr+0x08, 2)
		if !bytes.Equal(p, []byte{0x0f, 0x0b}) {
			t.Errorf("no trap in copy at 0x%x: % x", fn.HostAddr, p)
		}
		if b.BreakpointAt(fn.HostAddr+0x08) != bp {
			t.Error("BreakpointAt missed trap")
		}
	}
	if len(bp.Traps()) != 2 || len(b.Breakpoints()) != 1 {
		t.Fatalf("traps=%d breakpoints=%d", len(bp.Traps()), len(b.Breakpoints()))
	}

	if err := b.UninstallBreakpoint(bp); err != nil {
		t.Fatal(err)
	}
	for _, fn := range []*CompiledFunction{f1, f2} {
		p, _ := mem.MemRead(fn.HostAddr, uint64(len(nops)))
		if !bytes.Equal(p, nops) {
			t.Errorf("original bytes not restored: % x", p)
		}
	}
	if bp.Installed() || len(b.Breakpoints()) != 0 {
		t.Error("breakpoint still tracked after uninstall")
	}
}

func TestBreakpointInFunction(t *testing.T) {
	b, mem, _ := newMemBackend(t)
	f1 := placeGuest(t, b)
	f2 := placeGuest(t, b)
	bp := models.NewGuestBreakpoint(0x82000008)
	if err := b.InstallBreakpointInFunction(bp, f2); err != nil {
		t.Fatal(err)
	}
	if p, _ := mem.MemRead(f1.HostAddr+0x10, 2); p[0] != 0x90 {
		t.Error("trap installed in the wrong copy")
	}
	if p, _ := mem.MemRead(f2.HostAddr+0x10, 2); p[0] != 0x0f {
		t.Error("trap missing")
	}
	if err := b.InstallBreakpointInFunction(models.NewGuestBreakpoint(0x82000006), f1); err == nil {
		t.Error("expected error for an unmapped guest address")
	}
	if err := b.InstallBreakpointInFunction(models.NewHostBreakpoint(f1.HostAddr), f1); err == nil {
		t.Error("expected error for a host breakpoint")
	}
}

func TestHostBreakpoint(t *testing.T) {
	b, mem, _ := newMemBackend(t)
	fn := placeGuest(t, b)
	bp := models.NewHostBreakpoint(fn.HostAddr + 3)
	if err := b.InstallBreakpoint(bp); err != nil {
		t.Fatal(err)
	}
	if diff := bp.Traps(); len(diff) != 1 || diff[0].Orig != 0x9090 {
		t.Errorf("traps = %+v", diff)
	}
	if err := b.UninstallBreakpoint(bp); err != nil {
		t.Fatal(err)
	}
	if p, _ := mem.MemRead(fn.HostAddr+3, 2); p[0] != 0x90 || p[1] != 0x90 {
		t.Errorf("restore failed: % x", p)
	}
}

func TestDoubleInstallPanics(t *testing.T) {
	b, _, _ := newMemBackend(t)
	fn := placeGuest(t, b)
	if err := b.InstallBreakpoint(models.NewHostBreakpoint(fn.HostAddr)); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic installing over an existing trap")
		}
	}()
	b.InstallBreakpoint(models.NewHostBreakpoint(fn.HostAddr))
}

func TestUninstallOverwrittenPanics(t *testing.T) {
	b, mem, _ := newMemBackend(t)
	fn := placeGuest(t, b)
	bp := models.NewHostBreakpoint(fn.HostAddr)
	if err := b.InstallBreakpoint(bp); err != nil {
		t.Fatal(err)
	}
	mem.MemWrite(fn.HostAddr, []byte{0xcc, 0xcc})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic restoring an overwritten trap")
		}
	}()
	b.UninstallBreakpoint(bp)
}

func TestExceptionCallback(t *testing.T) {
	b, _, proc := newMemBackend(t)
	fn := placeGuest(t, b)
	bp := models.NewHostBreakpoint(fn.HostAddr + 4)
	if err := b.InstallBreakpoint(bp); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		ex   *models.Exception
		want bool
	}{
		{&models.Exception{Code: models.ExceptionIllegalInstruction, PC: fn.HostAddr + 4}, true},
		{&models.Exception{Code: models.ExceptionIllegalInstruction, PC: fn.HostAddr}, false},
		{&models.Exception{Code: models.ExceptionAccessViolation, PC: fn.HostAddr + 4}, false},
		{&models.Exception{Code: models.ExceptionIllegalInstruction, PC: 0x1234}, false},
	}
	for i, test := range tests {
		if got := b.ExceptionCallback(test.ex); got != test.want {
			t.Errorf("case %d: got %v, want %v", i, got, test.want)
		}
	}
	if len(proc.hits) != 1 || proc.hits[0] != tests[0].ex {
		t.Errorf("processor saw %d hits", len(proc.hits))
	}
}

// newHostBackend runs the backend inside the emulated host so thunks and
// traps really execute.
func newHostBackend(t *testing.T, proc *fakeProc) (*Backend, *unicorn.Host) {
	d := exception.NewDispatcher()
	h, err := unicorn.NewHost(d)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { h.Close() })
	if _, err := h.MapStack(0x20000000, 0x10000); err != nil {
		t.Fatal(err)
	}
	var b *Backend
	resolver, err := h.RegisterNative("resolve_function", func(ctx, guest uint64) uint64 {
		return b.ResolveFunction(ctx, guest)
	})
	if err != nil {
		t.Fatal(err)
	}
	b = New(testConfig(), h, proc, resolver)
	b.Dispatcher = d
	if err := b.Initialize(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Shutdown)
	return b, h
}

func TestBreakpointHitUnderEmulation(t *testing.T) {
	proc := &fakeProc{}
	b, h := newHostBackend(t, proc)
	fn, err := b.CodeCache().PlaceGuestCode(0x82000000, 0x82000008,
		[]byte{0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0xc3},
		[]SourceMapEntry{{0x82000000, 0}, {0x82000004, 4}})
	if err != nil {
		t.Fatal(err)
	}
	bp := models.NewGuestBreakpoint(0x82000004)
	if err := b.InstallBreakpoint(bp); err != nil {
		t.Fatal(err)
	}
	_, err = h.Call(fn.HostAddr)
	fault, ok := errors.Cause(err).(*unicorn.Fault)
	if !ok {
		t.Fatalf("expected a fault, got %v", err)
	}
	if !fault.Handled {
		t.Error("trap was not claimed by the backend")
	}
	if fault.Exception.PC != fn.HostAddr+4 {
		t.Errorf("fault pc 0x%x, expected 0x%x", fault.Exception.PC, fn.HostAddr+4)
	}
	if len(proc.hits) != 1 || b.BreakpointAt(proc.hits[0].PC) != bp {
		t.Error("processor was not told about the breakpoint")
	}
}

func TestResolveThroughIndirection(t *testing.T) {
	proc := &fakeProc{}
	b, h := newHostBackend(t, proc)
	cache := b.CodeCache()
	if err := cache.CommitExecutableRange(0x82000000, 0x82000fff); err != nil {
		t.Fatal(err)
	}
	// mov eax, 0x1234; ret
	target, err := cache.PlaceHostCode([]byte{0xb8, 0x34, 0x12, 0x00, 0x00, 0xc3})
	if err != nil {
		t.Fatal(err)
	}
	proc.resolve = func(addr uint32) (uint64, error) {
		if addr != 0x82000000 {
			return 0, errors.Errorf("unexpected guest address 0x%x", addr)
		}
		return target, nil
	}
	caller, err := cache.PlaceHostCode([]byte{
		0x48, 0x83, 0xec, 0x08, // sub rsp, 8
		0xbb, 0x00, 0x00, 0x00, 0x82, // mov ebx, 0x82000000
		0x8b, 0x03, // mov eax, [rbx]
		0xff, 0xd0, // call rax
		0x48, 0x83, 0xc4, 0x08, // add rsp, 8
		0xc3, // ret
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		ret, err := h.Call(caller, 0xC0DE)
		if err != nil {
			t.Fatal(err)
		}
		if ret != 0x1234 {
			t.Fatalf("call %d returned 0x%x", i, ret)
		}
	}
	if len(proc.resolved) != 1 {
		t.Errorf("processor resolved %d times, expected once", len(proc.resolved))
	}
	if entry, _ := cache.Indirection(0x82000000); uint64(entry) != target {
		t.Errorf("indirection entry 0x%x, expected 0x%x", entry, target)
	}
}

type failingWrites struct {
	models.Memory
	addr uint64
}

func (m *failingWrites) MemWrite(addr uint64, p []byte) error {
	if addr == m.addr {
		return errors.Errorf("write to 0x%x refused", addr)
	}
	return m.Memory.MemWrite(addr, p)
}

func TestInstallBreakpointRollsBack(t *testing.T) {
	b, mem, _ := newMemBackend(t)
	f1 := placeGuest(t, b)
	f2 := placeGuest(t, b)
	b.mem = &failingWrites{Memory: mem, addr: f2.HostAddr + 0x08}

	bp := models.NewGuestBreakpoint(0x82000004)
	if err := b.InstallBreakpoint(bp); err == nil {
		t.Fatal("expected install to fail on the second copy")
	}
	if p, _ := mem.MemRead(f1.HostAddr, uint64(len(nops))); !bytes.Equal(p, nops) {
		t.Errorf("first copy left patched: % x", p)
	}
	if bp.Installed() || len(b.Breakpoints()) != 0 || b.BreakpointAt(f1.HostAddr+0x08) != nil {
		t.Error("failed install left state behind")
	}

	b.mem = mem
	if err := b.InstallBreakpoint(bp); err != nil {
		t.Fatal(err)
	}
	if len(bp.Traps()) != 2 {
		t.Errorf("reinstall placed %d traps", len(bp.Traps()))
	}
}
