package debug

import (
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ST3ALth/xenia/go/models"
)

// mov eax, 1; add eax, 2; ret
var addCode = []byte{0xb8, 0x01, 0x00, 0x00, 0x00, 0x83, 0xc0, 0x02, 0xc3}

func newTestDebugger(t *testing.T) *Debugger {
	d, err := NewDebugger(&models.Config{Output: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	if _, err := d.Load(addCode, DefaultGuestBase); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestContinueToExit(t *testing.T) {
	d := newTestDebugger(t)
	stop, err := d.Continue()
	if err != nil {
		t.Fatal(err)
	}
	if stop.Reason != models.StopExit || stop.Result != 3 {
		t.Errorf("unexpected stop %s", stop)
	}
	if _, err := d.Step(); err != ErrExited {
		t.Errorf("step after exit: %v", err)
	}
}

func TestGuestBreakpoint(t *testing.T) {
	d := newTestDebugger(t)
	bp, err := d.Break("g:0x82000005")
	if err != nil {
		t.Fatal(err)
	}
	stop, err := d.Continue()
	if err != nil {
		t.Fatal(err)
	}
	if stop.Reason != models.StopBreakpoint || stop.Breakpoint != bp || stop.PC != d.Guest.HostAddr+5 {
		t.Fatalf("unexpected stop %s", stop)
	}
	if guest, ok := d.GuestAddress(stop.PC); !ok || guest != 0x82000005 {
		t.Errorf("guest address 0x%x %v", guest, ok)
	}
	ctx, err := d.Context()
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Reg(models.RAX)&0xffffffff != 1 {
		t.Errorf("rax = 0x%x at breakpoint", ctx.Reg(models.RAX))
	}
	stop, err = d.Continue()
	if err != nil {
		t.Fatal(err)
	}
	if stop.Reason != models.StopExit || stop.Result != 3 {
		t.Errorf("unexpected stop %s", stop)
	}
	if !bp.Installed() {
		t.Error("breakpoint was not reinstalled after stepping over it")
	}
}

func TestStepThroughGuest(t *testing.T) {
	d := newTestDebugger(t)
	var guest []uint32
	var last *models.Stop
	for i := 0; i < 200; i++ {
		stop, err := d.Step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		last = stop
		if stop.Reason == models.StopExit {
			break
		}
		if g, ok := d.GuestAddress(stop.PC); ok {
			guest = append(guest, g)
		}
	}
	if last.Reason != models.StopExit || last.Result != 3 {
		t.Fatalf("did not run to completion: %s", last)
	}
	expected := []uint32{0x82000000, 0x82000005, 0x82000008}
	if diff := cmp.Diff(expected, guest); diff != "" {
		t.Errorf("guest path mismatch (-want +got):\n%s", diff)
	}
	if len(d.Backend.Breakpoints()) != 0 {
		t.Error("temporary breakpoints leaked")
	}
}

func TestRestartAndRegs(t *testing.T) {
	d := newTestDebugger(t)
	if _, err := d.Continue(); err != nil {
		t.Fatal(err)
	}
	if err := d.Restart(); err != nil {
		t.Fatal(err)
	}
	if d.Exited() {
		t.Fatal("still exited after restart")
	}
	// skip the first guest instruction
	if _, err := d.Assemble("mov eax, 40", d.Guest.HostAddr); err != nil {
		t.Fatal(err)
	}
	stop, err := d.Continue()
	if err != nil {
		t.Fatal(err)
	}
	if stop.Result != 42 {
		t.Errorf("rax = %d, want 42", stop.Result)
	}
}
