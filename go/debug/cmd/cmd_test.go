package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/models"
)

type fakeInsn struct {
	addr uint64
	b    []byte
}

func (f fakeInsn) Addr() uint64     { return f.addr }
func (f fakeInsn) Bytes() []byte    { return f.b }
func (f fakeInsn) Mnemonic() string { return "nop" }
func (f fakeInsn) OpStr() string    { return "" }

type fakeTarget struct {
	ctx   models.HostContext
	mem   map[uint64]byte
	bps   []*models.Breakpoint
	steps int
	stops []*models.Stop
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{mem: make(map[uint64]byte)}
}

func (f *fakeTarget) Break(desc string) (*models.Breakpoint, error) {
	bp, err := models.NewBreakpoint(desc)
	if err != nil {
		return nil, err
	}
	f.bps = append(f.bps, bp)
	return bp, nil
}

func (f *fakeTarget) Delete(i int) error {
	if i < 0 || i >= len(f.bps) {
		return errors.Errorf("no breakpoint #%d", i)
	}
	f.bps = append(f.bps[:i], f.bps[i+1:]...)
	return nil
}

func (f *fakeTarget) Breakpoints() []*models.Breakpoint { return f.bps }

func (f *fakeTarget) Step() (*models.Stop, error) {
	f.steps++
	if len(f.stops) > 0 {
		s := f.stops[0]
		f.stops = f.stops[1:]
		return s, nil
	}
	return &models.Stop{Reason: models.StopStep, PC: 0x1000 + uint64(f.steps)}, nil
}

func (f *fakeTarget) Continue() (*models.Stop, error) {
	return &models.Stop{Reason: models.StopExit, Result: 42}, nil
}

func (f *fakeTarget) Restart() error { return nil }

func (f *fakeTarget) Status(color bool) (string, error) { return "status", nil }

func (f *fakeTarget) Context() (*models.HostContext, error) {
	ctx := f.ctx
	return &ctx, nil
}

func (f *fakeTarget) SetReg(enum int, val uint64) error {
	f.ctx.SetReg(enum, val)
	return nil
}

func (f *fakeTarget) MemRead(addr, size uint64) ([]byte, error) {
	out := make([]byte, size)
	for i := range out {
		out[i] = f.mem[addr+uint64(i)]
	}
	return out, nil
}

func (f *fakeTarget) MemWrite(addr uint64, p []byte) error {
	for i, b := range p {
		f.mem[addr+uint64(i)] = b
	}
	return nil
}

func (f *fakeTarget) Disassemble(addr, size uint64) ([]models.Ins, error) {
	return []models.Ins{fakeInsn{addr, []byte{0x90}}, fakeInsn{addr + 1, []byte{0x90}}}, nil
}

func (f *fakeTarget) Assemble(asm string, addr uint64) ([]byte, error) {
	if asm != "nop; nop" {
		return nil, errors.Errorf("unexpected asm %q", asm)
	}
	return []byte{0x90, 0x90}, f.MemWrite(addr, []byte{0x90, 0x90})
}

func (f *fakeTarget) PC() uint64 { return 0x1001 }

func run(t *testing.T, target Target, lines ...string) string {
	t.Helper()
	var buf bytes.Buffer
	c := &Context{ReadWriter: &buf, T: target}
	for _, line := range lines {
		if err := Run(c, line); err != nil {
			t.Fatalf("%q: %v", line, err)
		}
	}
	return buf.String()
}

func TestRegAssign(t *testing.T) {
	f := newFakeTarget()
	out := run(t, f, "reg rax=0x10 r9=-1 rip=4096", "reg rax bogus", "reg rax=zz")
	if f.ctx.Reg(models.RAX) != 0x10 || f.ctx.Reg(models.R9) != ^uint64(0) || f.ctx.Rip != 4096 {
		t.Errorf("registers not written: %+v", f.ctx)
	}
	expected := "rax 0x10\nreg bogus not found\ninvalid assignment: rax=zz\n"
	if diff := cmp.Diff(expected, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRegDump(t *testing.T) {
	f := newFakeTarget()
	f.ctx.Eflags = 0x202
	lines := strings.Split(strings.TrimSpace(run(t, f, "reg")), "\n")
	if len(lines) != models.HostRegCount {
		t.Fatalf("got %d lines, want %d", len(lines), models.HostRegCount)
	}
	if lines[models.EFLAGS] != "eflags 0x0000000000000202" {
		t.Errorf("bad eflags line %q", lines[models.EFLAGS])
	}
}

func TestMem(t *testing.T) {
	f := newFakeTarget()
	out := run(t, f, "mem 0x100 =41424344", "mem 0x100 4")
	want := "  " + models.HexDump(0x100, []byte("ABCD"))[0] + "\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	out = run(t, f, "mem 0x100", "mem 0x100 =zz")
	if !strings.Contains(out, "usage") || !strings.Contains(out, "bad hex") {
		t.Errorf("missing errors in %q", out)
	}
}

func TestBreakpoints(t *testing.T) {
	f := newFakeTarget()
	out := run(t, f, "break g:0x82000004 0x1234 nope", "bps", "delete 0", "bps", "delete 5")
	expected := strings.Join([]string{
		"breakpoint guest:0x82000004: 0 trap(s)",
		"breakpoint 0x1234: 0 trap(s)",
		"nope: breakpoint parse failed",
		"  #0 guest:0x82000004",
		"  #1 0x1234",
		"  #0 0x1234",
		"error: no breakpoint #5",
	}, "\n") + "\n"
	if diff := cmp.Diff(expected, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestStepCount(t *testing.T) {
	f := newFakeTarget()
	out := run(t, f, "step 3")
	if f.steps != 3 {
		t.Errorf("stepped %d times", f.steps)
	}
	if diff := cmp.Diff("step at 0x1003\nstatus\n", out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	f = newFakeTarget()
	f.stops = []*models.Stop{{Reason: models.StopExit, Result: 7}}
	out = run(t, f, "step 10")
	if f.steps != 1 {
		t.Errorf("kept stepping after exit: %d", f.steps)
	}
	if diff := cmp.Diff("exited: rax=0x7\n", out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestDisAsm(t *testing.T) {
	f := newFakeTarget()
	out := run(t, f, "dis 0x1000", "asm 0x2000 'nop; nop'")
	expected := strings.Join([]string{
		"   0x1000: " + models.HexBytes([]byte{0x90}, 12) + " nop ",
		"=> 0x1001: " + models.HexBytes([]byte{0x90}, 12) + " nop ",
		"0x2000: 9090 (2 bytes)",
	}, "\n") + "\n"
	if diff := cmp.Diff(expected, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if f.mem[0x2001] != 0x90 {
		t.Error("asm did not write memory")
	}
}

func TestUnknownAndParse(t *testing.T) {
	out := run(t, newFakeTarget(), "", "frobnicate", `reg "rax`, "cont")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("unexpected output %q", out)
	}
	if lines[0] != "command not found." || !strings.HasPrefix(lines[1], "parse error: ") || lines[2] != "exited: rax=0x2a" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestHelpListsCommands(t *testing.T) {
	out := run(t, newFakeTarget(), "help")
	for name := range Commands {
		if !strings.Contains(out, "  "+name) {
			t.Errorf("help is missing %s", name)
		}
	}
}
