package x64

import (
	"encoding/binary"
	"errors"
	"testing"

	cs "github.com/bnagy/gapstone"

	"github.com/ST3ALth/xenia/go/models"
)

func TestTestEflags(t *testing.T) {
	tests := []struct {
		insn   uint
		eflags uint64
		want   bool
	}{
		{cs.X86_INS_JE, FlagZF, true},
		{cs.X86_INS_JE, 0, false},
		{cs.X86_INS_JNE, 0, true},
		{cs.X86_INS_JNE, FlagZF, false},
		{cs.X86_INS_JB, FlagCF, true},
		{cs.X86_INS_JB, 0, false},
		{cs.X86_INS_JBE, FlagZF, true},
		{cs.X86_INS_JBE, FlagCF, true},
		{cs.X86_INS_JBE, 0, false},
		{cs.X86_INS_JA, 0, true},
		{cs.X86_INS_JA, FlagZF, true},
		{cs.X86_INS_JA, FlagCF, false},
		{cs.X86_INS_JAE, 0, true},
		{cs.X86_INS_JAE, FlagZF, false},
		{cs.X86_INS_JAE, FlagCF, false},
		{cs.X86_INS_JL, FlagSF, true},
		{cs.X86_INS_JL, FlagOF, true},
		{cs.X86_INS_JL, FlagSF | FlagOF, false},
		{cs.X86_INS_JGE, FlagSF | FlagOF, true},
		{cs.X86_INS_JGE, FlagSF, false},
		{cs.X86_INS_JG, 0, true},
		{cs.X86_INS_JG, FlagZF, false},
		{cs.X86_INS_JG, FlagOF, false},
		{cs.X86_INS_JLE, FlagZF, true},
		{cs.X86_INS_JLE, FlagSF, true},
		{cs.X86_INS_JLE, FlagSF | FlagOF, false},
		{cs.X86_INS_JO, FlagOF, true},
		{cs.X86_INS_JNO, FlagOF, false},
		{cs.X86_INS_JS, FlagSF, true},
		{cs.X86_INS_JNS, FlagSF, false},
		{cs.X86_INS_JP, FlagPF, true},
		{cs.X86_INS_JNP, FlagPF, false},
		{cs.X86_INS_JNP, 0, true},
	}
	for _, test := range tests {
		if got := TestEflags(test.eflags, test.insn); got != test.want {
			t.Errorf("insn %d eflags 0x%x: got %v, want %v", test.insn, test.eflags, got, test.want)
		}
	}
}

func TestTestEflagsPanicsOnNonJcc(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for jmp")
		}
	}()
	TestEflags(0, cs.X86_INS_JMP)
}

func TestCalculateNextHostInstruction(t *testing.T) {
	b, mem, _ := newMemBackend(t)
	stack := uint64(0x10000000)
	if err := mem.MemMapProt(stack, 0x1000, 0); err != nil {
		t.Fatal(err)
	}
	var ret [8]byte
	binary.LittleEndian.PutUint64(ret[:], 0xA0004444)
	mem.MemWrite(stack+0x800, ret[:])

	tests := []struct {
		name   string
		code   []byte
		eflags uint64
		want   func(pc uint64) uint64
		err    error
	}{
		{"nop", []byte{0x90}, 0, func(pc uint64) uint64 { return pc + 1 }, nil},
		{"mov", []byte{0x48, 0x89, 0xd8}, 0, func(pc uint64) uint64 { return pc + 3 }, nil},
		{"ret", []byte{0xc3}, 0, func(uint64) uint64 { return 0xA0004444 }, nil},
		{"call rax", []byte{0xff, 0xd0}, 0, func(uint64) uint64 { return 0xA0001230 }, nil},
		{"jmp rbx", []byte{0xff, 0xe3}, 0, func(uint64) uint64 { return 0x82000000 }, nil},
		{"jmp short", []byte{0xeb, 0x10}, 0, func(pc uint64) uint64 { return pc + 0x12 }, nil},
		{"jmp near", []byte{0xe9, 0x00, 0x01, 0x00, 0x00}, 0, func(pc uint64) uint64 { return pc + 0x105 }, nil},
		{"je taken", []byte{0x74, 0x08}, FlagZF, func(pc uint64) uint64 { return pc + 0x0a }, nil},
		{"je not taken", []byte{0x74, 0x08}, 0, func(pc uint64) uint64 { return pc + 2 }, nil},
		{"jrcxz", []byte{0xe3, 0x05}, 0, func(pc uint64) uint64 { return pc + 2 }, ErrUnimplemented},
		{"jmp [rax]", []byte{0xff, 0x20}, 0, func(pc uint64) uint64 { return pc + 2 }, ErrUnimplemented},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pc, err := b.CodeCache().PlaceHostCode(append(test.code, 0xcc, 0xcc))
			if err != nil {
				t.Fatal(err)
			}
			thread := &models.ThreadDebugInfo{}
			thread.HostContext.Eflags = test.eflags
			thread.HostContext.SetReg(models.RSP, stack+0x800)
			thread.HostContext.SetReg(models.RAX, 0xA0001230)
			thread.HostContext.SetReg(models.RBX, 0x82000000)
			got, err := b.CalculateNextHostInstruction(thread, pc)
			if !errors.Is(err, test.err) {
				t.Fatalf("error %v, expected %v", err, test.err)
			}
			if want := test.want(pc); got != want {
				t.Errorf("next = 0x%x, want 0x%x", got, want)
			}
		})
	}
}

func TestCalculateNextHostInstructionCallImmPanics(t *testing.T) {
	b, _, _ := newMemBackend(t)
	pc, err := b.CodeCache().PlaceHostCode([]byte{0xe8, 0, 0, 0, 0, 0xcc})
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for call with an immediate operand")
		}
	}()
	b.CalculateNextHostInstruction(&models.ThreadDebugInfo{}, pc)
}
