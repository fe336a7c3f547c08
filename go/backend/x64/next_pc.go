package x64

import (
	"encoding/binary"
	"fmt"

	cs "github.com/bnagy/gapstone"
	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/cpu"
	"github.com/ST3ALth/xenia/go/models"
)

var ErrUnimplemented = errors.New("unimplemented")

// eflags bits
const (
	FlagCF = 1 << 0
	FlagPF = 1 << 2
	FlagZF = 1 << 6
	FlagSF = 1 << 7
	FlagOF = 1 << 11
)

// TestEflags reports whether the conditional jump insn is taken.
// Panics on anything that is not a flag-based jcc.
func TestEflags(eflags uint64, insn uint) bool {
	cf := eflags&FlagCF != 0
	pf := eflags&FlagPF != 0
	zf := eflags&FlagZF != 0
	sf := eflags&FlagSF != 0
	of := eflags&FlagOF != 0
	switch insn {
	case cs.X86_INS_JAE:
		return !cf && !zf
	case cs.X86_INS_JA:
		return !cf
	case cs.X86_INS_JBE:
		return cf || zf
	case cs.X86_INS_JB:
		return cf
	case cs.X86_INS_JE:
		return zf
	case cs.X86_INS_JGE:
		return sf == of
	case cs.X86_INS_JG:
		return !zf && sf == of
	case cs.X86_INS_JLE:
		return zf || sf != of
	case cs.X86_INS_JL:
		return sf != of
	case cs.X86_INS_JNE:
		return !zf
	case cs.X86_INS_JNO:
		return !of
	case cs.X86_INS_JNP:
		return !pf
	case cs.X86_INS_JNS:
		return !sf
	case cs.X86_INS_JO:
		return of
	case cs.X86_INS_JP:
		return pf
	case cs.X86_INS_JS:
		return sf
	}
	panic(fmt.Sprintf("TestEflags: unhandled instruction id %d", insn))
}

func isJcc(id uint) bool {
	switch id {
	case cs.X86_INS_JAE, cs.X86_INS_JA, cs.X86_INS_JBE, cs.X86_INS_JB,
		cs.X86_INS_JE, cs.X86_INS_JGE, cs.X86_INS_JG, cs.X86_INS_JLE,
		cs.X86_INS_JL, cs.X86_INS_JNE, cs.X86_INS_JNO, cs.X86_INS_JNP,
		cs.X86_INS_JNS, cs.X86_INS_JO, cs.X86_INS_JP, cs.X86_INS_JS:
		return true
	}
	return false
}

// readCode reads up to one maximum-length instruction, shrinking the read
// when it runs off the end of a mapping.
func readCode(mem models.Memory, pc uint64) ([]byte, error) {
	var err error
	for n := uint64(cpu.MaxInsLen); n > 0; n-- {
		var p []byte
		if p, err = mem.MemRead(pc, n); err == nil {
			return p, nil
		}
	}
	return nil, errors.Wrapf(err, "reading code at 0x%x", pc)
}

func readReg(ctx *models.HostContext, reg uint) uint64 {
	enum, ok := cpu.HostReg(reg)
	if !ok {
		panic(fmt.Sprintf("unhandled capstone register %d", reg))
	}
	return ctx.Reg(enum)
}

// CalculateNextHostInstruction decodes the instruction at pc and returns
// where control goes next, without executing it. Unimplemented forms log
// and return ErrUnimplemented alongside the fallthrough address.
func (b *Backend) CalculateNextHostInstruction(thread *models.ThreadDebugInfo, pc uint64) (uint64, error) {
	if b.dis == nil {
		return 0, ErrNotInitialized
	}
	code, err := readCode(b.mem, pc)
	if err != nil {
		return 0, err
	}
	insn, err := b.dis.Decode(code, pc)
	if err != nil {
		return 0, err
	}
	ctx := &thread.HostContext
	next := pc + uint64(insn.Size)
	var ops []cs.X86Operand
	if insn.X86 != nil {
		ops = insn.X86.Operands
	}

	unimplemented := func(what string) (uint64, error) {
		b.log.Printf("UNIMPLEMENTED: %s at 0x%x: %s %s", what, pc, insn.Mnemonic, insn.OpStr)
		return next, errors.Wrapf(ErrUnimplemented, "%s at 0x%x", what, pc)
	}

	switch {
	case insn.Id == cs.X86_INS_CALL:
		if len(ops) != 1 || ops[0].Type != cs.X86_OP_REG {
			panic(fmt.Sprintf("call at 0x%x: only register operands are handled: %s", pc, insn.OpStr))
		}
		return readReg(ctx, ops[0].Reg), nil

	case insn.Id == cs.X86_INS_RET:
		var buf [8]byte
		if err := b.mem.MemReadInto(buf[:], ctx.Reg(models.RSP)); err != nil {
			return 0, errors.Wrap(err, "reading return address")
		}
		return binary.LittleEndian.Uint64(buf[:]), nil

	case insn.Id == cs.X86_INS_JMP:
		if len(ops) != 1 {
			return unimplemented("jmp operand count")
		}
		switch ops[0].Type {
		case cs.X86_OP_IMM:
			return uint64(ops[0].Imm), nil
		case cs.X86_OP_REG:
			return readReg(ctx, ops[0].Reg), nil
		}
		return unimplemented("jmp operand")

	case insn.Id == cs.X86_INS_JCXZ, insn.Id == cs.X86_INS_JECXZ, insn.Id == cs.X86_INS_JRCXZ:
		return unimplemented("jcxz")

	case isJcc(insn.Id):
		if len(ops) != 1 || ops[0].Type != cs.X86_OP_IMM {
			return unimplemented("jcc operand")
		}
		if TestEflags(ctx.Eflags, insn.Id) {
			return uint64(ops[0].Imm), nil
		}
		return next, nil
	}
	return next, nil
}
