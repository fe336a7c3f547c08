package x64

import (
	"encoding/binary"
)

// x86-64 register encoding
type Reg byte

const (
	RAX Reg = 0
	RCX Reg = 1
	RDX Reg = 2
	RBX Reg = 3
	RSP Reg = 4
	RBP Reg = 5
	RSI Reg = 6
	RDI Reg = 7
	R8  Reg = 8
	R9  Reg = 9
	R10 Reg = 10
	R11 Reg = 11
	R12 Reg = 12
	R13 Reg = 13
	R14 Reg = 14
	R15 Reg = 15
)

type Xmm byte

// Assembler emits the handful of x86-64 forms the thunks need.
type Assembler struct {
	buf []byte
}

func NewAssembler() *Assembler {
	return &Assembler{buf: make([]byte, 0, 256)}
}

func (a *Assembler) Offset() int {
	return len(a.buf)
}

func (a *Assembler) Bytes() []byte {
	return a.buf
}

func (a *Assembler) emit(b ...byte) {
	a.buf = append(a.buf, b...)
}

func (a *Assembler) emitUint32(v uint32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, v)
}

func (a *Assembler) emitUint64(v uint64) {
	a.buf = binary.LittleEndian.AppendUint64(a.buf, v)
}

// rex builds REX prefix: 0100WRXB
func rex(w, r, x, b bool) byte {
	var prefix byte = 0x40
	if w {
		prefix |= 0x08
	}
	if r {
		prefix |= 0x04
	}
	if x {
		prefix |= 0x02
	}
	if b {
		prefix |= 0x01
	}
	return prefix
}

// modRM builds ModR/M byte: [mod:2][reg:3][rm:3]
// mod is pre-shifted: 0x00=no disp, 0x40=disp8, 0x80=disp32, 0xC0=register
func modRM(mod byte, reg, rm byte) byte {
	return mod | ((reg & 7) << 3) | (rm & 7)
}

// stackOperand encodes [rsp+disp] for the given reg field.
func (a *Assembler) stackOperand(reg byte, disp int32) {
	switch {
	case disp == 0:
		a.emit(modRM(0x00, reg, byte(RSP)), 0x24)
	case disp >= -128 && disp <= 127:
		a.emit(modRM(0x40, reg, byte(RSP)), 0x24, byte(disp))
	default:
		a.emit(modRM(0x80, reg, byte(RSP)), 0x24)
		a.emitUint32(uint32(disp))
	}
}

// MovRegReg: mov dst, src
func (a *Assembler) MovRegReg(dst, src Reg) {
	a.emit(rex(true, src >= 8, false, dst >= 8), 0x89, modRM(0xC0, byte(src), byte(dst)))
}

// MovRegImm64: mov reg, imm64
func (a *Assembler) MovRegImm64(reg Reg, imm uint64) {
	a.emit(rex(true, false, false, reg >= 8), 0xB8|byte(reg&7))
	a.emitUint64(imm)
}

// MovStackReg: mov [rsp+disp], reg
func (a *Assembler) MovStackReg(disp int32, reg Reg) {
	a.emit(rex(true, reg >= 8, false, false), 0x89)
	a.stackOperand(byte(reg), disp)
}

// MovRegStack: mov reg, [rsp+disp]
func (a *Assembler) MovRegStack(reg Reg, disp int32) {
	a.emit(rex(true, reg >= 8, false, false), 0x8B)
	a.stackOperand(byte(reg), disp)
}

// MovapsStackXmm: movaps [rsp+disp], xmm
func (a *Assembler) MovapsStackXmm(disp int32, x Xmm) {
	if x >= 8 {
		a.emit(rex(false, true, false, false))
	}
	a.emit(0x0F, 0x29)
	a.stackOperand(byte(x), disp)
}

// MovapsXmmStack: movaps xmm, [rsp+disp]
func (a *Assembler) MovapsXmmStack(x Xmm, disp int32) {
	if x >= 8 {
		a.emit(rex(false, true, false, false))
	}
	a.emit(0x0F, 0x28)
	a.stackOperand(byte(x), disp)
}

func (a *Assembler) aluRspImm(ext byte, imm int32) {
	if imm >= -128 && imm <= 127 {
		a.emit(rex(true, false, false, false), 0x83, modRM(0xC0, ext, byte(RSP)), byte(imm))
		return
	}
	a.emit(rex(true, false, false, false), 0x81, modRM(0xC0, ext, byte(RSP)))
	a.emitUint32(uint32(imm))
}

// SubRsp: sub rsp, imm
func (a *Assembler) SubRsp(imm int32) { a.aluRspImm(5, imm) }

// AddRsp: add rsp, imm
func (a *Assembler) AddRsp(imm int32) { a.aluRspImm(0, imm) }

func (a *Assembler) indirect(ext byte, reg Reg) {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xFF, modRM(0xC0, ext, byte(reg)))
}

// CallReg: call reg
func (a *Assembler) CallReg(reg Reg) { a.indirect(2, reg) }

// JmpReg: jmp reg
func (a *Assembler) JmpReg(reg Reg) { a.indirect(4, reg) }

func (a *Assembler) Ret() { a.emit(0xC3) }

func (a *Assembler) Ud2() { a.emit(0x0F, 0x0B) }

// Align pads with int3 to a multiple of n.
func (a *Assembler) Align(n int) {
	for len(a.buf)%n != 0 {
		a.emit(0xCC)
	}
}
