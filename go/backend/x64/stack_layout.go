package x64

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lunixbochs/struc"

	"github.com/ST3ALth/xenia/go/models"
)

// Thunk stack frame. Every compiled guest function relies on these offsets
// when it calls back into host code, so they must not move.
//
//	+0   .. +47   scratch / callee home space
//	+48  .. +119  saved rbx rcx rbp rsi rdi r12 r13 r14 r15
//	+128 .. +287  saved xmm6-xmm15 (vector frame only)
//
// The caller's home slots are used to keep the incoming arguments:
// [rsp+8] rcx, [rsp+16] rdx, [rsp+24] r8, all relative to rsp on entry.
const (
	ThunkStackSize    = 120
	ThunkStackSizeXmm = 296

	HomeRcx = 8 * 1
	HomeRdx = 8 * 2
	HomeR8  = 8 * 3

	SaveRbx = 48
	SaveRcx = 56
	SaveRbp = 64
	SaveRsi = 72
	SaveRdi = 80
	SaveR12 = 88
	SaveR13 = 96
	SaveR14 = 104
	SaveR15 = 112

	SaveXmm6 = 128
)

// ThunkFrame mirrors the scratch region below rsp after the prologue.
type ThunkFrame struct {
	Scratch [6]uint64
	Rbx     uint64
	Rcx     uint64
	Rbp     uint64
	Rsi     uint64
	Rdi     uint64
	R12     uint64
	R13     uint64
	R14     uint64
	R15     uint64
}

// ThunkFrameXmm is the vector-saving frame; Saved holds the same nine
// registers as ThunkFrame and Xmm holds xmm6-xmm15 as low/high pairs.
type ThunkFrameXmm struct {
	Scratch [6]uint64
	Saved   [9]uint64
	Pad     uint64
	Xmm     [20]uint64
	Tail    uint64
}

type savedReg struct {
	reg  Reg
	disp int32
}

// order matters only for readability of the disassembly
var savedRegs = []savedReg{
	{RBX, SaveRbx},
	{RCX, SaveRcx},
	{RBP, SaveRbp},
	{RSI, SaveRsi},
	{RDI, SaveRdi},
	{R12, SaveR12},
	{R13, SaveR13},
	{R14, SaveR14},
	{R15, SaveR15},
}

func frameSize(saveXmm bool) int32 {
	if saveXmm {
		return ThunkStackSizeXmm
	}
	return ThunkStackSize
}

// CheckFrameLayout panics if the frame structs drifted from the offsets.
func CheckFrameLayout() {
	check := func(v interface{}, want int) {
		size, err := struc.Sizeof(v)
		if err != nil {
			panic(fmt.Sprintf("thunk frame layout: %v", err))
		}
		if size != want {
			panic(fmt.Sprintf("thunk frame layout: %T is %d bytes, expected %d", v, size, want))
		}
	}
	check(&ThunkFrame{}, ThunkStackSize)
	check(&ThunkFrameXmm{}, ThunkStackSizeXmm)
}

var frameOptions = &struc.Options{Order: binary.LittleEndian}

// ReadThunkFrame decodes the saved registers of a thunk frame at rsp.
func ReadThunkFrame(mem models.Memory, rsp uint64) (*ThunkFrame, error) {
	raw, err := mem.MemRead(rsp, ThunkStackSize)
	if err != nil {
		return nil, err
	}
	frame := &ThunkFrame{}
	if err := struc.UnpackWithOptions(bytes.NewReader(raw), frame, frameOptions); err != nil {
		return nil, err
	}
	return frame, nil
}
