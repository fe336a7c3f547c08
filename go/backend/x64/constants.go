package x64

import (
	"encoding/binary"
	"math"
)

// XmmConst indexes the constant block emitted code loads vectors from.
type XmmConst int

const (
	XmmZero XmmConst = iota
	XmmOne
	XmmNegativeOne
	XmmSignMaskF32
	XmmAbsMaskF32
	XmmSignMaskF64
	XmmAbsMaskF64
	XmmByteSwapMask
	XmmPermuteControl15
	XmmPackD3DColor
	XmmUnpackShortMin
	XmmUnpackShortMax
	XmmConstCount
)

type vec128 [4]uint32

func f32x4(v float32) vec128 {
	b := math.Float32bits(v)
	return vec128{b, b, b, b}
}

func u32x4(v uint32) vec128 { return vec128{v, v, v, v} }

func u64x2(v uint64) vec128 { return vec128{uint32(v), uint32(v >> 32), uint32(v), uint32(v >> 32)} }

var xmmConstants = [XmmConstCount]vec128{
	XmmZero:             {},
	XmmOne:              f32x4(1),
	XmmNegativeOne:      f32x4(-1),
	XmmSignMaskF32:      u32x4(0x80000000),
	XmmAbsMaskF32:       u32x4(0x7FFFFFFF),
	XmmSignMaskF64:      u64x2(0x8000000000000000),
	XmmAbsMaskF64:       u64x2(0x7FFFFFFFFFFFFFFF),
	XmmByteSwapMask:     {0x00010203, 0x04050607, 0x08090A0B, 0x0C0D0E0F},
	XmmPermuteControl15: u32x4(0x0F0F0F0F),
	XmmPackD3DColor:     {0xFFFFFFFF, 0xFFFFFFFF, 0xFFFFFFFF, 0x0C000408},
	XmmUnpackShortMin:   u32x4(0x403F8001),
	XmmUnpackShortMax:   u32x4(0x40407FFF),
}

func constantData() []byte {
	out := make([]byte, 0, len(xmmConstants)*16)
	for _, v := range xmmConstants {
		for _, w := range v {
			out = binary.LittleEndian.AppendUint32(out, w)
		}
	}
	return out
}
