// Package gpu turns the Xenos register file into Vulkan pipeline objects.
// Pipelines are memoized by a hash of every register that affects their
// identity; translated shaders are memoized by a hash of their microcode.
package gpu

import (
	"fmt"
	"math"
)

type Register uint32

const (
	RB_SURFACE_INFO         Register = 0x2000
	PA_SC_SCREEN_SCISSOR_TL Register = 0x200E
	PA_SC_SCREEN_SCISSOR_BR Register = 0x200F

	PA_SC_WINDOW_OFFSET     Register = 0x2080
	PA_SC_WINDOW_SCISSOR_TL Register = 0x2081
	PA_SC_WINDOW_SCISSOR_BR Register = 0x2082

	VGT_MULTI_PRIM_IB_RESET_INDX Register = 0x2103
	RB_COLOR_MASK                Register = 0x2104
	RB_BLEND_RED                 Register = 0x2105
	RB_BLEND_GREEN               Register = 0x2106
	RB_BLEND_BLUE                Register = 0x2107
	RB_BLEND_ALPHA               Register = 0x2108
	RB_STENCILREFMASK            Register = 0x210D

	PA_CL_VPORT_XSCALE  Register = 0x210F
	PA_CL_VPORT_XOFFSET Register = 0x2110
	PA_CL_VPORT_YSCALE  Register = 0x2111
	PA_CL_VPORT_YOFFSET Register = 0x2112
	PA_CL_VPORT_ZSCALE  Register = 0x2113
	PA_CL_VPORT_ZOFFSET Register = 0x2114

	SQ_PROGRAM_CNTL Register = 0x2180
	SQ_CONTEXT_MISC Register = 0x2181

	RB_DEPTHCONTROL    Register = 0x2200
	RB_BLENDCONTROL_0  Register = 0x2201
	RB_COLORCONTROL    Register = 0x2202
	PA_SU_SC_MODE_CNTL Register = 0x2205
	PA_CL_VTE_CNTL     Register = 0x2206
	RB_BLENDCONTROL_1  Register = 0x2209
	RB_BLENDCONTROL_2  Register = 0x220A
	RB_BLENDCONTROL_3  Register = 0x220B

	SQ_VS_CONST Register = 0x2307
	SQ_PS_CONST Register = 0x2308

	RegisterCount = 0x5003
)

var registerNames = map[Register]string{
	RB_SURFACE_INFO:              "RB_SURFACE_INFO",
	PA_SC_SCREEN_SCISSOR_TL:      "PA_SC_SCREEN_SCISSOR_TL",
	PA_SC_SCREEN_SCISSOR_BR:      "PA_SC_SCREEN_SCISSOR_BR",
	PA_SC_WINDOW_OFFSET:          "PA_SC_WINDOW_OFFSET",
	PA_SC_WINDOW_SCISSOR_TL:      "PA_SC_WINDOW_SCISSOR_TL",
	PA_SC_WINDOW_SCISSOR_BR:      "PA_SC_WINDOW_SCISSOR_BR",
	VGT_MULTI_PRIM_IB_RESET_INDX: "VGT_MULTI_PRIM_IB_RESET_INDX",
	RB_COLOR_MASK:                "RB_COLOR_MASK",
	RB_BLEND_RED:                 "RB_BLEND_RED",
	RB_BLEND_GREEN:               "RB_BLEND_GREEN",
	RB_BLEND_BLUE:                "RB_BLEND_BLUE",
	RB_BLEND_ALPHA:               "RB_BLEND_ALPHA",
	RB_STENCILREFMASK:            "RB_STENCILREFMASK",
	PA_CL_VPORT_XSCALE:           "PA_CL_VPORT_XSCALE",
	PA_CL_VPORT_XOFFSET:          "PA_CL_VPORT_XOFFSET",
	PA_CL_VPORT_YSCALE:           "PA_CL_VPORT_YSCALE",
	PA_CL_VPORT_YOFFSET:          "PA_CL_VPORT_YOFFSET",
	PA_CL_VPORT_ZSCALE:           "PA_CL_VPORT_ZSCALE",
	PA_CL_VPORT_ZOFFSET:          "PA_CL_VPORT_ZOFFSET",
	SQ_PROGRAM_CNTL:              "SQ_PROGRAM_CNTL",
	SQ_CONTEXT_MISC:              "SQ_CONTEXT_MISC",
	RB_DEPTHCONTROL:              "RB_DEPTHCONTROL",
	RB_BLENDCONTROL_0:            "RB_BLENDCONTROL_0",
	RB_COLORCONTROL:              "RB_COLORCONTROL",
	PA_SU_SC_MODE_CNTL:           "PA_SU_SC_MODE_CNTL",
	PA_CL_VTE_CNTL:               "PA_CL_VTE_CNTL",
	RB_BLENDCONTROL_1:            "RB_BLENDCONTROL_1",
	RB_BLENDCONTROL_2:            "RB_BLENDCONTROL_2",
	RB_BLENDCONTROL_3:            "RB_BLENDCONTROL_3",
	SQ_VS_CONST:                  "SQ_VS_CONST",
	SQ_PS_CONST:                  "SQ_PS_CONST",
}

func (r Register) String() string {
	if name, ok := registerNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reg_%04X", uint32(r))
}

// RegisterByName is the inverse of Register.String for the named registers.
func RegisterByName(name string) (Register, bool) {
	for r, n := range registerNames {
		if n == name {
			return r, true
		}
	}
	return 0, false
}

// RegisterFile holds raw register values. Every register is 32 bits and is
// read either as an integer or as the float with the same bits.
type RegisterFile struct {
	Values [RegisterCount]uint32
}

func NewRegisterFile() *RegisterFile {
	return &RegisterFile{}
}

func (f *RegisterFile) U32(r Register) uint32 { return f.Values[r] }

func (f *RegisterFile) F32(r Register) float32 { return math.Float32frombits(f.Values[r]) }

func (f *RegisterFile) SetU32(r Register, v uint32) { f.Values[r] = v }

func (f *RegisterFile) SetF32(r Register, v float32) { f.Values[r] = math.Float32bits(v) }

// PrimitiveType is the VGT draw primitive.
type PrimitiveType uint32

const (
	PrimitiveNone          PrimitiveType = 0x00
	PrimitivePointList     PrimitiveType = 0x01
	PrimitiveLineList      PrimitiveType = 0x02
	PrimitiveLineStrip     PrimitiveType = 0x03
	PrimitiveTriangleList  PrimitiveType = 0x04
	PrimitiveTriangleFan   PrimitiveType = 0x05
	PrimitiveTriangleStrip PrimitiveType = 0x06
	PrimitiveUnknown0x07   PrimitiveType = 0x07
	PrimitiveRectangleList PrimitiveType = 0x08
	PrimitiveLineLoop      PrimitiveType = 0x0C
	PrimitiveQuadList      PrimitiveType = 0x0D
	PrimitiveQuadStrip     PrimitiveType = 0x0E
)

var primitiveNames = map[PrimitiveType]string{
	PrimitiveNone:          "none",
	PrimitivePointList:     "point_list",
	PrimitiveLineList:      "line_list",
	PrimitiveLineStrip:     "line_strip",
	PrimitiveTriangleList:  "triangle_list",
	PrimitiveTriangleFan:   "triangle_fan",
	PrimitiveTriangleStrip: "triangle_strip",
	PrimitiveUnknown0x07:   "unknown_0x07",
	PrimitiveRectangleList: "rectangle_list",
	PrimitiveLineLoop:      "line_loop",
	PrimitiveQuadList:      "quad_list",
	PrimitiveQuadStrip:     "quad_strip",
}

func (p PrimitiveType) String() string {
	if name, ok := primitiveNames[p]; ok {
		return name
	}
	return fmt.Sprintf("primitive(0x%02x)", uint32(p))
}

func PrimitiveByName(name string) (PrimitiveType, bool) {
	for p, n := range primitiveNames {
		if n == name {
			return p, true
		}
	}
	return 0, false
}

// MsaaSamples is RB_SURFACE_INFO bits 16-17.
type MsaaSamples uint32

const (
	Msaa1X MsaaSamples = iota
	Msaa2X
	Msaa4X
)

// ProgramCntl unpacks SQ_PROGRAM_CNTL.
type ProgramCntl uint32

func (p ProgramCntl) VsRegs() uint32        { return uint32(p) & 0x3F }
func (p ProgramCntl) PsRegs() uint32        { return (uint32(p) >> 8) & 0x3F }
func (p ProgramCntl) ParamGen() bool        { return (uint32(p)>>18)&1 != 0 }
func (p ProgramCntl) VsExportCount() uint32 { return (uint32(p) >> 20) & 0xF }
func (p ProgramCntl) VsExportMode() uint32  { return (uint32(p) >> 24) & 0x7 }
