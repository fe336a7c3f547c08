package gpu

import (
	"encoding/binary"
	"math"

	vk "github.com/goki/vulkan"
)

const stencilFrontAndBack = vk.StencilFaceFlags(vk.StencilFaceFrontBit | vk.StencilFaceBackBit)

// guest viewport extent used when the VTE scale is disabled
const guestViewportExtent = 2560

type dynamicState struct {
	modeCntl     shadowReg
	windowOffset shadowReg
	scissorTL    shadowReg
	scissorBR    shadowReg
	surfaceInfo  shadowReg
	vteCntl      shadowReg
	vport        [6]shadowReg
	blend        [4]shadowReg
	programCntl  shadowReg
	contextMisc  shadowReg
}

func newDynamicState() dynamicState {
	d := dynamicState{
		modeCntl:     shadowReg{reg: PA_SU_SC_MODE_CNTL},
		windowOffset: shadowReg{reg: PA_SC_WINDOW_OFFSET},
		scissorTL:    shadowReg{reg: PA_SC_WINDOW_SCISSOR_TL},
		scissorBR:    shadowReg{reg: PA_SC_WINDOW_SCISSOR_BR},
		surfaceInfo:  shadowReg{reg: RB_SURFACE_INFO},
		vteCntl:      shadowReg{reg: PA_CL_VTE_CNTL},
		programCntl:  shadowReg{reg: SQ_PROGRAM_CNTL},
		contextMisc:  shadowReg{reg: SQ_CONTEXT_MISC},
	}
	for i := range d.vport {
		d.vport[i].reg = PA_CL_VPORT_XSCALE + Register(i)
	}
	for i := range d.blend {
		d.blend[i].reg = RB_BLEND_RED + Register(i)
	}
	return d
}

func (d *dynamicState) all() []*shadowReg {
	regs := []*shadowReg{&d.modeCntl, &d.windowOffset, &d.scissorTL, &d.scissorBR,
		&d.surfaceInfo, &d.vteCntl, &d.programCntl, &d.contextMisc}
	for i := range d.vport {
		regs = append(regs, &d.vport[i])
	}
	for i := range d.blend {
		regs = append(regs, &d.blend[i])
	}
	return regs
}

func (d *dynamicState) reset() {
	for _, r := range d.all() {
		r.Reset()
	}
}

// WindowOffset decodes PA_SC_WINDOW_OFFSET. The offset only applies when
// PA_SU_SC_MODE_CNTL enables it.
func WindowOffset(modeCntl, offset uint32) (x, y int16) {
	if modeCntl&(1<<16) == 0 {
		return 0, 0
	}
	return signExtend15(offset), signExtend15(offset >> 16)
}

func signExtend15(v uint32) int16 {
	v &= 0x7FFF
	if v&0x4000 != 0 {
		v |= 0x8000
	}
	return int16(uint16(v))
}

// ScissorRect decodes the window scissor registers.
func ScissorRect(tl, br uint32, offsetX, offsetY int16) vk.Rect2D {
	x, y := tl&0x7FFF, (tl>>16)&0x7FFF
	w, h := (br&0x7FFF)-x, ((br>>16)&0x7FFF)-y
	return vk.Rect2D{
		Offset: vk.Offset2D{X: int32(x) + int32(offsetX), Y: int32(y) + int32(offsetY)},
		Extent: vk.Extent2D{Width: w, Height: h},
	}
}

// ViewportRegs are the inputs to the viewport transform.
type ViewportRegs struct {
	SurfaceInfo uint32
	VteCntl     uint32
	// PA_CL_VPORT_{X,Y,Z}{SCALE,OFFSET}
	XScale, XOffset float32
	YScale, YOffset float32
	ZScale, ZOffset float32
}

func (v *ViewportRegs) Msaa() MsaaSamples {
	return MsaaSamples((v.SurfaceInfo >> 16) & 3)
}

// ViewportRect computes the Vulkan viewport for the guest viewport transform.
func ViewportRect(v ViewportRegs, offsetX, offsetY int16) vk.Viewport {
	scaleX, scaleY := float32(1), float32(1)
	switch v.Msaa() {
	case Msaa2X:
		scaleX = 2
	case Msaa4X:
		scaleX, scaleY = 2, 2
	}
	ox, oy := float32(offsetX), float32(offsetY)
	// PA_CL_VTE_CNTL bits 0-5 enable x/y/z scale and offset; a disabled
	// scale is 1 and a disabled offset is 0
	enabled := func(bit uint, val, def float32) float32 {
		if v.VteCntl&(1<<bit) != 0 {
			return val
		}
		return def
	}
	sx, vox := enabled(0, v.XScale, 1), enabled(1, v.XOffset, 0)
	sy, voy := enabled(2, v.YScale, 1), enabled(3, v.YOffset, 0)
	sz, voz := enabled(4, v.ZScale, 1), enabled(5, v.ZOffset, 0)

	var vp vk.Viewport
	if v.VteCntl&1 != 0 {
		// the scale is in guest pixels already, msaa does not apply
		vp.Width = sx * 2
		vp.Height = -sy * 2
		vp.X = vox - vp.Width/2 + ox
		vp.Y = voy - vp.Height/2 + oy
	} else {
		vp.Width = 2 * guestViewportExtent * scaleX
		vp.Height = 2 * guestViewportExtent * scaleY
		vp.X = -guestViewportExtent*scaleX + ox
		vp.Y = -guestViewportExtent*scaleY + oy
	}
	vp.MinDepth = voz
	vp.MaxDepth = voz + sz
	return vp
}

func (d *dynamicState) viewportRegs() ViewportRegs {
	f := func(r *shadowReg) float32 { return math.Float32frombits(r.Value()) }
	return ViewportRegs{
		SurfaceInfo: d.surfaceInfo.Value(),
		VteCntl:     d.vteCntl.Value(),
		XScale:      f(&d.vport[0]),
		XOffset:     f(&d.vport[1]),
		YScale:      f(&d.vport[2]),
		YOffset:     f(&d.vport[3]),
		ZScale:      f(&d.vport[4]),
		ZOffset:     f(&d.vport[5]),
	}
}

// PixelParamGen is the fragment push constant: the interpolator receiving the
// generated pixel parameters, or -1 when generation is off.
func PixelParamGen(programCntl, contextMisc uint32) int32 {
	if !ProgramCntl(programCntl).ParamGen() {
		return -1
	}
	return int32((contextMisc >> 8) & 0xFF)
}

// SetDynamicState records the dynamic state. With full set everything is
// recorded; otherwise only what changed since the last call.
func (c *PipelineCache) SetDynamicState(cmd CommandRecorder, full bool) error {
	d := &c.dynamic
	r := c.regs

	offsetDirty := trackRegs(r, &d.modeCntl, &d.windowOffset)
	ox, oy := WindowOffset(d.modeCntl.Value(), d.windowOffset.Value())

	if trackRegs(r, &d.scissorTL, &d.scissorBR) || full || offsetDirty {
		cmd.SetScissor(ScissorRect(d.scissorTL.Value(), d.scissorBR.Value(), ox, oy))
	}

	vp := &d.vport
	if trackRegs(r, &d.surfaceInfo, &d.vteCntl, &vp[0], &vp[1], &vp[2], &vp[3], &vp[4], &vp[5]) || full || offsetDirty {
		cmd.SetViewport(ViewportRect(d.viewportRegs(), ox, oy))
	}

	b := &d.blend
	if trackRegs(r, &b[0], &b[1], &b[2], &b[3]) || full {
		var consts [4]float32
		for i := range consts {
			consts[i] = math.Float32frombits(b[i].Value())
		}
		cmd.SetBlendConstants(consts)
	}

	if full {
		// these are dynamic in every pipeline but not driven by the guest yet
		cmd.SetLineWidth(1)
		cmd.SetDepthBias(0, 0, 0)
		cmd.SetDepthBounds(0, 1)
		cmd.SetStencilCompareMask(stencilFrontAndBack, 0)
		cmd.SetStencilReference(stencilFrontAndBack, 0)
		cmd.SetStencilWriteMask(stencilFrontAndBack, 0)
	}

	if trackRegs(r, &d.programCntl, &d.contextMisc) || full {
		pc := ProgramCntl(d.programCntl.Value())
		if mode := pc.VsExportMode(); mode != 0 && mode != 2 {
			c.log.Printf("unsupported vertex export mode %d", mode)
		}
		var buf [fragmentPushSize]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(PixelParamGen(d.programCntl.Value(), d.contextMisc.Value())))
		cmd.PushConstants(c.layout, vk.ShaderStageFlags(vk.ShaderStageFragmentBit), fragmentPushOffset, buf[:])
	}
	return nil
}
