package gpu

import (
	vk "github.com/goki/vulkan"
)

// vertex input limits of the fixed descriptor arrays
const (
	maxVertexBindings   = 32
	maxVertexAttributes = 96
)

type shaderStagesState struct {
	modeCntl shadowReg
	vs, ps   Shadow[*Shader]
	prim     Shadow[PrimitiveType]
	stages   []ShaderStage
}

type vertexInputState struct {
	vs    Shadow[*Shader]
	state VertexInputState
}

type inputAssemblyState struct {
	prim       Shadow[PrimitiveType]
	modeCntl   shadowReg
	resetIndex shadowReg
	state      InputAssemblyState
}

type rasterizationState struct {
	modeCntl   shadowReg
	scissorTL  shadowReg
	scissorBR  shadowReg
	resetIndex shadowReg
	prim       Shadow[PrimitiveType]
	state      RasterizationState
}

type depthStencilState struct {
	depthControl   shadowReg
	stencilRefMask shadowReg
	state          DepthStencilState
}

type colorBlendState struct {
	colorControl shadowReg
	colorMask    shadowReg
	blendControl [4]shadowReg
	state        ColorBlendState
}

// pipelineState is every category's shadow registers and last built state.
type pipelineState struct {
	shaderStages  shaderStagesState
	vertexInput   vertexInputState
	inputAssembly inputAssemblyState
	viewport      ViewportState
	rasterization rasterizationState
	multisample   MultisampleState
	depthStencil  depthStencilState
	colorBlend    colorBlendState
}

func newPipelineState() pipelineState {
	var s pipelineState
	s.shaderStages.modeCntl.reg = PA_SU_SC_MODE_CNTL
	s.inputAssembly.modeCntl.reg = PA_SU_SC_MODE_CNTL
	s.inputAssembly.resetIndex.reg = VGT_MULTI_PRIM_IB_RESET_INDX
	s.rasterization.modeCntl.reg = PA_SU_SC_MODE_CNTL
	s.rasterization.scissorTL.reg = PA_SC_SCREEN_SCISSOR_TL
	s.rasterization.scissorBR.reg = PA_SC_SCREEN_SCISSOR_BR
	s.rasterization.resetIndex.reg = VGT_MULTI_PRIM_IB_RESET_INDX
	s.depthStencil.depthControl.reg = RB_DEPTHCONTROL
	s.depthStencil.stencilRefMask.reg = RB_STENCILREFMASK
	s.colorBlend.colorControl.reg = RB_COLORCONTROL
	s.colorBlend.colorMask.reg = RB_COLOR_MASK
	for i, r := range []Register{RB_BLENDCONTROL_0, RB_BLENDCONTROL_1, RB_BLENDCONTROL_2, RB_BLENDCONTROL_3} {
		s.colorBlend.blendControl[i].reg = r
	}

	// viewport and scissor are dynamic
	s.viewport = ViewportState{ViewportCount: 1, ScissorCount: 1}
	s.multisample = MultisampleState{Samples: vk.SampleCount1Bit}
	return s
}

// reset forgets all shadows so the next pass rebuilds everything.
func (s *pipelineState) reset() {
	s.shaderStages.modeCntl.Reset()
	s.shaderStages.vs.Reset()
	s.shaderStages.ps.Reset()
	s.shaderStages.prim.Reset()
	s.vertexInput.vs.Reset()
	s.inputAssembly.prim.Reset()
	s.inputAssembly.modeCntl.Reset()
	s.inputAssembly.resetIndex.Reset()
	s.rasterization.modeCntl.Reset()
	s.rasterization.scissorTL.Reset()
	s.rasterization.scissorBR.Reset()
	s.rasterization.resetIndex.Reset()
	s.rasterization.prim.Reset()
	s.depthStencil.depthControl.Reset()
	s.depthStencil.stencilRefMask.Reset()
	s.colorBlend.colorControl.Reset()
	s.colorBlend.colorMask.Reset()
	for i := range s.colorBlend.blendControl {
		s.colorBlend.blendControl[i].Reset()
	}
}

func (c *PipelineCache) stateUpdates() []stateUpdate {
	return []stateUpdate{
		{CategoryShaderStages, c.updateShaderStages},
		{CategoryVertexInput, c.updateVertexInputState},
		{CategoryInputAssembly, c.updateInputAssemblyState},
		{CategoryViewport, c.updateViewportState},
		{CategoryRasterization, c.updateRasterizationState},
		{CategoryMultisample, c.updateMultisampleState},
		{CategoryDepthStencil, c.updateDepthStencilState},
		{CategoryColorBlend, c.updateColorBlendState},
	}
}

func (c *PipelineCache) updateShaderStages(h *stateHasher) UpdateStatus {
	s := &c.state.shaderStages
	vs, ps, prim := c.draw.vs, c.draw.ps, c.draw.prim

	// constant bases are fixed on everything seen so far
	if v := c.regs.U32(SQ_VS_CONST); v != 0x000FF000 && v != 0 {
		c.Config.Debugf("unexpected SQ_VS_CONST 0x%08X", v)
	}
	if v := c.regs.U32(SQ_PS_CONST); v != 0x000FF100 && v != 0 {
		c.Config.Debugf("unexpected SQ_PS_CONST 0x%08X", v)
	}

	dirty := trackRegs(c.regs, &s.modeCntl)
	if s.vs.Track(vs) {
		dirty = true
	}
	if s.ps.Track(ps) {
		dirty = true
	}
	if s.prim.Track(prim) {
		dirty = true
	}
	h.u32(s.modeCntl.Value(), uint32(prim))
	h.u64(vs.Hash, ps.Hash)
	if !dirty {
		return UpdateCompatible
	}

	stages := []ShaderStage{{Stage: vk.ShaderStageVertexBit, Module: vs.Module()}}
	if gs := c.GetGeometryShader(prim, isLineMode(s.modeCntl.Value())); gs != 0 {
		stages = append(stages, ShaderStage{Stage: vk.ShaderStageGeometryBit, Module: gs})
	}
	stages = append(stages, ShaderStage{Stage: vk.ShaderStageFragmentBit, Module: ps.Module()})
	s.stages = stages
	return UpdateMismatch
}

func (c *PipelineCache) updateVertexInputState(h *stateHasher) UpdateStatus {
	s := &c.state.vertexInput
	vs := c.draw.vs
	dirty := s.vs.Track(vs)
	h.u64(vs.Hash)
	if !dirty {
		return UpdateCompatible
	}

	var state VertexInputState
	for _, b := range vs.Bindings {
		if len(state.Bindings) >= maxVertexBindings {
			c.log.Printf("too many vertex bindings in %s", vs)
			s.vs.Reset()
			return UpdateError
		}
		state.Bindings = append(state.Bindings, vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.StrideWords * 4,
			InputRate: vk.VertexInputRateVertex,
		})
		for _, a := range b.Attributes {
			if len(state.Attributes) >= maxVertexAttributes {
				c.log.Printf("too many vertex attributes in %s", vs)
				s.vs.Reset()
				return UpdateError
			}
			format, err := VertexFormatToVk(a.Format, a.Signed, a.Integer)
			if err != nil {
				c.log.Printf("vertex attribute %d: %v", a.Location, err)
				s.vs.Reset()
				return UpdateError
			}
			state.Attributes = append(state.Attributes, vk.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  b.Binding,
				Format:   format,
				Offset:   a.Offset * 4,
			})
		}
	}
	s.state = state
	return UpdateMismatch
}

func (c *PipelineCache) updateInputAssemblyState(h *stateHasher) UpdateStatus {
	s := &c.state.inputAssembly
	prim := c.draw.prim
	dirty := s.prim.Track(prim)
	if trackRegs(c.regs, &s.modeCntl, &s.resetIndex) {
		dirty = true
	}
	h.u32(uint32(prim), s.modeCntl.Value(), s.resetIndex.Value())
	if !dirty {
		return UpdateCompatible
	}

	topology, ok := PrimitiveTopology(prim)
	if !ok {
		c.log.Printf("unsupported primitive type %s", prim)
		s.prim.Reset()
		return UpdateError
	}
	mode := s.modeCntl.Value()
	if mode&(1<<19) != 0 {
		c.Config.Debugf("last-vertex provoking convention requested, Vulkan only supports first")
	}
	if idx := s.resetIndex.Value(); idx != 0xFFFF && idx != 0xFFFFFFFF {
		c.Config.Debugf("primitive restart index 0x%X is not supported", idx)
	}
	s.state = InputAssemblyState{
		Topology:         topology,
		PrimitiveRestart: mode&(1<<21) != 0,
	}
	return UpdateMismatch
}

// viewport and scissor rects are dynamic, only the counts are baked in
func (c *PipelineCache) updateViewportState(h *stateHasher) UpdateStatus {
	return UpdateCompatible
}

func (c *PipelineCache) updateRasterizationState(h *stateHasher) UpdateStatus {
	s := &c.state.rasterization
	prim := c.draw.prim
	dirty := trackRegs(c.regs, &s.modeCntl, &s.scissorTL, &s.scissorBR, &s.resetIndex)
	// rectangle lists change the cull mode
	if s.prim.Track(prim) {
		dirty = true
	}
	h.u32(s.modeCntl.Value(), s.scissorTL.Value(), s.scissorBR.Value(), s.resetIndex.Value(), uint32(prim))
	if !dirty {
		return UpdateCompatible
	}

	state, err := DecodeRasterization(s.modeCntl.Value(), prim)
	if err != nil {
		c.log.Printf("rasterization state: %v", err)
		s.modeCntl.Reset()
		return UpdateError
	}
	s.state = state
	return UpdateMismatch
}

func (c *PipelineCache) updateMultisampleState(h *stateHasher) UpdateStatus {
	return UpdateCompatible
}

func (c *PipelineCache) updateDepthStencilState(h *stateHasher) UpdateStatus {
	s := &c.state.depthStencil
	dirty := trackRegs(c.regs, &s.depthControl, &s.stencilRefMask)
	h.u32(s.depthControl.Value(), s.stencilRefMask.Value())
	if !dirty {
		return UpdateCompatible
	}

	// depth and stencil testing are not wired up yet; masks and reference
	// values are dynamic
	keep := StencilOpState{
		FailOp:      vk.StencilOpKeep,
		PassOp:      vk.StencilOpKeep,
		DepthFailOp: vk.StencilOpKeep,
		CompareOp:   vk.CompareOpAlways,
	}
	s.state = DepthStencilState{
		DepthCompareOp: vk.CompareOpAlways,
		Front:          keep,
		Back:           keep,
	}
	return UpdateMismatch
}

func (c *PipelineCache) updateColorBlendState(h *stateHasher) UpdateStatus {
	s := &c.state.colorBlend
	bc := &s.blendControl
	dirty := trackRegs(c.regs, &s.colorControl, &s.colorMask, &bc[0], &bc[1], &bc[2], &bc[3])
	h.u32(s.colorControl.Value(), s.colorMask.Value(), bc[0].Value(), bc[1].Value(), bc[2].Value(), bc[3].Value())
	if !dirty {
		return UpdateCompatible
	}

	state := ColorBlendState{LogicOp: vk.LogicOpNoOp}
	for i := range state.Attachments {
		a, err := DecodeBlendAttachment(bc[i].Value(), s.colorControl.Value(), s.colorMask.Value(), i)
		if err != nil {
			c.log.Printf("blend attachment %d: %v", i, err)
			bc[i].Reset()
			return UpdateError
		}
		state.Attachments[i] = a
	}
	s.state = state
	return UpdateMismatch
}
