package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/gpu"
)

func (h *handles) layoutInfo(desc *gpu.PipelineLayoutDescription) (*vk.PipelineLayoutCreateInfo, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(desc.SetLayouts))
	for i, id := range desc.SetLayouts {
		l, ok := h.setLayouts[id]
		if !ok {
			return nil, errors.Errorf("unknown descriptor set layout %d", id)
		}
		setLayouts[i] = l
	}
	ranges := make([]vk.PushConstantRange, len(desc.PushConstants))
	for i, r := range desc.PushConstants {
		ranges[i] = vk.PushConstantRange{StageFlags: r.Stages, Offset: r.Offset, Size: r.Size}
	}
	return &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}, nil
}

func stencilOp(s gpu.StencilOpState) vk.StencilOpState {
	return vk.StencilOpState{
		FailOp:      s.FailOp,
		PassOp:      s.PassOp,
		DepthFailOp: s.DepthFailOp,
		CompareOp:   s.CompareOp,
	}
}

// pipelineInfo translates a description into create info, resolving ids.
func (h *handles) pipelineInfo(desc *gpu.PipelineDescription) (*vk.GraphicsPipelineCreateInfo, error) {
	stages := make([]vk.PipelineShaderStageCreateInfo, len(desc.Stages))
	for i, s := range desc.Stages {
		module, ok := h.modules[s.Module]
		if !ok {
			return nil, errors.Errorf("stage %d: unknown shader module %d", s.Stage, s.Module)
		}
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  s.Stage,
			Module: module,
			PName:  entryPoint,
		}
	}
	layout, ok := h.layouts[desc.Layout]
	if !ok {
		return nil, errors.Errorf("unknown pipeline layout %d", desc.Layout)
	}
	pass, ok := h.passes[desc.RenderPass]
	if !ok {
		return nil, errors.Errorf("unknown render pass %d", desc.RenderPass)
	}

	vi := desc.VertexInput
	r := desc.Rasterization
	ms := desc.Multisample
	ds := desc.DepthStencil
	cb := desc.ColorBlend

	attachments := make([]vk.PipelineColorBlendAttachmentState, len(cb.Attachments))
	for i, a := range cb.Attachments {
		attachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:         b32(a.BlendEnable),
			SrcColorBlendFactor: a.SrcColorFactor,
			DstColorBlendFactor: a.DstColorFactor,
			ColorBlendOp:        a.ColorOp,
			SrcAlphaBlendFactor: a.SrcAlphaFactor,
			DstAlphaBlendFactor: a.DstAlphaFactor,
			AlphaBlendOp:        a.AlphaOp,
			ColorWriteMask:      a.WriteMask,
		}
	}

	return &vk.GraphicsPipelineCreateInfo{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		Flags:      desc.Flags,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(vi.Bindings)),
			PVertexBindingDescriptions:      vi.Bindings,
			VertexAttributeDescriptionCount: uint32(len(vi.Attributes)),
			PVertexAttributeDescriptions:    vi.Attributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology:               desc.InputAssembly.Topology,
			PrimitiveRestartEnable: b32(desc.InputAssembly.PrimitiveRestart),
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: desc.Viewport.ViewportCount,
			ScissorCount:  desc.Viewport.ScissorCount,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
			DepthClampEnable:        b32(r.DepthClamp),
			RasterizerDiscardEnable: b32(r.RasterizerDiscard),
			PolygonMode:             r.PolygonMode,
			CullMode:                vk.CullModeFlags(r.CullMode),
			FrontFace:               r.FrontFace,
			DepthBiasEnable:         b32(r.DepthBias),
			LineWidth:               r.LineWidth,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples:  ms.Samples,
			SampleShadingEnable:   b32(ms.SampleShading),
			MinSampleShading:      ms.MinSampleShading,
			AlphaToCoverageEnable: b32(ms.AlphaToCoverage),
			AlphaToOneEnable:      b32(ms.AlphaToOne),
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:       b32(ds.DepthTest),
			DepthWriteEnable:      b32(ds.DepthWrite),
			DepthCompareOp:        ds.DepthCompareOp,
			DepthBoundsTestEnable: b32(ds.DepthBoundsTest),
			StencilTestEnable:     b32(ds.StencilTest),
			Front:                 stencilOp(ds.Front),
			Back:                  stencilOp(ds.Back),
			MaxDepthBounds:        1,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			LogicOpEnable:   b32(cb.LogicOpEnable),
			LogicOp:         cb.LogicOp,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(desc.DynamicStates)),
			PDynamicStates:    desc.DynamicStates,
		},
		Layout:            layout,
		RenderPass:        pass,
		Subpass:           desc.Subpass,
		BasePipelineIndex: -1,
	}, nil
}
