package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/ST3ALth/xenia/go/gpu"
)

func TestSpirvWords(t *testing.T) {
	words, err := spirvWords([]byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(words) != 2 || words[0] != 0x07230203 || words[1] != 1 {
		t.Fatalf("words = %x", words)
	}
	if _, err := spirvWords([]byte{1, 2, 3}); err == nil {
		t.Fatal("odd size accepted")
	}
}

func TestPipelineInfoResolvesHandles(t *testing.T) {
	h := newHandles()
	vs, ps := gpu.ShaderModule(h.id()), gpu.ShaderModule(h.id())
	h.modules[vs] = vk.NullShaderModule
	h.modules[ps] = vk.NullShaderModule
	layout := gpu.PipelineLayout(h.id())
	h.layouts[layout] = vk.NullPipelineLayout
	pass := gpu.RenderPass(h.id())
	h.passes[pass] = vk.NullRenderPass

	desc := &gpu.PipelineDescription{
		Stages: []gpu.ShaderStage{
			{Stage: vk.ShaderStageVertexBit, Module: vs},
			{Stage: vk.ShaderStageFragmentBit, Module: ps},
		},
		InputAssembly: gpu.InputAssemblyState{Topology: vk.PrimitiveTopologyTriangleStrip, PrimitiveRestart: true},
		Viewport:      gpu.ViewportState{ViewportCount: 1, ScissorCount: 1},
		Rasterization: gpu.RasterizationState{CullMode: vk.CullModeBackBit, LineWidth: 1},
		Multisample:   gpu.MultisampleState{Samples: vk.SampleCount1Bit},
		DynamicStates: []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor},
		Layout:        layout,
		RenderPass:    pass,
	}
	desc.ColorBlend.Attachments[2].BlendEnable = true

	info, err := h.pipelineInfo(desc)
	if err != nil {
		t.Fatal(err)
	}
	if info.StageCount != 2 || info.PStages[1].Stage != vk.ShaderStageFragmentBit || info.PStages[0].PName != "main\x00" {
		t.Error("stages not translated")
	}
	if info.PInputAssemblyState.PrimitiveRestartEnable != vk.True {
		t.Error("primitive restart lost")
	}
	if info.PRasterizationState.CullMode != vk.CullModeFlags(vk.CullModeBackBit) {
		t.Error("cull mode lost")
	}
	if info.PColorBlendState.AttachmentCount != 4 || info.PColorBlendState.PAttachments[2].BlendEnable != vk.True {
		t.Error("blend attachments lost")
	}
	if info.PDynamicState.DynamicStateCount != 2 || info.BasePipelineIndex != -1 {
		t.Error("dynamic state lost")
	}

	desc.Stages[1].Module = 99
	if _, err := h.pipelineInfo(desc); err == nil {
		t.Error("unknown module accepted")
	}
	desc.Stages[1].Module = ps
	desc.RenderPass = 0
	if _, err := h.pipelineInfo(desc); err == nil {
		t.Error("unknown render pass accepted")
	}
}

func TestLayoutInfo(t *testing.T) {
	h := newHandles()
	set := gpu.DescriptorSetLayout(h.id())
	h.setLayouts[set] = vk.NullDescriptorSetLayout
	info, err := h.layoutInfo(&gpu.PipelineLayoutDescription{
		SetLayouts:    []gpu.DescriptorSetLayout{set},
		PushConstants: []gpu.PushConstantRange{{Stages: vk.ShaderStageFlags(vk.ShaderStageFragmentBit), Offset: 64, Size: 4}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if info.SetLayoutCount != 1 || info.PushConstantRangeCount != 1 || info.PPushConstantRanges[0].Offset != 64 {
		t.Errorf("layout info = %+v", info)
	}
	if _, err := h.layoutInfo(&gpu.PipelineLayoutDescription{SetLayouts: []gpu.DescriptorSetLayout{42}}); err == nil {
		t.Error("unknown set layout accepted")
	}
}
