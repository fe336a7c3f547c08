package gpu

import (
	vk "github.com/goki/vulkan"
)

// Opaque device object handles. Zero is the null handle.
type (
	Pipeline            uint64
	PipelineLayout      uint64
	ShaderModule        uint64
	RenderPass          uint64
	DescriptorSetLayout uint64
)

// DeviceIdentity tells pipeline-cache blobs from different drivers apart.
type DeviceIdentity struct {
	VendorID      uint32
	DeviceID      uint32
	DriverVersion uint32
	CacheUUID     [16]byte
}

type PushConstantRange struct {
	Stages vk.ShaderStageFlags
	Offset uint32
	Size   uint32
}

type PipelineLayoutDescription struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

type ShaderStage struct {
	Stage  vk.ShaderStageFlagBits
	Module ShaderModule
}

type VertexInputState struct {
	Bindings   []vk.VertexInputBindingDescription
	Attributes []vk.VertexInputAttributeDescription
}

type InputAssemblyState struct {
	Topology         vk.PrimitiveTopology
	PrimitiveRestart bool
}

type ViewportState struct {
	ViewportCount uint32
	ScissorCount  uint32
}

type RasterizationState struct {
	DepthClamp        bool
	RasterizerDiscard bool
	PolygonMode       vk.PolygonMode
	CullMode          vk.CullModeFlagBits
	FrontFace         vk.FrontFace
	DepthBias         bool
	LineWidth         float32
}

type MultisampleState struct {
	Samples          vk.SampleCountFlagBits
	SampleShading    bool
	MinSampleShading float32
	AlphaToCoverage  bool
	AlphaToOne       bool
}

type StencilOpState struct {
	FailOp      vk.StencilOp
	PassOp      vk.StencilOp
	DepthFailOp vk.StencilOp
	CompareOp   vk.CompareOp
}

type DepthStencilState struct {
	DepthTest       bool
	DepthWrite      bool
	DepthCompareOp  vk.CompareOp
	DepthBoundsTest bool
	StencilTest     bool
	Front, Back     StencilOpState
}

type BlendAttachment struct {
	BlendEnable    bool
	SrcColorFactor vk.BlendFactor
	DstColorFactor vk.BlendFactor
	ColorOp        vk.BlendOp
	SrcAlphaFactor vk.BlendFactor
	DstAlphaFactor vk.BlendFactor
	AlphaOp        vk.BlendOp
	WriteMask      vk.ColorComponentFlags
}

type ColorBlendState struct {
	LogicOpEnable bool
	LogicOp       vk.LogicOp
	Attachments   [4]BlendAttachment
}

// PipelineDescription is everything needed to compile a graphics pipeline.
type PipelineDescription struct {
	Flags         vk.PipelineCreateFlags
	Stages        []ShaderStage
	VertexInput   VertexInputState
	InputAssembly InputAssemblyState
	Viewport      ViewportState
	Rasterization RasterizationState
	Multisample   MultisampleState
	DepthStencil  DepthStencilState
	ColorBlend    ColorBlendState
	DynamicStates []vk.DynamicState
	Layout        PipelineLayout
	RenderPass    RenderPass
	Subpass       uint32
}

// Device creates and destroys the objects the caches own.
type Device interface {
	Identity() DeviceIdentity
	CreateShaderModule(code []byte) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)
	CreatePipelineLayout(desc *PipelineLayoutDescription) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)
	CreateGraphicsPipeline(desc *PipelineDescription) (Pipeline, error)
	DestroyPipeline(p Pipeline)
	// driver pipeline cache contents, for persisting across runs
	PipelineCacheData() ([]byte, error)
	LoadPipelineCacheData(data []byte) error
}

// CommandRecorder records draw-time commands into a command buffer.
type CommandRecorder interface {
	BindPipeline(p Pipeline)
	SetViewport(v vk.Viewport)
	SetScissor(r vk.Rect2D)
	SetBlendConstants(c [4]float32)
	SetLineWidth(w float32)
	SetDepthBias(constant, clamp, slope float32)
	SetDepthBounds(min, max float32)
	SetStencilCompareMask(face vk.StencilFaceFlags, mask uint32)
	SetStencilWriteMask(face vk.StencilFaceFlags, mask uint32)
	SetStencilReference(face vk.StencilFaceFlags, ref uint32)
	PushConstants(layout PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte)
}

// RenderState is what the render target cache hands each draw.
type RenderState struct {
	RenderPass RenderPass
}
