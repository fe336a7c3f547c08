package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/ST3ALth/xenia/go/gpu"
)

// CommandRecorder records into a command buffer that is in the recording
// state.
type CommandRecorder struct {
	d   *Device
	cmd vk.CommandBuffer
}

func (r *CommandRecorder) BindPipeline(p gpu.Pipeline) {
	r.d.mu.Lock()
	pipeline := r.d.h.pipelines[p]
	r.d.mu.Unlock()
	vk.CmdBindPipeline(r.cmd, vk.PipelineBindPointGraphics, pipeline)
}

func (r *CommandRecorder) SetViewport(v vk.Viewport) {
	vk.CmdSetViewport(r.cmd, 0, 1, []vk.Viewport{v})
}

func (r *CommandRecorder) SetScissor(s vk.Rect2D) {
	vk.CmdSetScissor(r.cmd, 0, 1, []vk.Rect2D{s})
}

func (r *CommandRecorder) SetBlendConstants(c [4]float32) {
	vk.CmdSetBlendConstants(r.cmd, &c)
}

func (r *CommandRecorder) SetLineWidth(w float32) {
	vk.CmdSetLineWidth(r.cmd, w)
}

func (r *CommandRecorder) SetDepthBias(constant, clamp, slope float32) {
	vk.CmdSetDepthBias(r.cmd, constant, clamp, slope)
}

func (r *CommandRecorder) SetDepthBounds(min, max float32) {
	vk.CmdSetDepthBounds(r.cmd, min, max)
}

func (r *CommandRecorder) SetStencilCompareMask(face vk.StencilFaceFlags, mask uint32) {
	vk.CmdSetStencilCompareMask(r.cmd, face, mask)
}

func (r *CommandRecorder) SetStencilWriteMask(face vk.StencilFaceFlags, mask uint32) {
	vk.CmdSetStencilWriteMask(r.cmd, face, mask)
}

func (r *CommandRecorder) SetStencilReference(face vk.StencilFaceFlags, ref uint32) {
	vk.CmdSetStencilReference(r.cmd, face, ref)
}

func (r *CommandRecorder) PushConstants(layout gpu.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	r.d.mu.Lock()
	l := r.d.h.layouts[layout]
	r.d.mu.Unlock()
	vk.CmdPushConstants(r.cmd, l, stages, offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}
