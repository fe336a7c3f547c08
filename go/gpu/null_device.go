package gpu

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
)

// NullDevice is a Device that hands out handles without a GPU. It keeps the
// descriptions it was given so callers can inspect them.
type NullDevice struct {
	Ident DeviceIdentity
	// set to make the matching create call fail
	FailShaderModules bool
	FailPipelines     bool

	mu        sync.Mutex
	next      uint64
	modules   map[ShaderModule][]byte
	layouts   map[PipelineLayout]*PipelineLayoutDescription
	pipelines map[Pipeline]*PipelineDescription
	cacheData []byte

	PipelinesCreated int
	ModulesCreated   int
}

func NewNullDevice() *NullDevice {
	return &NullDevice{
		Ident:     DeviceIdentity{VendorID: 0x1337, DeviceID: 1, DriverVersion: 1},
		modules:   make(map[ShaderModule][]byte),
		layouts:   make(map[PipelineLayout]*PipelineLayoutDescription),
		pipelines: make(map[Pipeline]*PipelineDescription),
	}
}

func (d *NullDevice) handle() uint64 {
	d.next++
	return d.next
}

func (d *NullDevice) Identity() DeviceIdentity { return d.Ident }

func (d *NullDevice) CreateShaderModule(code []byte) (ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailShaderModules {
		return 0, errors.New("shader module creation failed")
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, errors.Errorf("bad SPIR-V size %d", len(code))
	}
	m := ShaderModule(d.handle())
	d.modules[m] = append([]byte(nil), code...)
	d.ModulesCreated++
	return m, nil
}

func (d *NullDevice) DestroyShaderModule(m ShaderModule) {
	d.mu.Lock()
	delete(d.modules, m)
	d.mu.Unlock()
}

func (d *NullDevice) CreatePipelineLayout(desc *PipelineLayoutDescription) (PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := PipelineLayout(d.handle())
	cp := *desc
	d.layouts[l] = &cp
	return l, nil
}

func (d *NullDevice) DestroyPipelineLayout(l PipelineLayout) {
	d.mu.Lock()
	delete(d.layouts, l)
	d.mu.Unlock()
}

func (d *NullDevice) CreateGraphicsPipeline(desc *PipelineDescription) (Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailPipelines {
		return 0, vk.Error(vk.ErrorInitializationFailed)
	}
	for _, s := range desc.Stages {
		if _, ok := d.modules[s.Module]; !ok {
			return 0, errors.Errorf("stage %d uses unknown module %d", s.Stage, s.Module)
		}
	}
	if _, ok := d.layouts[desc.Layout]; !ok {
		return 0, errors.Errorf("unknown pipeline layout %d", desc.Layout)
	}
	p := Pipeline(d.handle())
	cp := *desc
	d.pipelines[p] = &cp
	d.PipelinesCreated++
	d.cacheData = append(d.cacheData, []byte(fmt.Sprintf("pipeline %d;", p))...)
	return p, nil
}

func (d *NullDevice) DestroyPipeline(p Pipeline) {
	d.mu.Lock()
	delete(d.pipelines, p)
	d.mu.Unlock()
}

func (d *NullDevice) PipelineCacheData() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.cacheData...), nil
}

func (d *NullDevice) LoadPipelineCacheData(data []byte) error {
	d.mu.Lock()
	d.cacheData = append([]byte(nil), data...)
	d.mu.Unlock()
	return nil
}

// PipelineDescription returns what p was created from.
func (d *NullDevice) PipelineDescription(p Pipeline) *PipelineDescription {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipelines[p]
}

func (d *NullDevice) PipelineLayoutDescription(l PipelineLayout) *PipelineLayoutDescription {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.layouts[l]
}

// Live counts objects that were created and not destroyed.
func (d *NullDevice) Live() (modules, layouts, pipelines int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.modules), len(d.layouts), len(d.pipelines)
}

// Command is one call recorded by a Recorder.
type Command struct {
	Op   string
	Args []interface{}
}

func (c Command) String() string {
	return fmt.Sprintf("%s%v", c.Op, c.Args)
}

// Recorder is a CommandRecorder that keeps every call.
type Recorder struct {
	Commands []Command
}

func (r *Recorder) add(op string, args ...interface{}) {
	r.Commands = append(r.Commands, Command{op, args})
}

// Find returns the recorded commands named op.
func (r *Recorder) Find(op string) []Command {
	var out []Command
	for _, c := range r.Commands {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (r *Recorder) Reset() { r.Commands = nil }

func (r *Recorder) BindPipeline(p Pipeline)        { r.add("BindPipeline", p) }
func (r *Recorder) SetViewport(v vk.Viewport)      { r.add("SetViewport", v) }
func (r *Recorder) SetScissor(s vk.Rect2D)         { r.add("SetScissor", s) }
func (r *Recorder) SetBlendConstants(c [4]float32) { r.add("SetBlendConstants", c) }
func (r *Recorder) SetLineWidth(w float32)         { r.add("SetLineWidth", w) }
func (r *Recorder) SetDepthBias(constant, clamp, slope float32) {
	r.add("SetDepthBias", constant, clamp, slope)
}
func (r *Recorder) SetDepthBounds(min, max float32) { r.add("SetDepthBounds", min, max) }
func (r *Recorder) SetStencilCompareMask(face vk.StencilFaceFlags, mask uint32) {
	r.add("SetStencilCompareMask", face, mask)
}
func (r *Recorder) SetStencilWriteMask(face vk.StencilFaceFlags, mask uint32) {
	r.add("SetStencilWriteMask", face, mask)
}
func (r *Recorder) SetStencilReference(face vk.StencilFaceFlags, ref uint32) {
	r.add("SetStencilReference", face, ref)
}
func (r *Recorder) PushConstants(layout PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	r.add("PushConstants", layout, stages, offset, append([]byte(nil), data...))
}
