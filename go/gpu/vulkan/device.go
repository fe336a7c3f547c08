// Package vulkan implements the gpu device interfaces on top of a Vulkan
// logical device.
package vulkan

import (
	"encoding/binary"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/gpu"
)

var entryPoint = "main\x00"

func b32(v bool) vk.Bool32 {
	if v {
		return vk.True
	}
	return vk.False
}

func check(res vk.Result, what string) error {
	if err := vk.Error(res); err != nil {
		return errors.Wrap(err, what)
	}
	return nil
}

// spirvWords repacks a SPIR-V blob into words.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Errorf("SPIR-V size %d is not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

// handles maps the caches' opaque ids to Vulkan handles.
type handles struct {
	next       uint64
	modules    map[gpu.ShaderModule]vk.ShaderModule
	layouts    map[gpu.PipelineLayout]vk.PipelineLayout
	pipelines  map[gpu.Pipeline]vk.Pipeline
	passes     map[gpu.RenderPass]vk.RenderPass
	setLayouts map[gpu.DescriptorSetLayout]vk.DescriptorSetLayout
}

func newHandles() handles {
	return handles{
		modules:    make(map[gpu.ShaderModule]vk.ShaderModule),
		layouts:    make(map[gpu.PipelineLayout]vk.PipelineLayout),
		pipelines:  make(map[gpu.Pipeline]vk.Pipeline),
		passes:     make(map[gpu.RenderPass]vk.RenderPass),
		setLayouts: make(map[gpu.DescriptorSetLayout]vk.DescriptorSetLayout),
	}
}

func (h *handles) id() uint64 {
	h.next++
	return h.next
}

// Device is a gpu.Device backed by a vk.Device. Render passes and descriptor
// set layouts are owned elsewhere and registered here to get ids.
type Device struct {
	dev   vk.Device
	ident gpu.DeviceIdentity

	mu    sync.Mutex
	cache vk.PipelineCache
	h     handles
}

func NewDevice(physical vk.PhysicalDevice, dev vk.Device) (*Device, error) {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(physical, &props)
	props.Deref()
	d := &Device{
		dev: dev,
		ident: gpu.DeviceIdentity{
			VendorID:      props.VendorID,
			DeviceID:      props.DeviceID,
			DriverVersion: props.DriverVersion,
			CacheUUID:     props.PipelineCacheUUID,
		},
		h: newHandles(),
	}
	if err := d.createCache(nil); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) createCache(initial []byte) error {
	info := vk.PipelineCacheCreateInfo{SType: vk.StructureTypePipelineCacheCreateInfo}
	if len(initial) > 0 {
		info.InitialDataSize = uint64(len(initial))
		info.PInitialData = unsafe.Pointer(&initial[0])
	}
	var cache vk.PipelineCache
	if err := check(vk.CreatePipelineCache(d.dev, &info, nil, &cache), "vkCreatePipelineCache"); err != nil {
		return err
	}
	d.cache = cache
	return nil
}

func (d *Device) Identity() gpu.DeviceIdentity { return d.ident }

func (d *Device) RegisterRenderPass(p vk.RenderPass) gpu.RenderPass {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpu.RenderPass(d.h.id())
	d.h.passes[id] = p
	return id
}

func (d *Device) RegisterDescriptorSetLayout(l vk.DescriptorSetLayout) gpu.DescriptorSetLayout {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpu.DescriptorSetLayout(d.h.id())
	d.h.setLayouts[id] = l
	return id
}

func (d *Device) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	words, err := spirvWords(code)
	if err != nil {
		return 0, err
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    words,
	}
	var module vk.ShaderModule
	if err := check(vk.CreateShaderModule(d.dev, &info, nil, &module), "vkCreateShaderModule"); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpu.ShaderModule(d.h.id())
	d.h.modules[id] = module
	return id, nil
}

func (d *Device) DestroyShaderModule(m gpu.ShaderModule) {
	d.mu.Lock()
	module, ok := d.h.modules[m]
	delete(d.h.modules, m)
	d.mu.Unlock()
	if ok {
		vk.DestroyShaderModule(d.dev, module, nil)
	}
}

func (d *Device) CreatePipelineLayout(desc *gpu.PipelineLayoutDescription) (gpu.PipelineLayout, error) {
	d.mu.Lock()
	info, err := d.h.layoutInfo(desc)
	d.mu.Unlock()
	if err != nil {
		return 0, err
	}
	var layout vk.PipelineLayout
	if err := check(vk.CreatePipelineLayout(d.dev, info, nil, &layout), "vkCreatePipelineLayout"); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpu.PipelineLayout(d.h.id())
	d.h.layouts[id] = layout
	return id, nil
}

func (d *Device) DestroyPipelineLayout(l gpu.PipelineLayout) {
	d.mu.Lock()
	layout, ok := d.h.layouts[l]
	delete(d.h.layouts, l)
	d.mu.Unlock()
	if ok {
		vk.DestroyPipelineLayout(d.dev, layout, nil)
	}
}

func (d *Device) CreateGraphicsPipeline(desc *gpu.PipelineDescription) (gpu.Pipeline, error) {
	d.mu.Lock()
	info, err := d.h.pipelineInfo(desc)
	d.mu.Unlock()
	if err != nil {
		return 0, err
	}
	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(d.dev, d.cache, 1, []vk.GraphicsPipelineCreateInfo{*info}, nil, pipelines)
	if err := check(res, "vkCreateGraphicsPipelines"); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpu.Pipeline(d.h.id())
	d.h.pipelines[id] = pipelines[0]
	return id, nil
}

func (d *Device) DestroyPipeline(p gpu.Pipeline) {
	d.mu.Lock()
	pipeline, ok := d.h.pipelines[p]
	delete(d.h.pipelines, p)
	d.mu.Unlock()
	if ok {
		vk.DestroyPipeline(d.dev, pipeline, nil)
	}
}

func (d *Device) PipelineCacheData() ([]byte, error) {
	var size uint64
	if err := check(vk.GetPipelineCacheData(d.dev, d.cache, &size, nil), "vkGetPipelineCacheData"); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	data := make([]byte, size)
	if err := check(vk.GetPipelineCacheData(d.dev, d.cache, &size, unsafe.Pointer(&data[0])), "vkGetPipelineCacheData"); err != nil {
		return nil, err
	}
	return data[:size], nil
}

// LoadPipelineCacheData replaces the driver cache. Pipelines created so far
// are unaffected.
func (d *Device) LoadPipelineCacheData(data []byte) error {
	old := d.cache
	if err := d.createCache(data); err != nil {
		return err
	}
	vk.DestroyPipelineCache(d.dev, old, nil)
	return nil
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, p := range d.h.pipelines {
		vk.DestroyPipeline(d.dev, p, nil)
		delete(d.h.pipelines, id)
	}
	for id, l := range d.h.layouts {
		vk.DestroyPipelineLayout(d.dev, l, nil)
		delete(d.h.layouts, id)
	}
	for id, m := range d.h.modules {
		vk.DestroyShaderModule(d.dev, m, nil)
		delete(d.h.modules, id)
	}
	vk.DestroyPipelineCache(d.dev, d.cache, nil)
}

// Recorder returns a gpu.CommandRecorder writing into cmd.
func (d *Device) Recorder(cmd vk.CommandBuffer) *CommandRecorder {
	return &CommandRecorder{d: d, cmd: cmd}
}
