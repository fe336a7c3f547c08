package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/gpu"
)

// Headless is a Vulkan device with no surface. It owns the render pass,
// descriptor set layouts and command buffer the caches need to compile and
// bind pipelines offline.
type Headless struct {
	*Device

	instance vk.Instance
	physical vk.PhysicalDevice
	dev      vk.Device
	pool     vk.CommandPool
	cmd      vk.CommandBuffer

	pass       vk.RenderPass
	setLayouts [2]vk.DescriptorSetLayout

	RenderPass gpu.RenderPass
	SetLayouts [2]gpu.DescriptorSetLayout
}

// graphicsQueueFamily returns the first queue family that can draw.
func graphicsQueueFamily(physical vk.PhysicalDevice) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &count, props)
	for i := range props {
		props[i].Deref()
		if props[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

// NewHeadless opens the first device with a graphics queue.
func NewHeadless() (*Headless, error) {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, errors.Wrap(err, "failed to load the Vulkan loader")
	}
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "vk.Init")
	}
	h := &Headless{}
	app := &vk.ApplicationInfo{
		SType:            vk.StructureTypeApplicationInfo,
		PApplicationName: "xenia\x00",
		PEngineName:      "xenia\x00",
		ApiVersion:       vk.MakeVersion(1, 0, 0),
	}
	if err := check(vk.CreateInstance(&vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: app,
	}, nil, &h.instance), "vkCreateInstance"); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(h.instance); err != nil {
		vk.DestroyInstance(h.instance, nil)
		return nil, errors.Wrap(err, "vk.InitInstance")
	}
	if err := h.open(); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

func (h *Headless) open() error {
	var count uint32
	if err := check(vk.EnumeratePhysicalDevices(h.instance, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check(vk.EnumeratePhysicalDevices(h.instance, &count, devices), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	family, found := uint32(0), false
	for _, d := range devices {
		if family, found = graphicsQueueFamily(d); found {
			h.physical = d
			break
		}
	}
	if !found {
		return errors.New("no Vulkan device with a graphics queue")
	}

	// pipelines may carry geometry and depth bounds state, so enable
	// whatever the device offers
	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(h.physical, &features)
	features.Deref()
	if err := check(vk.CreateDevice(h.physical, &vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}},
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{features},
	}, nil, &h.dev), "vkCreateDevice"); err != nil {
		return err
	}

	d, err := NewDevice(h.physical, h.dev)
	if err != nil {
		return err
	}
	h.Device = d
	if err := h.createRenderPass(); err != nil {
		return err
	}
	if err := h.createSetLayouts(); err != nil {
		return err
	}
	return h.createCommandBuffer(family)
}

// createRenderPass builds a single subpass with the four color targets the
// blend state describes.
func (h *Headless) createRenderPass() error {
	attachments := make([]vk.AttachmentDescription, 4)
	refs := make([]vk.AttachmentReference, 4)
	for i := range attachments {
		attachments[i] = vk.AttachmentDescription{
			Format:         vk.FormatR8g8b8a8Unorm,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpDontCare,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		}
		refs[i] = vk.AttachmentReference{Attachment: uint32(i), Layout: vk.ImageLayoutColorAttachmentOptimal}
	}
	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses: []vk.SubpassDescription{{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: uint32(len(refs)),
			PColorAttachments:    refs,
		}},
	}
	if err := check(vk.CreateRenderPass(h.dev, &info, nil, &h.pass), "vkCreateRenderPass"); err != nil {
		return err
	}
	h.RenderPass = h.RegisterRenderPass(h.pass)
	return nil
}

// createSetLayouts makes the uniform (set 0) and texture (set 1) layouts.
func (h *Headless) createSetLayouts() error {
	bindings := [2]vk.DescriptorSetLayoutBinding{
		{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAllGraphics),
		},
		{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 32,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAllGraphics),
		},
	}
	for i, b := range bindings {
		info := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: 1,
			PBindings:    []vk.DescriptorSetLayoutBinding{b},
		}
		if err := check(vk.CreateDescriptorSetLayout(h.dev, &info, nil, &h.setLayouts[i]), "vkCreateDescriptorSetLayout"); err != nil {
			return err
		}
		h.SetLayouts[i] = h.RegisterDescriptorSetLayout(h.setLayouts[i])
	}
	return nil
}

func (h *Headless) createCommandBuffer(family uint32) error {
	if err := check(vk.CreateCommandPool(h.dev, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: family,
	}, nil, &h.pool), "vkCreateCommandPool"); err != nil {
		return err
	}
	cmds := make([]vk.CommandBuffer, 1)
	if err := check(vk.AllocateCommandBuffers(h.dev, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        h.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cmds), "vkAllocateCommandBuffers"); err != nil {
		return err
	}
	h.cmd = cmds[0]
	return check(vk.BeginCommandBuffer(h.cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}), "vkBeginCommandBuffer")
}

// CommandRecorder records into the headless command buffer. It is never
// submitted.
func (h *Headless) CommandRecorder() *CommandRecorder {
	return h.Recorder(h.cmd)
}

// Close destroys everything. Pipelines and shader modules the caches still
// hold are destroyed with the device.
func (h *Headless) Close() {
	if h.dev != nil {
		vk.DeviceWaitIdle(h.dev)
		if h.cmd != nil {
			vk.EndCommandBuffer(h.cmd)
		}
		if h.pool != vk.NullCommandPool {
			vk.DestroyCommandPool(h.dev, h.pool, nil)
		}
		for _, l := range h.setLayouts {
			if l != vk.NullDescriptorSetLayout {
				vk.DestroyDescriptorSetLayout(h.dev, l, nil)
			}
		}
		if h.pass != vk.NullRenderPass {
			vk.DestroyRenderPass(h.dev, h.pass, nil)
		}
		if h.Device != nil {
			h.Device.Destroy()
		}
		vk.DestroyDevice(h.dev, nil)
		h.dev = nil
	}
	if h.instance != nil {
		vk.DestroyInstance(h.instance, nil)
		h.instance = nil
	}
}
