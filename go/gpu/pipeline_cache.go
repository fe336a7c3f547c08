package gpu

import (
	"fmt"
	"log"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/models"
)

// push constant layout shared by every pipeline
const (
	vertexPushOffset   = 0
	vertexPushSize     = 16 * 4
	fragmentPushOffset = vertexPushOffset + vertexPushSize
	fragmentPushSize   = 4
)

var pipelineDynamicStates = []vk.DynamicState{
	vk.DynamicStateViewport,
	vk.DynamicStateScissor,
	vk.DynamicStateLineWidth,
	vk.DynamicStateDepthBias,
	vk.DynamicStateBlendConstants,
	vk.DynamicStateDepthBounds,
	vk.DynamicStateStencilCompareMask,
	vk.DynamicStateStencilWriteMask,
	vk.DynamicStateStencilReference,
}

type PipelineStats struct {
	Hits     uint64
	Misses   uint64
	Builds   uint64
	Failures uint64
}

func (s PipelineStats) String() string {
	return fmt.Sprintf("hits=%d misses=%d builds=%d failures=%d", s.Hits, s.Misses, s.Builds, s.Failures)
}

type pipelineKey struct {
	hash uint64
	pass RenderPass
}

// PipelineCache turns register state into Vulkan pipelines. Each draw
// refreshes the shadowed state category by category; unchanged state reuses
// the bound pipeline, changed state is looked up by hash and compiled on a
// miss. It is not safe for concurrent use.
type PipelineCache struct {
	Config *models.Config
	Stats  PipelineStats

	log  *log.Logger
	regs *RegisterFile
	dev  Device

	layout    PipelineLayout
	geometry  geometryShaders
	pipelines map[pipelineKey]Pipeline
	current   Pipeline

	draw struct {
		vs, ps *Shader
		prim   PrimitiveType
	}
	renderPass Shadow[RenderPass]
	state      pipelineState
	dynamic    dynamicState
	hasher     *stateHasher
	updates    []stateUpdate
	statuses   [CategoryCount]UpdateStatus
}

// NewPipelineCache creates the shared pipeline layout and the geometry
// shaders. setLayouts are the uniform and texture descriptor set layouts.
// If cfg.CacheDir is set, a driver cache blob saved there by a previous
// Shutdown is loaded into the device.
func NewPipelineCache(cfg *models.Config, regs *RegisterFile, dev Device, setLayouts [2]DescriptorSetLayout, geometry map[GeometryKind][]byte) (*PipelineCache, error) {
	cfg = cfg.Init()
	c := &PipelineCache{
		Config:    cfg,
		log:       cfg.Logger(),
		regs:      regs,
		dev:       dev,
		pipelines: make(map[pipelineKey]Pipeline),
		state:     newPipelineState(),
		dynamic:   newDynamicState(),
		hasher:    newStateHasher(),
	}
	c.updates = c.stateUpdates()

	if cfg.CacheDir != "" {
		c.loadPipelineBlob(cfg.CacheDir)
	}
	layout, err := dev.CreatePipelineLayout(&PipelineLayoutDescription{
		SetLayouts: setLayouts[:],
		PushConstants: []PushConstantRange{
			{Stages: vk.ShaderStageFlags(vk.ShaderStageVertexBit), Offset: vertexPushOffset, Size: vertexPushSize},
			{Stages: vk.ShaderStageFlags(vk.ShaderStageFragmentBit), Offset: fragmentPushOffset, Size: fragmentPushSize},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating pipeline layout")
	}
	c.layout = layout
	if err := c.createGeometryShaders(geometry); err != nil {
		c.destroyGeometryShaders()
		dev.DestroyPipelineLayout(layout)
		return nil, err
	}
	return c, nil
}

func (c *PipelineCache) Layout() PipelineLayout { return c.layout }

// Len is the number of compiled pipelines.
func (c *PipelineCache) Len() int { return len(c.pipelines) }

// Key is the state hash from the last UpdateState.
func (c *PipelineCache) Key() uint64 { return c.hasher.Sum64() }

// Statuses are the per-category results of the last UpdateState. Categories
// after an error keep their previous value.
func (c *PipelineCache) Statuses() [CategoryCount]UpdateStatus { return c.statuses }

// UpdateState refreshes every category against the registers and the given
// draw inputs. On error the failing category is returned too.
func (c *PipelineCache) UpdateState(vs, ps *Shader, prim PrimitiveType) (UpdateStatus, Category) {
	if vs == nil || ps == nil {
		c.statuses[CategoryShaderStages] = UpdateError
		return UpdateError, CategoryShaderStages
	}
	c.draw.vs, c.draw.ps, c.draw.prim = vs, ps, prim
	return runUpdates(c.hasher, c.updates, &c.statuses)
}

// ConfigurePipeline binds the pipeline for the current register state and
// records the dynamic state. Nothing is bound on error.
func (c *PipelineCache) ConfigurePipeline(cmd CommandRecorder, rs RenderState, vs, ps *Shader, prim PrimitiveType) error {
	if !vs.IsValid() || !ps.IsValid() {
		c.current = 0
		return errors.Wrapf(ErrInvalidShader, "vs=%s ps=%s", vs, ps)
	}
	status, category := c.UpdateState(vs, ps, prim)
	if c.renderPass.Track(rs.RenderPass) {
		c.current = 0
	}
	switch status {
	case UpdateError:
		c.current = 0
		return errors.Wrapf(ErrPipelineState, "unable to update %s", category)
	case UpdateMismatch:
		c.current = 0
	}

	if c.current == 0 {
		pipeline, err := c.GetPipeline(rs, c.Key())
		if err != nil {
			return err
		}
		c.current = pipeline
	} else {
		c.Stats.Hits++
	}
	cmd.BindPipeline(c.current)
	return c.SetDynamicState(cmd, true)
}

// GetPipeline returns the pipeline for key, compiling it from the current
// state on a miss.
func (c *PipelineCache) GetPipeline(rs RenderState, key uint64) (Pipeline, error) {
	k := pipelineKey{hash: key, pass: rs.RenderPass}
	if p, ok := c.pipelines[k]; ok {
		c.Stats.Hits++
		return p, nil
	}
	c.Stats.Misses++
	p, err := c.dev.CreateGraphicsPipeline(c.Description(rs))
	if err != nil {
		c.Stats.Failures++
		c.log.Printf("pipeline 0x%016X: %v", key, err)
		return 0, errors.Wrapf(ErrPipelineCompile, "key 0x%016X: %v", key, err)
	}
	c.Stats.Builds++
	c.pipelines[k] = p
	c.Config.Debugf("compiled pipeline 0x%016X (%d total)", key, len(c.pipelines))
	return p, nil
}

// Description assembles the current state into a pipeline description.
func (c *PipelineCache) Description(rs RenderState) *PipelineDescription {
	s := &c.state
	return &PipelineDescription{
		Flags:         vk.PipelineCreateFlags(vk.PipelineCreateDisableOptimizationBit),
		Stages:        append([]ShaderStage(nil), s.shaderStages.stages...),
		VertexInput:   s.vertexInput.state,
		InputAssembly: s.inputAssembly.state,
		Viewport:      s.viewport,
		Rasterization: s.rasterization.state,
		Multisample:   s.multisample,
		DepthStencil:  s.depthStencil.state,
		ColorBlend:    s.colorBlend.state,
		DynamicStates: pipelineDynamicStates,
		Layout:        c.layout,
		RenderPass:    rs.RenderPass,
	}
}

// ClearCache destroys every compiled pipeline. The next draw rebuilds all
// state from the registers.
func (c *PipelineCache) ClearCache() {
	for k, p := range c.pipelines {
		c.dev.DestroyPipeline(p)
		delete(c.pipelines, k)
	}
	c.current = 0
	c.renderPass.Reset()
	c.state.reset()
	c.dynamic.reset()
}

// Shutdown saves the driver cache blob and releases every device object.
func (c *PipelineCache) Shutdown() error {
	var err error
	if c.Config.CacheDir != "" {
		err = c.savePipelineBlob(c.Config.CacheDir)
	}
	c.ClearCache()
	c.destroyGeometryShaders()
	if c.layout != 0 {
		c.dev.DestroyPipelineLayout(c.layout)
		c.layout = 0
	}
	return err
}
