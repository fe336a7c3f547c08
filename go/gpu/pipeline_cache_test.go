package gpu

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/models"
)

func testGeometry() map[GeometryKind][]byte {
	out := make(map[GeometryKind][]byte)
	for k := GeometryKind(0); k < geometryKindCount; k++ {
		out[k] = []byte{0x03, 0x02, 0x23, byte(k)}
	}
	return out
}

func newTestPipelineCache(t *testing.T, cfg *models.Config) (*PipelineCache, *NullDevice, *RegisterFile) {
	t.Helper()
	if cfg == nil {
		cfg = &models.Config{}
	}
	cfg.Output = io.Discard
	dev := NewNullDevice()
	regs := NewRegisterFile()
	c, err := NewPipelineCache(cfg, regs, dev, [2]DescriptorSetLayout{1, 2}, testGeometry())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Shutdown() })
	return c, dev, regs
}

// bindingTranslator gives vertex shaders one binding with a float4 and a
// color attribute.
type bindingTranslator struct{ PassthroughTranslator }

func (b bindingTranslator) Translate(s *Shader) error {
	if s.Type == ShaderVertex {
		s.Bindings = []VertexBinding{{
			Binding:     0,
			StrideWords: 5,
			Attributes: []VertexAttribute{
				{Location: 0, Offset: 0, Format: VertexFormat_32_32_32_32_FLOAT},
				{Location: 1, Offset: 4, Format: VertexFormat_8_8_8_8},
			},
		}}
	}
	return b.PassthroughTranslator.Translate(s)
}

func testShaders(t *testing.T, dev Device) (vs, ps *Shader) {
	t.Helper()
	sc := NewShaderCache(&models.Config{Output: io.Discard}, dev, bindingTranslator{}, nil)
	vs = sc.LoadShader(ShaderVertex, 0x1000, []uint32{1, 2, 3})
	ps = sc.LoadShader(ShaderPixel, 0x2000, []uint32{4, 5, 6})
	if !vs.IsValid() || !ps.IsValid() {
		t.Fatal("test shaders failed to load")
	}
	return vs, ps
}

func boundPipelines(rec *Recorder) []Pipeline {
	var out []Pipeline
	for _, c := range rec.Find("BindPipeline") {
		out = append(out, c.Args[0].(Pipeline))
	}
	return out
}

var firstDrawStatuses = [CategoryCount]UpdateStatus{
	CategoryShaderStages:  UpdateMismatch,
	CategoryVertexInput:   UpdateMismatch,
	CategoryInputAssembly: UpdateMismatch,
	CategoryViewport:      UpdateCompatible,
	CategoryRasterization: UpdateMismatch,
	CategoryMultisample:   UpdateCompatible,
	CategoryDepthStencil:  UpdateMismatch,
	CategoryColorBlend:    UpdateMismatch,
}

func TestNewPipelineCacheLayout(t *testing.T) {
	c, dev, _ := newTestPipelineCache(t, nil)
	desc := dev.PipelineLayoutDescription(c.Layout())
	if desc == nil {
		t.Fatal("layout not created")
	}
	want := &PipelineLayoutDescription{
		SetLayouts: []DescriptorSetLayout{1, 2},
		PushConstants: []PushConstantRange{
			{Stages: vk.ShaderStageFlags(vk.ShaderStageVertexBit), Offset: 0, Size: 64},
			{Stages: vk.ShaderStageFlags(vk.ShaderStageFragmentBit), Offset: 64, Size: 4},
		},
	}
	if diff := cmp.Diff(want, desc); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
	if modules, _, _ := dev.Live(); modules != int(geometryKindCount) {
		t.Errorf("%d geometry modules", modules)
	}
}

func TestConfigurePipelineReuse(t *testing.T) {
	c, dev, _ := newTestPipelineCache(t, nil)
	vs, ps := testShaders(t, dev)
	rec := &Recorder{}
	rs := RenderState{RenderPass: 7}

	if err := c.ConfigurePipeline(rec, rs, vs, ps, PrimitiveTriangleList); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(firstDrawStatuses, c.Statuses()); diff != "" {
		t.Errorf("first draw statuses (-want +got):\n%s", diff)
	}
	key := c.Key()

	if err := c.ConfigurePipeline(rec, rs, vs, ps, PrimitiveTriangleList); err != nil {
		t.Fatal(err)
	}
	for cat, status := range c.Statuses() {
		if status != UpdateCompatible {
			t.Errorf("%s: %s on unchanged registers", Category(cat), status)
		}
	}
	if c.Key() != key {
		t.Error("key changed on unchanged registers")
	}
	if dev.PipelinesCreated != 1 || c.Len() != 1 {
		t.Errorf("%d pipelines created", dev.PipelinesCreated)
	}
	bound := boundPipelines(rec)
	if len(bound) != 2 || bound[0] != bound[1] || bound[0] == 0 {
		t.Errorf("bound %v", bound)
	}
	if c.Stats.Hits != 1 || c.Stats.Misses != 1 || c.Stats.Builds != 1 {
		t.Errorf("stats: %s", c.Stats)
	}
}

func TestBlendChangeOnlyRebuildsColorBlend(t *testing.T) {
	c, dev, regs := newTestPipelineCache(t, nil)
	vs, ps := testShaders(t, dev)
	rec := &Recorder{}
	if err := c.ConfigurePipeline(rec, RenderState{}, vs, ps, PrimitiveTriangleList); err != nil {
		t.Fatal(err)
	}
	key := c.Key()

	regs.SetU32(RB_BLENDCONTROL_0, 0x00010001)
	if err := c.ConfigurePipeline(rec, RenderState{}, vs, ps, PrimitiveTriangleList); err != nil {
		t.Fatal(err)
	}
	want := [CategoryCount]UpdateStatus{CategoryColorBlend: UpdateMismatch}
	if diff := cmp.Diff(want, c.Statuses()); diff != "" {
		t.Errorf("statuses (-want +got):\n%s", diff)
	}
	if c.Key() == key {
		t.Error("key did not change")
	}
	if dev.PipelinesCreated != 2 {
		t.Errorf("%d pipelines created", dev.PipelinesCreated)
	}

	// going back finds the first pipeline again
	regs.SetU32(RB_BLENDCONTROL_0, 0)
	if err := c.ConfigurePipeline(rec, RenderState{}, vs, ps, PrimitiveTriangleList); err != nil {
		t.Fatal(err)
	}
	if c.Key() != key {
		t.Error("key differs for identical state")
	}
	bound := boundPipelines(rec)
	if dev.PipelinesCreated != 2 || bound[2] != bound[0] {
		t.Errorf("bound %v with %d pipelines created", bound, dev.PipelinesCreated)
	}
}

func TestGetPipelineCompilesOnce(t *testing.T) {
	c, dev, _ := newTestPipelineCache(t, nil)
	vs, ps := testShaders(t, dev)
	if status, _ := c.UpdateState(vs, ps, PrimitiveTriangleStrip); status != UpdateMismatch {
		t.Fatalf("first update = %s", status)
	}
	rs := RenderState{RenderPass: 3}
	a, err := c.GetPipeline(rs, c.Key())
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.GetPipeline(rs, c.Key())
	if err != nil {
		t.Fatal(err)
	}
	if a != b || dev.PipelinesCreated != 1 {
		t.Errorf("pipelines %d, %d; %d created", a, b, dev.PipelinesCreated)
	}
}

func TestRenderPassChangeRebinds(t *testing.T) {
	c, dev, _ := newTestPipelineCache(t, nil)
	vs, ps := testShaders(t, dev)
	rec := &Recorder{}
	c.ConfigurePipeline(rec, RenderState{RenderPass: 1}, vs, ps, PrimitiveTriangleList)
	c.ConfigurePipeline(rec, RenderState{RenderPass: 2}, vs, ps, PrimitiveTriangleList)
	bound := boundPipelines(rec)
	if len(bound) != 2 || bound[0] == bound[1] {
		t.Fatalf("bound %v", bound)
	}
	if got := dev.PipelineDescription(bound[1]).RenderPass; got != 2 {
		t.Errorf("render pass = %d", got)
	}
}

func TestPipelineDescription(t *testing.T) {
	c, dev, regs := newTestPipelineCache(t, nil)
	vs, ps := testShaders(t, dev)
	regs.SetU32(PA_SU_SC_MODE_CNTL, 1<<21|2)
	regs.SetU32(RB_COLOR_MASK, 0xF)
	rec := &Recorder{}
	if err := c.ConfigurePipeline(rec, RenderState{RenderPass: 9}, vs, ps, PrimitiveRectangleList); err != nil {
		t.Fatal(err)
	}
	desc := dev.PipelineDescription(boundPipelines(rec)[0])

	var stages []vk.ShaderStageFlagBits
	for _, s := range desc.Stages {
		stages = append(stages, s.Stage)
	}
	want := []vk.ShaderStageFlagBits{vk.ShaderStageVertexBit, vk.ShaderStageGeometryBit, vk.ShaderStageFragmentBit}
	if diff := cmp.Diff(want, stages); diff != "" {
		t.Errorf("stages (-want +got):\n%s", diff)
	}
	if desc.Stages[1].Module != c.geometry[GeometryRectList] {
		t.Error("rect list did not use the rect list geometry shader")
	}
	if desc.Stages[0].Module != vs.Module() || desc.Stages[2].Module != ps.Module() {
		t.Error("wrong shader modules")
	}

	if !desc.InputAssembly.PrimitiveRestart || desc.InputAssembly.Topology != vk.PrimitiveTopologyTriangleList {
		t.Errorf("input assembly = %+v", desc.InputAssembly)
	}
	if desc.Rasterization.CullMode != vk.CullModeNone {
		t.Error("rect list was culled")
	}

	vi := desc.VertexInput
	if len(vi.Bindings) != 1 || vi.Bindings[0].Stride != 20 {
		t.Fatalf("bindings = %+v", vi.Bindings)
	}
	if len(vi.Attributes) != 2 {
		t.Fatalf("attributes = %+v", vi.Attributes)
	}
	if a := vi.Attributes[1]; a.Location != 1 || a.Offset != 16 || a.Format != vk.FormatR8g8b8a8Unorm {
		t.Errorf("attribute 1 = %d %d %d", a.Location, a.Offset, a.Format)
	}

	if desc.ColorBlend.Attachments[0].WriteMask != 0xF || desc.ColorBlend.Attachments[1].WriteMask != 0 {
		t.Error("color write masks not split per attachment")
	}
	if desc.ColorBlend.LogicOpEnable || desc.ColorBlend.LogicOp != vk.LogicOpNoOp {
		t.Error("logic op enabled")
	}
	if desc.DepthStencil.DepthTest || desc.DepthStencil.StencilTest || desc.DepthStencil.Front.PassOp != vk.StencilOpKeep {
		t.Errorf("depth/stencil = %+v", desc.DepthStencil)
	}
	if desc.Multisample.Samples != vk.SampleCount1Bit {
		t.Error("multisampling enabled")
	}
	if desc.Viewport.ViewportCount != 1 || desc.Viewport.ScissorCount != 1 {
		t.Errorf("viewport state = %+v", desc.Viewport)
	}
	if len(desc.DynamicStates) != 9 {
		t.Errorf("%d dynamic states", len(desc.DynamicStates))
	}
	if desc.Layout != c.Layout() || desc.RenderPass != 9 {
		t.Error("wrong layout or render pass")
	}
	if desc.Flags != vk.PipelineCreateFlags(vk.PipelineCreateDisableOptimizationBit) {
		t.Errorf("flags = %x", desc.Flags)
	}
}

func TestGeometryShaderSelection(t *testing.T) {
	c, _, _ := newTestPipelineCache(t, nil)
	tests := []struct {
		prim     PrimitiveType
		lineMode bool
		want     ShaderModule
	}{
		{PrimitiveTriangleList, false, 0},
		{PrimitiveLineStrip, true, 0},
		{PrimitivePointList, false, c.geometry[GeometryPointList]},
		{PrimitiveRectangleList, false, c.geometry[GeometryRectList]},
		{PrimitiveQuadList, false, c.geometry[GeometryQuadList]},
		{PrimitiveQuadList, true, c.geometry[GeometryLineQuadList]},
		{PrimitiveQuadStrip, false, 0},
		{PrimitiveUnknown0x07, false, 0},
	}
	for _, test := range tests {
		if got := c.GetGeometryShader(test.prim, test.lineMode); got != test.want {
			t.Errorf("%s line=%v: got %d want %d", test.prim, test.lineMode, got, test.want)
		}
	}
}

func TestUnsupportedPrimitive(t *testing.T) {
	c, dev, _ := newTestPipelineCache(t, nil)
	vs, ps := testShaders(t, dev)
	rec := &Recorder{}
	err := c.ConfigurePipeline(rec, RenderState{}, vs, ps, PrimitiveQuadStrip)
	if errors.Cause(err) != ErrPipelineState {
		t.Fatalf("err = %v", err)
	}
	if c.Statuses()[CategoryInputAssembly] != UpdateError {
		t.Errorf("statuses = %v", c.Statuses())
	}
	if len(rec.Commands) != 0 {
		t.Errorf("recorded %v", rec.Commands)
	}
	if err := c.ConfigurePipeline(rec, RenderState{}, vs, ps, PrimitiveTriangleList); err != nil {
		t.Fatal(err)
	}
	if len(boundPipelines(rec)) != 1 {
		t.Error("pipeline not bound after recovering")
	}
}

func TestBadBlendFactor(t *testing.T) {
	c, dev, regs := newTestPipelineCache(t, nil)
	vs, ps := testShaders(t, dev)
	rec := &Recorder{}
	regs.SetU32(RB_BLENDCONTROL_2, 0x1F)
	err := c.ConfigurePipeline(rec, RenderState{}, vs, ps, PrimitiveTriangleList)
	if errors.Cause(err) != ErrPipelineState {
		t.Fatalf("err = %v", err)
	}
	// the bad register must be rechecked on the next draw
	err = c.ConfigurePipeline(rec, RenderState{}, vs, ps, PrimitiveTriangleList)
	if errors.Cause(err) != ErrPipelineState {
		t.Fatalf("second draw err = %v", err)
	}
	regs.SetU32(RB_BLENDCONTROL_2, 0)
	if err := c.ConfigurePipeline(rec, RenderState{}, vs, ps, PrimitiveTriangleList); err != nil {
		t.Fatal(err)
	}
}

func TestInvalidShader(t *testing.T) {
	c, dev, _ := newTestPipelineCache(t, nil)
	vs, _ := testShaders(t, dev)
	rec := &Recorder{}
	for _, ps := range []*Shader{nil, {Type: ShaderPixel}} {
		err := c.ConfigurePipeline(rec, RenderState{}, vs, ps, PrimitiveTriangleList)
		if errors.Cause(err) != ErrInvalidShader {
			t.Errorf("err = %v", err)
		}
	}
	if len(rec.Commands) != 0 {
		t.Errorf("recorded %v", rec.Commands)
	}
}

func TestCompileFailure(t *testing.T) {
	c, dev, _ := newTestPipelineCache(t, nil)
	vs, ps := testShaders(t, dev)
	rec := &Recorder{}
	dev.FailPipelines = true
	err := c.ConfigurePipeline(rec, RenderState{}, vs, ps, PrimitiveTriangleList)
	if errors.Cause(err) != ErrPipelineCompile {
		t.Fatalf("err = %v", err)
	}
	if c.Stats.Failures != 1 || len(rec.Commands) != 0 {
		t.Errorf("stats %s, recorded %v", c.Stats, rec.Commands)
	}
	// the state is compatible now but nothing is bound, so it compiles again
	dev.FailPipelines = false
	if err := c.ConfigurePipeline(rec, RenderState{}, vs, ps, PrimitiveTriangleList); err != nil {
		t.Fatal(err)
	}
	if len(boundPipelines(rec)) != 1 {
		t.Error("pipeline not bound")
	}
}

func TestClearCache(t *testing.T) {
	c, dev, _ := newTestPipelineCache(t, nil)
	vs, ps := testShaders(t, dev)
	rec := &Recorder{}
	c.ConfigurePipeline(rec, RenderState{}, vs, ps, PrimitiveTriangleList)
	c.ClearCache()
	if _, _, pipelines := dev.Live(); pipelines != 0 || c.Len() != 0 {
		t.Fatalf("%d live pipelines after clear", pipelines)
	}
	if err := c.ConfigurePipeline(rec, RenderState{}, vs, ps, PrimitiveTriangleList); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(firstDrawStatuses, c.Statuses()); diff != "" {
		t.Errorf("statuses after clear (-want +got):\n%s", diff)
	}
	if dev.PipelinesCreated != 2 {
		t.Errorf("%d pipelines created", dev.PipelinesCreated)
	}
}

func TestShutdownReleasesEverything(t *testing.T) {
	c, dev, _ := newTestPipelineCache(t, nil)
	c.Shutdown()
	modules, layouts, pipelines := dev.Live()
	if modules+layouts+pipelines != 0 {
		t.Errorf("live objects: %d modules, %d layouts, %d pipelines", modules, layouts, pipelines)
	}
}

func TestPipelineBlobPersists(t *testing.T) {
	dir := t.TempDir()
	c, dev, _ := newTestPipelineCache(t, &models.Config{CacheDir: dir})
	vs, ps := testShaders(t, dev)
	c.ConfigurePipeline(&Recorder{}, RenderState{}, vs, ps, PrimitiveTriangleList)
	want, _ := dev.PipelineCacheData()
	if err := c.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, pipelineBlobFile)); err != nil {
		t.Fatal(err)
	}

	dev2 := NewNullDevice()
	c2, err := NewPipelineCache(&models.Config{CacheDir: dir, Output: io.Discard}, NewRegisterFile(), dev2, [2]DescriptorSetLayout{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := dev2.PipelineCacheData()
	if string(got) != string(want) {
		t.Errorf("loaded %q, want %q", got, want)
	}
	c2.ClearCache()

	// a different driver must not see it
	dev3 := NewNullDevice()
	dev3.Ident.DriverVersion++
	if _, err := NewPipelineCache(&models.Config{CacheDir: dir, Output: io.Discard}, NewRegisterFile(), dev3, [2]DescriptorSetLayout{}, nil); err != nil {
		t.Fatal(err)
	}
	if got, _ := dev3.PipelineCacheData(); len(got) != 0 {
		t.Errorf("foreign blob loaded: %q", got)
	}
}
