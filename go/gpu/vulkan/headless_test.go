package vulkan

import (
	"testing"

	"github.com/ST3ALth/xenia/go/gpu"
	"github.com/ST3ALth/xenia/go/models"
)

func TestHeadless(t *testing.T) {
	h, err := NewHeadless()
	if err != nil {
		t.Skipf("no Vulkan device: %v", err)
	}
	defer h.Close()
	if h.RenderPass == 0 || h.SetLayouts[0] == 0 || h.SetLayouts[1] == 0 {
		t.Fatalf("pass=%d layouts=%v", h.RenderPass, h.SetLayouts)
	}
	c, err := gpu.NewPipelineCache(&models.Config{}, gpu.NewRegisterFile(), h, h.SetLayouts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if _, err := h.PipelineCacheData(); err != nil {
		t.Fatal(err)
	}
}
