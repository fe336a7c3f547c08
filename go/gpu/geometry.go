package gpu

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// GeometryKind names the geometry shaders used to expand primitives Vulkan
// cannot draw directly.
type GeometryKind int

const (
	GeometryPointList GeometryKind = iota
	GeometryRectList
	GeometryQuadList
	GeometryLineQuadList
	geometryKindCount
)

var geometryFiles = [geometryKindCount]string{
	"point_list.geom.spv",
	"rect_list.geom.spv",
	"quad_list.geom.spv",
	"line_quad_list.geom.spv",
}

func (k GeometryKind) String() string {
	if k >= 0 && k < geometryKindCount {
		return geometryFiles[k]
	}
	return "geometry(?)"
}

// LoadGeometryShaders reads the precompiled SPIR-V modules from dir.
func LoadGeometryShaders(dir string) (map[GeometryKind][]byte, error) {
	out := make(map[GeometryKind][]byte, geometryKindCount)
	for k := GeometryKind(0); k < geometryKindCount; k++ {
		data, err := os.ReadFile(filepath.Join(dir, geometryFiles[k]))
		if err != nil {
			return nil, errors.Wrap(err, "failed to load geometry shader")
		}
		out[k] = data
	}
	return out, nil
}

type geometryShaders [geometryKindCount]ShaderModule

func (c *PipelineCache) createGeometryShaders(code map[GeometryKind][]byte) error {
	for k, data := range code {
		if k < 0 || k >= geometryKindCount {
			return errors.Errorf("unknown geometry shader kind %d", k)
		}
		m, err := c.dev.CreateShaderModule(data)
		if err != nil {
			return errors.Wrapf(err, "creating %s", k)
		}
		c.geometry[k] = m
	}
	return nil
}

func (c *PipelineCache) destroyGeometryShaders() {
	for k, m := range c.geometry {
		if m != 0 {
			c.dev.DestroyShaderModule(m)
			c.geometry[k] = 0
		}
	}
}

// GetGeometryShader returns the expansion shader for a primitive type, or 0
// when the primitive is drawn natively. Unsupported primitives log and also
// return 0.
func (c *PipelineCache) GetGeometryShader(prim PrimitiveType, lineMode bool) ShaderModule {
	switch prim {
	case PrimitiveLineList, PrimitiveLineLoop, PrimitiveLineStrip,
		PrimitiveTriangleList, PrimitiveTriangleFan, PrimitiveTriangleStrip:
		return 0
	case PrimitivePointList:
		return c.geometry[GeometryPointList]
	case PrimitiveRectangleList:
		return c.geometry[GeometryRectList]
	case PrimitiveQuadList:
		if lineMode {
			return c.geometry[GeometryLineQuadList]
		}
		return c.geometry[GeometryQuadList]
	case PrimitiveUnknown0x07:
		c.log.Printf("Unknown geometry type")
	case PrimitiveQuadStrip:
		c.log.Printf("Quad strips not implemented")
	default:
		c.log.Printf("unhandled primitive type %s", prim)
	}
	return 0
}
