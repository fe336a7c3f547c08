package gpu

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
)

// VertexFormat is the data format field of a vertex fetch instruction.
type VertexFormat uint32

const (
	VertexFormatUndefined          VertexFormat = 0
	VertexFormat_8_8_8_8           VertexFormat = 6
	VertexFormat_2_10_10_10        VertexFormat = 7
	VertexFormat_10_11_11          VertexFormat = 16
	VertexFormat_11_11_10          VertexFormat = 17
	VertexFormat_16_16             VertexFormat = 25
	VertexFormat_16_16_16_16       VertexFormat = 26
	VertexFormat_16_16_FLOAT       VertexFormat = 31
	VertexFormat_16_16_16_16_FLOAT VertexFormat = 32
	VertexFormat_32                VertexFormat = 33
	VertexFormat_32_32             VertexFormat = 34
	VertexFormat_32_32_32_32       VertexFormat = 35
	VertexFormat_32_FLOAT          VertexFormat = 36
	VertexFormat_32_32_FLOAT       VertexFormat = 37
	VertexFormat_32_32_32_32_FLOAT VertexFormat = 38
	VertexFormat_32_32_32_FLOAT    VertexFormat = 57
)

func (f VertexFormat) String() string {
	switch f {
	case VertexFormat_8_8_8_8:
		return "8_8_8_8"
	case VertexFormat_2_10_10_10:
		return "2_10_10_10"
	case VertexFormat_10_11_11:
		return "10_11_11"
	case VertexFormat_11_11_10:
		return "11_11_10"
	case VertexFormat_16_16:
		return "16_16"
	case VertexFormat_16_16_16_16:
		return "16_16_16_16"
	case VertexFormat_16_16_FLOAT:
		return "16_16_FLOAT"
	case VertexFormat_16_16_16_16_FLOAT:
		return "16_16_16_16_FLOAT"
	case VertexFormat_32:
		return "32"
	case VertexFormat_32_32:
		return "32_32"
	case VertexFormat_32_32_32_32:
		return "32_32_32_32"
	case VertexFormat_32_FLOAT:
		return "32_FLOAT"
	case VertexFormat_32_32_FLOAT:
		return "32_32_FLOAT"
	case VertexFormat_32_32_32_32_FLOAT:
		return "32_32_32_32_FLOAT"
	case VertexFormat_32_32_32_FLOAT:
		return "32_32_32_FLOAT"
	}
	return fmt.Sprintf("vertex_format(%d)", uint32(f))
}

// pick returns a if cond, else b
func pick(cond bool, a, b vk.Format) vk.Format {
	if cond {
		return a
	}
	return b
}

// VertexFormatToVk maps a fetch format to a Vulkan format. Normalized
// formats become their scaled variants when the fetch is marked integer.
func VertexFormatToVk(f VertexFormat, signed, integer bool) (vk.Format, error) {
	switch f {
	case VertexFormat_8_8_8_8:
		if integer {
			return pick(signed, vk.FormatR8g8b8a8Sscaled, vk.FormatR8g8b8a8Uscaled), nil
		}
		return pick(signed, vk.FormatR8g8b8a8Snorm, vk.FormatR8g8b8a8Unorm), nil
	case VertexFormat_2_10_10_10:
		if integer {
			return pick(signed, vk.FormatA2r10g10b10SscaledPack32, vk.FormatA2r10g10b10UscaledPack32), nil
		}
		return pick(signed, vk.FormatA2r10g10b10SnormPack32, vk.FormatA2r10g10b10UnormPack32), nil
	case VertexFormat_10_11_11, VertexFormat_11_11_10:
		return vk.FormatB10g11r11UfloatPack32, nil
	case VertexFormat_16_16:
		if integer {
			return pick(signed, vk.FormatR16g16Sscaled, vk.FormatR16g16Uscaled), nil
		}
		return pick(signed, vk.FormatR16g16Snorm, vk.FormatR16g16Unorm), nil
	case VertexFormat_16_16_FLOAT:
		return pick(signed, vk.FormatR16g16Sscaled, vk.FormatR16g16Uscaled), nil
	case VertexFormat_16_16_16_16:
		if integer {
			return pick(signed, vk.FormatR16g16b16a16Sscaled, vk.FormatR16g16b16a16Uscaled), nil
		}
		return pick(signed, vk.FormatR16g16b16a16Snorm, vk.FormatR16g16b16a16Unorm), nil
	case VertexFormat_16_16_16_16_FLOAT:
		return pick(signed, vk.FormatR16g16b16a16Sscaled, vk.FormatR16g16b16a16Uscaled), nil
	case VertexFormat_32:
		return pick(signed, vk.FormatR32Sint, vk.FormatR32Uint), nil
	case VertexFormat_32_32:
		return pick(signed, vk.FormatR32g32Sint, vk.FormatR32g32Uint), nil
	case VertexFormat_32_32_32_32:
		return pick(signed, vk.FormatR32g32b32a32Sint, vk.FormatR32g32b32a32Uint), nil
	case VertexFormat_32_FLOAT:
		return vk.FormatR32Sfloat, nil
	case VertexFormat_32_32_FLOAT:
		return vk.FormatR32g32Sfloat, nil
	case VertexFormat_32_32_32_FLOAT:
		return vk.FormatR32g32b32Sfloat, nil
	case VertexFormat_32_32_32_32_FLOAT:
		return vk.FormatR32g32b32a32Sfloat, nil
	}
	return vk.FormatUndefined, errors.Errorf("unhandled vertex format %s", f)
}

// RB_BLENDCONTROL factor field values
var blendFactorMap = [17]vk.BlendFactor{
	vk.BlendFactorZero,
	vk.BlendFactorOne,
	vk.BlendFactorZero, // ?
	vk.BlendFactorZero, // ?
	vk.BlendFactorSrcColor,
	vk.BlendFactorOneMinusSrcColor,
	vk.BlendFactorSrcAlpha,
	vk.BlendFactorOneMinusSrcAlpha,
	vk.BlendFactorDstColor,
	vk.BlendFactorOneMinusDstColor,
	vk.BlendFactorDstAlpha,
	vk.BlendFactorOneMinusDstAlpha,
	vk.BlendFactorConstantColor,
	vk.BlendFactorOneMinusConstantColor,
	vk.BlendFactorConstantAlpha,
	vk.BlendFactorOneMinusConstantAlpha,
	vk.BlendFactorSrcAlphaSaturate,
}

var blendOpMap = [5]vk.BlendOp{
	vk.BlendOpAdd,
	vk.BlendOpSubtract,
	vk.BlendOpMin,
	vk.BlendOpMax,
	vk.BlendOpReverseSubtract,
}

// the 5-bit factor fields can hold values past the table
func blendFactor(v uint32) (vk.BlendFactor, error) {
	if int(v) >= len(blendFactorMap) {
		return 0, errors.Errorf("blend factor %d out of range", v)
	}
	return blendFactorMap[v], nil
}

func blendOp(v uint32) (vk.BlendOp, error) {
	if int(v) >= len(blendOpMap) {
		return 0, errors.Errorf("blend op %d out of range", v)
	}
	return blendOpMap[v], nil
}

// DecodeBlendAttachment unpacks one RB_BLENDCONTROL register. Blending is
// on unless RB_COLORCONTROL bit 5 is set; the write mask is the attachment's
// nibble of RB_COLOR_MASK.
func DecodeBlendAttachment(blendControl, colorControl, colorMask uint32, index int) (BlendAttachment, error) {
	var a BlendAttachment
	var err error
	a.BlendEnable = colorControl&0x20 == 0
	if a.SrcColorFactor, err = blendFactor(blendControl & 0x1F); err != nil {
		return a, err
	}
	if a.DstColorFactor, err = blendFactor((blendControl >> 8) & 0x1F); err != nil {
		return a, err
	}
	if a.ColorOp, err = blendOp((blendControl >> 5) & 0x7); err != nil {
		return a, err
	}
	if a.SrcAlphaFactor, err = blendFactor((blendControl >> 16) & 0x1F); err != nil {
		return a, err
	}
	if a.DstAlphaFactor, err = blendFactor((blendControl >> 24) & 0x1F); err != nil {
		return a, err
	}
	if a.AlphaOp, err = blendOp((blendControl >> 21) & 0x7); err != nil {
		return a, err
	}
	// R=bit 0, G=bit 1 ... like VkColorComponentFlagBits
	a.WriteMask = vk.ColorComponentFlags((colorMask >> (uint(index) * 4)) & 0xF)
	return a, nil
}

// PrimitiveTopology maps a draw primitive to the topology it is fed as.
// Rectangles and quads are expanded by a geometry shader.
func PrimitiveTopology(p PrimitiveType) (vk.PrimitiveTopology, bool) {
	switch p {
	case PrimitivePointList:
		return vk.PrimitiveTopologyPointList, true
	case PrimitiveLineList:
		return vk.PrimitiveTopologyLineList, true
	case PrimitiveLineStrip, PrimitiveLineLoop:
		return vk.PrimitiveTopologyLineStrip, true
	case PrimitiveTriangleList, PrimitiveRectangleList:
		return vk.PrimitiveTopologyTriangleList, true
	case PrimitiveTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip, true
	case PrimitiveTriangleFan:
		return vk.PrimitiveTopologyTriangleFan, true
	case PrimitiveQuadList:
		return vk.PrimitiveTopologyLineListWithAdjacency, true
	}
	return 0, false
}

var fillModes = [3]vk.PolygonMode{vk.PolygonModePoint, vk.PolygonModeLine, vk.PolygonModeFill}

// DecodeRasterization unpacks PA_SU_SC_MODE_CNTL. Rectangle lists are never
// culled.
func DecodeRasterization(modeCntl uint32, prim PrimitiveType) (RasterizationState, error) {
	s := RasterizationState{PolygonMode: vk.PolygonModeFill, LineWidth: 1}
	if (modeCntl>>3)&0x3 != 0 {
		front := (modeCntl >> 5) & 0x7
		back := (modeCntl >> 8) & 0x7
		if front != back {
			return s, errors.Errorf("front (%d) and back (%d) polygon modes differ", front, back)
		}
		if int(front) >= len(fillModes) {
			return s, errors.Errorf("polygon mode %d out of range", front)
		}
		s.PolygonMode = fillModes[front]
	}
	switch modeCntl & 0x3 {
	case 0:
		s.CullMode = vk.CullModeNone
	case 1:
		s.CullMode = vk.CullModeFrontBit
	case 2:
		s.CullMode = vk.CullModeBackBit
	default:
		return s, errors.New("cull mode 3 is not valid")
	}
	if modeCntl&0x4 != 0 {
		s.FrontFace = vk.FrontFaceClockwise
	} else {
		s.FrontFace = vk.FrontFaceCounterClockwise
	}
	if prim == PrimitiveRectangleList {
		s.CullMode = vk.CullModeNone
	}
	return s, nil
}

// isLineMode reports whether polygons are drawn as wireframe.
func isLineMode(modeCntl uint32) bool {
	return (modeCntl>>3)&0x3 != 0 && (modeCntl>>5)&0x7 == 1
}
