package gpu

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const spirvMagic = 0x07230203

// PassthroughTranslator wraps the microcode in a SPIR-V magic word instead of
// translating it. It lets traces replay against a NullDevice.
type PassthroughTranslator struct{}

func (PassthroughTranslator) Translate(s *Shader) error {
	if len(s.Data) == 0 {
		return errors.New("empty microcode")
	}
	bin := make([]byte, 4, 4+len(s.Data)*4)
	binary.LittleEndian.PutUint32(bin, spirvMagic)
	s.Binary = append(bin, s.Microcode()...)
	var dis strings.Builder
	for i, w := range s.Data {
		fmt.Fprintf(&dis, "%04x: %08x\n", i, w)
	}
	s.Disassembly = dis.String()
	return nil
}

// StandInTranslator hands every shader of a stage the same precompiled
// SPIR-V module, so traces can replay on a real device without a microcode
// translator.
type StandInTranslator struct {
	Vertex, Pixel []byte
}

// LoadStandInShaders reads vertex.spv and pixel.spv from dir.
func LoadStandInShaders(dir string) (*StandInTranslator, error) {
	vs, err := os.ReadFile(filepath.Join(dir, "vertex.spv"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read stand-in vertex shader")
	}
	ps, err := os.ReadFile(filepath.Join(dir, "pixel.spv"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read stand-in pixel shader")
	}
	return &StandInTranslator{Vertex: vs, Pixel: ps}, nil
}

func (t *StandInTranslator) Translate(s *Shader) error {
	code := t.Pixel
	if s.Type == ShaderVertex {
		code = t.Vertex
	}
	if len(code) < 4 || binary.LittleEndian.Uint32(code) != spirvMagic {
		return errors.Errorf("no SPIR-V stand-in for %s shaders", s.Type)
	}
	s.Binary = append([]byte(nil), code...)
	s.Disassembly = fmt.Sprintf("stand-in for %d microcode words\n", len(s.Data))
	return nil
}

type ReplayStats struct {
	Ops        uint64
	Draws      uint64
	Failed     uint64
	Pipelines  PipelineStats
	Mismatches [CategoryCount]uint64
}

func (s *ReplayStats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ops=%d draws=%d failed=%d\n", s.Ops, s.Draws, s.Failed)
	fmt.Fprintf(&b, "pipelines: %s\n", s.Pipelines)
	for c := Category(0); c < CategoryCount; c++ {
		fmt.Fprintf(&b, "  %-22s %d\n", c.String()+":", s.Mismatches[c])
	}
	return b.String()
}

// Replayer feeds trace ops into a register file and the caches.
type Replayer struct {
	Regs      *RegisterFile
	Shaders   *ShaderCache
	Pipelines *PipelineCache
	Cmd       CommandRecorder
	// RenderPass, when set, replaces the pass recorded with each draw.
	RenderPass RenderPass
	Stats      ReplayStats

	vs, ps *Shader
}

func (r *Replayer) Apply(op TraceOp) error {
	r.Stats.Ops++
	switch o := op.(type) {
	case *OpNop, *OpEnd:
	case *OpReg:
		if o.Reg >= RegisterCount {
			return errors.Errorf("register index 0x%X out of range", uint32(o.Reg))
		}
		r.Regs.SetU32(o.Reg, o.Val)
	case *OpShader:
		s := r.Shaders.LoadShader(o.Type, o.Addr, o.Words)
		if o.Type == ShaderVertex {
			r.vs = s
		} else {
			r.ps = s
		}
	case *OpDraw:
		r.Stats.Draws++
		pass := o.RenderPass
		if r.RenderPass != 0 {
			pass = r.RenderPass
		}
		err := r.Pipelines.ConfigurePipeline(r.Cmd, RenderState{RenderPass: pass}, r.vs, r.ps, o.Prim)
		if err != nil {
			r.Stats.Failed++
			r.Pipelines.Config.Debugf("draw %d skipped: %v", r.Stats.Draws, err)
			break
		}
		for c, status := range r.Pipelines.Statuses() {
			if status == UpdateMismatch {
				r.Stats.Mismatches[c]++
			}
		}
	default:
		return errors.Errorf("unhandled trace op %T", op)
	}
	r.Stats.Pipelines = r.Pipelines.Stats
	return nil
}

// Replay applies every op from t.
func (r *Replayer) Replay(t *TraceReader) error {
	for {
		op, err := t.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if err := r.Apply(op); err != nil {
			return err
		}
	}
}
