package gpu

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
)

func parseRegister(s string) (Register, error) {
	if r, ok := RegisterByName(strings.ToUpper(s)); ok {
		return r, nil
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil || n >= RegisterCount {
		return 0, errors.Errorf("unknown register %q", s)
	}
	return Register(n), nil
}

func parseU32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	return uint32(n), errors.Wrapf(err, "bad value %q", s)
}

func scriptOp(args []string) (TraceOp, error) {
	need := func(n int) error {
		if len(args) < n {
			return errors.Errorf("%s: need %d arguments", args[0], n-1)
		}
		return nil
	}
	switch args[0] {
	case "reg", "regf":
		if err := need(3); err != nil {
			return nil, err
		}
		reg, err := parseRegister(args[1])
		if err != nil {
			return nil, err
		}
		if args[0] == "regf" {
			f, err := strconv.ParseFloat(args[2], 32)
			if err != nil {
				return nil, errors.Wrapf(err, "bad float %q", args[2])
			}
			return &OpReg{Reg: reg, Val: math.Float32bits(float32(f))}, nil
		}
		val, err := parseU32(args[2])
		if err != nil {
			return nil, err
		}
		return &OpReg{Reg: reg, Val: val}, nil
	case "shader":
		if err := need(4); err != nil {
			return nil, err
		}
		op := &OpShader{}
		switch args[1] {
		case "vs":
			op.Type = ShaderVertex
		case "ps":
			op.Type = ShaderPixel
		default:
			return nil, errors.Errorf("shader type must be vs or ps, got %q", args[1])
		}
		var err error
		if op.Addr, err = parseU32(args[2]); err != nil {
			return nil, err
		}
		for _, w := range args[3:] {
			word, err := parseU32(w)
			if err != nil {
				return nil, err
			}
			op.Words = append(op.Words, word)
		}
		return op, nil
	case "draw":
		if err := need(2); err != nil {
			return nil, err
		}
		prim, ok := PrimitiveByName(args[1])
		if !ok {
			return nil, errors.Errorf("unknown primitive %q", args[1])
		}
		op := &OpDraw{Prim: prim}
		if len(args) > 2 {
			pass, err := strconv.ParseUint(args[2], 0, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "bad render pass %q", args[2])
			}
			op.RenderPass = RenderPass(pass)
		}
		return op, nil
	case "nop":
		return &OpNop{}, nil
	}
	return nil, errors.Errorf("unknown op %q", args[0])
}

// CompileTraceScript turns a text command stream into trace ops:
//
//	reg  <name|index> <value>
//	regf <name|index> <float>
//	shader <vs|ps> <addr> <word>...
//	draw <primitive> [render pass]
//
// Blank lines and lines starting with # are skipped.
func CompileTraceScript(r io.Reader, w *TraceWriter) error {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		args, err := shellwords.Parse(text)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		op, err := scriptOp(args)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		if err := w.Pack(op); err != nil {
			return err
		}
	}
	return scanner.Err()
}
