package gpu

import (
	"encoding/binary"
	"io"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

var order = binary.LittleEndian

const TRACE_MAGIC = "XGRT"

const (
	OP_NOP    = 0
	OP_REG    = 1
	OP_SHADER = 2
	OP_DRAW   = 3
	OP_END    = 4
)

// TraceOp is one record of a register trace.
type TraceOp interface {
	Sizeof() int
	Pack(p []byte)
	Unpack(r io.Reader) (int, error)
}

type TraceHeader struct {
	Magic   string `struc:"[4]byte"`
	Version uint32
}

type OpNop struct{}

func (o *OpNop) Sizeof() int                     { return 1 }
func (o *OpNop) Pack(p []byte)                   { p[0] = OP_NOP }
func (o *OpNop) Unpack(r io.Reader) (int, error) { return 0, nil }

type OpEnd struct{ OpNop }

func (o *OpEnd) Pack(p []byte) { p[0] = OP_END }

// OpReg is a register write.
type OpReg struct {
	Reg Register
	Val uint32
}

func (o *OpReg) Sizeof() int { return 1 + 4 + 4 }
func (o *OpReg) Pack(p []byte) {
	p[0] = OP_REG
	order.PutUint32(p[1:], uint32(o.Reg))
	order.PutUint32(p[5:], o.Val)
}

func (o *OpReg) Unpack(r io.Reader) (int, error) {
	var tmp [4 + 4]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Reg = Register(order.Uint32(tmp[:]))
		o.Val = order.Uint32(tmp[4:])
	}
	return n, err
}

// OpShader binds microcode to a shader stage.
type OpShader struct {
	Type  ShaderType
	Addr  uint32
	Words []uint32
}

func (o *OpShader) Sizeof() int { return 1 + 1 + 4 + 4 + len(o.Words)*4 }
func (o *OpShader) Pack(p []byte) {
	p[0] = OP_SHADER
	p[1] = uint8(o.Type)
	order.PutUint32(p[2:], o.Addr)
	order.PutUint32(p[6:], uint32(len(o.Words)))
	for i, w := range o.Words {
		order.PutUint32(p[10+i*4:], w)
	}
}

func (o *OpShader) Unpack(r io.Reader) (int, error) {
	var tmp [1 + 4 + 4]byte
	total, err := io.ReadFull(r, tmp[:])
	if err != nil {
		return total, err
	}
	o.Type = ShaderType(tmp[0])
	o.Addr = order.Uint32(tmp[1:])
	count := order.Uint32(tmp[5:])
	if count > 0x10000 {
		return total, errors.Errorf("shader too large: %d words", count)
	}
	data := make([]byte, count*4)
	n, err := io.ReadFull(r, data)
	total += n
	if err != nil {
		return total, err
	}
	o.Words = make([]uint32, count)
	for i := range o.Words {
		o.Words[i] = order.Uint32(data[i*4:])
	}
	return total, nil
}

// OpDraw issues a draw with the current registers and shaders.
type OpDraw struct {
	Prim       PrimitiveType
	RenderPass RenderPass
}

func (o *OpDraw) Sizeof() int { return 1 + 4 + 8 }
func (o *OpDraw) Pack(p []byte) {
	p[0] = OP_DRAW
	order.PutUint32(p[1:], uint32(o.Prim))
	order.PutUint64(p[5:], uint64(o.RenderPass))
}

func (o *OpDraw) Unpack(r io.Reader) (int, error) {
	var tmp [4 + 8]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Prim = PrimitiveType(order.Uint32(tmp[:]))
		o.RenderPass = RenderPass(order.Uint64(tmp[4:]))
	}
	return n, err
}

func UnpackOp(r io.Reader) (TraceOp, int, error) {
	var tmp [1]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return nil, 0, err
	}
	var op TraceOp
	switch tmp[0] {
	case OP_NOP:
		op = &OpNop{}
	case OP_REG:
		op = &OpReg{}
	case OP_SHADER:
		op = &OpShader{}
	case OP_DRAW:
		op = &OpDraw{}
	case OP_END:
		op = &OpEnd{}
	default:
		return nil, 0, errors.Errorf("Unknown op: %d", tmp[0])
	}
	n, err := op.Unpack(r)
	return op, n + 1, err
}

type TraceWriter struct {
	w  io.Writer
	zw *snappy.Writer
}

func NewTraceWriter(w io.Writer) (*TraceWriter, error) {
	header := &TraceHeader{Magic: TRACE_MAGIC, Version: 1}
	if err := struc.Pack(w, header); err != nil {
		return nil, errors.Wrap(err, "failed to pack header")
	}
	return &TraceWriter{w: w, zw: snappy.NewBufferedWriter(w)}, nil
}

func (t *TraceWriter) Pack(op TraceOp) error {
	buf := make([]byte, op.Sizeof())
	op.Pack(buf)
	_, err := t.zw.Write(buf)
	return err
}

// Close writes an end marker and flushes. The underlying writer is left open.
func (t *TraceWriter) Close() error {
	if err := t.Pack(&OpEnd{}); err != nil {
		return err
	}
	return t.zw.Close()
}

type TraceReader struct {
	zr     *snappy.Reader
	Header TraceHeader
}

func NewTraceReader(r io.Reader) (*TraceReader, error) {
	t := &TraceReader{}
	if err := struc.Unpack(r, &t.Header); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if t.Header.Magic != TRACE_MAGIC {
		return nil, errors.New("invalid trace file magic")
	}
	t.zr = snappy.NewReader(r)
	return t, nil
}

// Next returns io.EOF after the end marker.
func (t *TraceReader) Next() (TraceOp, error) {
	op, _, err := UnpackOp(t.zr)
	if err != nil {
		return nil, err
	}
	if _, ok := op.(*OpEnd); ok {
		return nil, io.EOF
	}
	return op, nil
}
