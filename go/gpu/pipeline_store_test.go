package gpu

import (
	"bytes"
	"testing"

	"github.com/lunixbochs/struc"
)

func TestPipelineBlobHeaderSize(t *testing.T) {
	size, err := struc.Sizeof(&PipelineBlobHeader{UUID: make([]byte, 16)})
	if err != nil {
		t.Fatal(err)
	}
	if size != pipelineHeaderSize {
		t.Fatalf("header is %d bytes", size)
	}
}

func TestPipelineBlob(t *testing.T) {
	id := DeviceIdentity{VendorID: 0x10DE, DeviceID: 0x1B80, DriverVersion: 42}
	copy(id.CacheUUID[:], "0123456789abcdef")
	data := bytes.Repeat([]byte("pipeline cache "), 100)

	var buf bytes.Buffer
	if err := WritePipelineBlob(&buf, id, data); err != nil {
		t.Fatal(err)
	}
	blob := buf.Bytes()
	if string(blob[:4]) != "XPCB" {
		t.Fatalf("magic = %q", blob[:4])
	}

	got, err := ReadPipelineBlob(bytes.NewReader(blob), id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("data mismatch")
	}

	mutate := []struct {
		name string
		id   func(DeviceIdentity) DeviceIdentity
		blob func([]byte) []byte
	}{
		{"vendor", func(d DeviceIdentity) DeviceIdentity { d.VendorID++; return d }, nil},
		{"device", func(d DeviceIdentity) DeviceIdentity { d.DeviceID++; return d }, nil},
		{"driver", func(d DeviceIdentity) DeviceIdentity { d.DriverVersion++; return d }, nil},
		{"uuid", func(d DeviceIdentity) DeviceIdentity { d.CacheUUID[15] ^= 1; return d }, nil},
		{"magic", nil, func(b []byte) []byte { b[0] = 'Y'; return b }},
		{"version", nil, func(b []byte) []byte { b[4] = 9; return b }},
		{"size", nil, func(b []byte) []byte { b[36]++; return b }},
		{"truncated", nil, func(b []byte) []byte { return b[:pipelineHeaderSize+4] }},
	}
	for _, m := range mutate {
		t.Run(m.name, func(t *testing.T) {
			rid := id
			if m.id != nil {
				rid = m.id(id)
			}
			b := append([]byte(nil), blob...)
			if m.blob != nil {
				b = m.blob(b)
			}
			if _, err := ReadPipelineBlob(bytes.NewReader(b), rid); err == nil {
				t.Error("blob accepted")
			}
		})
	}
}
