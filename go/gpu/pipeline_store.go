package gpu

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	pipelineBlobMagic   = "XPCB"
	pipelineBlobVersion = 1
	pipelineBlobFile    = "pipeline_cache.bin"
	pipelineHeaderSize  = 48
)

// PipelineBlobHeader precedes the snappy-compressed driver cache data. The
// blob is only reused on the exact device and driver that wrote it.
type PipelineBlobHeader struct {
	Magic         string `struc:"[4]byte"`
	Version       uint32
	VendorID      uint32
	DeviceID      uint32
	DriverVersion uint32
	UUID          []byte `struc:"[16]byte"`
	// uncompressed size and XXH64 of the data
	DataSize uint32
	Hash     uint64
}

func init() {
	size, err := struc.Sizeof(&PipelineBlobHeader{UUID: make([]byte, 16)})
	if err != nil || size != pipelineHeaderSize {
		panic(fmt.Sprintf("pipeline blob header is %d bytes, want %d (%v)", size, pipelineHeaderSize, err))
	}
}

func (h *PipelineBlobHeader) matches(id DeviceIdentity) bool {
	return h.VendorID == id.VendorID && h.DeviceID == id.DeviceID &&
		h.DriverVersion == id.DriverVersion && bytes.Equal(h.UUID, id.CacheUUID[:])
}

// WritePipelineBlob writes data tagged with the device identity.
func WritePipelineBlob(w io.Writer, id DeviceIdentity, data []byte) error {
	header := &PipelineBlobHeader{
		Magic:         pipelineBlobMagic,
		Version:       pipelineBlobVersion,
		VendorID:      id.VendorID,
		DeviceID:      id.DeviceID,
		DriverVersion: id.DriverVersion,
		UUID:          append([]byte(nil), id.CacheUUID[:]...),
		DataSize:      uint32(len(data)),
		Hash:          xxhash.Sum64(data),
	}
	if err := struc.Pack(w, header); err != nil {
		return errors.Wrap(err, "failed to pack header")
	}
	zw := snappy.NewBufferedWriter(w)
	if _, err := zw.Write(data); err != nil {
		return errors.Wrap(err, "failed to write pipeline data")
	}
	return zw.Close()
}

// ReadPipelineBlob returns the cache data if the blob was written by the same
// device and is intact.
func ReadPipelineBlob(r io.Reader, id DeviceIdentity) ([]byte, error) {
	var header PipelineBlobHeader
	if err := struc.Unpack(r, &header); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if header.Magic != pipelineBlobMagic {
		return nil, errors.Errorf("bad magic %q", header.Magic)
	}
	if header.Version != pipelineBlobVersion {
		return nil, errors.Errorf("unsupported version %d", header.Version)
	}
	if !header.matches(id) {
		return nil, errors.New("pipeline cache was written by a different device or driver")
	}
	data := make([]byte, header.DataSize)
	if _, err := io.ReadFull(snappy.NewReader(r), data); err != nil {
		return nil, errors.Wrap(err, "failed to read pipeline data")
	}
	if xxhash.Sum64(data) != header.Hash {
		return nil, errors.New("pipeline cache data is corrupt")
	}
	return data, nil
}

func (c *PipelineCache) loadPipelineBlob(dir string) {
	f, err := os.Open(filepath.Join(dir, pipelineBlobFile))
	if os.IsNotExist(err) {
		return
	} else if err != nil {
		c.log.Printf("pipeline cache load error: %v", err)
		return
	}
	defer f.Close()
	data, err := ReadPipelineBlob(f, c.dev.Identity())
	if err != nil {
		c.log.Printf("ignoring pipeline cache: %v", err)
		return
	}
	if err := c.dev.LoadPipelineCacheData(data); err != nil {
		c.log.Printf("pipeline cache load error: %v", err)
	}
}

func (c *PipelineCache) savePipelineBlob(dir string) error {
	data, err := c.dev.PipelineCacheData()
	if err != nil {
		return errors.Wrap(err, "reading pipeline cache")
	}
	if len(data) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.WithStack(err)
	}
	path := filepath.Join(dir, pipelineBlobFile)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := WritePipelineBlob(f, c.dev.Identity(), data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp, path))
}
