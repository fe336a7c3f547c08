package gpu

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// UpdateStatus is the result of refreshing one category of pipeline state.
type UpdateStatus int

const (
	// nothing changed, the last pipeline is still usable
	UpdateCompatible UpdateStatus = iota
	// state changed and was rebuilt
	UpdateMismatch
	// the registers describe something we cannot build
	UpdateError
)

func (s UpdateStatus) String() string {
	switch s {
	case UpdateCompatible:
		return "compatible"
	case UpdateMismatch:
		return "mismatch"
	case UpdateError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Category is one independently tracked slice of pipeline state. The order
// of the constants is the order states are updated and hashed in.
type Category int

const (
	CategoryShaderStages Category = iota
	CategoryVertexInput
	CategoryInputAssembly
	CategoryViewport
	CategoryRasterization
	CategoryMultisample
	CategoryDepthStencil
	CategoryColorBlend
	CategoryCount
)

var categoryNames = [CategoryCount]string{
	"shader stages",
	"vertex input state",
	"input assembly state",
	"viewport state",
	"rasterization state",
	"multisample state",
	"depth/stencil state",
	"color blend state",
}

func (c Category) String() string {
	if c >= 0 && c < CategoryCount {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// stateHasher folds state into the running pipeline key.
type stateHasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newStateHasher() *stateHasher {
	return &stateHasher{d: xxhash.New()}
}

func (h *stateHasher) Reset() { h.d.Reset() }

func (h *stateHasher) Sum64() uint64 { return h.d.Sum64() }

func (h *stateHasher) u32(vals ...uint32) {
	for _, v := range vals {
		binary.LittleEndian.PutUint32(h.buf[:4], v)
		h.d.Write(h.buf[:4])
	}
}

func (h *stateHasher) u64(vals ...uint64) {
	for _, v := range vals {
		binary.LittleEndian.PutUint64(h.buf[:], v)
		h.d.Write(h.buf[:])
	}
}

// stateUpdate refreshes one category: it compares the registers against the
// shadows, rebuilds the state if needed and folds the shadows into h.
type stateUpdate struct {
	category Category
	update   func(h *stateHasher) UpdateStatus
}

// runUpdates runs every update in order. The first error stops the pass and
// is returned with its category; otherwise the result is mismatch if any
// category mismatched. statuses receives each category's result.
func runUpdates(h *stateHasher, updates []stateUpdate, statuses *[CategoryCount]UpdateStatus) (UpdateStatus, Category) {
	h.Reset()
	mismatch := false
	for _, u := range updates {
		status := u.update(h)
		statuses[u.category] = status
		switch status {
		case UpdateError:
			return UpdateError, u.category
		case UpdateMismatch:
			mismatch = true
		}
	}
	if mismatch {
		return UpdateMismatch, CategoryCount
	}
	return UpdateCompatible, CategoryCount
}
