//go:build !(linux && amd64)

package x64

import (
	"github.com/pkg/errors"
)

var errNoNativeMemory = errors.New("native executable memory requires linux/amd64")

// NativeMemory is unavailable on this platform; use the emulated host.
type NativeMemory struct{}

func NewNativeMemory() *NativeMemory { return &NativeMemory{} }

func (m *NativeMemory) MemMapProt(addr, size uint64, prot int) error { return errNoNativeMemory }
func (m *NativeMemory) MemProt(addr, size uint64, prot int) error    { return errNoNativeMemory }
func (m *NativeMemory) MemReadInto(p []byte, addr uint64) error      { return errNoNativeMemory }
func (m *NativeMemory) MemRead(addr, size uint64) ([]byte, error)    { return nil, errNoNativeMemory }
func (m *NativeMemory) MemWrite(addr uint64, p []byte) error         { return errNoNativeMemory }
func (m *NativeMemory) Close() error                                 { return nil }
