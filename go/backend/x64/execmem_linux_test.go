//go:build linux && amd64

package x64

import (
	"bytes"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/ST3ALth/xenia/go/exception"
	"github.com/ST3ALth/xenia/go/models"
)

func TestNativeMemory(t *testing.T) {
	m := NewNativeMemory()
	defer m.Close()
	const base = 0x3f000000
	if err := m.MemMapProt(base, 0x2000, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		t.Skipf("cannot map fixed address: %v", err)
	}
	if err := m.MemWrite(base+0xffe, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	p, err := m.MemRead(base+0xffe, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p, []byte{1, 2, 3, 4}) {
		t.Errorf("read back % x", p)
	}
	if err := m.StoreUint32(base+0x100, 0xA0001000); err != nil {
		t.Fatal(err)
	}
	if p, _ := m.MemRead(base+0x100, 4); !bytes.Equal(p, []byte{0x00, 0x10, 0x00, 0xa0}) {
		t.Errorf("atomic store wrote % x", p)
	}
	if err := m.StoreUint32(base+0x101, 0); err == nil {
		t.Error("expected error for unaligned store")
	}
	if _, err := m.MemRead(base+0x1ffe, 4); err == nil {
		t.Error("expected error reading past the mapping")
	}
	if err := m.MemMapProt(base, 0x1000, unix.PROT_READ); err == nil {
		t.Error("expected error mapping over an existing region")
	}
}

func TestNativeBackendInitialize(t *testing.T) {
	mem := NewNativeMemory()
	defer mem.Close()
	b := New(&models.Config{}, mem, nil, 0x7f000000)
	b.Dispatcher = exception.NewDispatcher()
	if err := b.Initialize(); err != nil {
		t.Skipf("cannot map the code cache natively: %v", err)
	}
	defer b.Shutdown()
	e := &ThunkEmitter{Resolver: 0x7f000000}
	for _, kind := range ThunkKinds {
		want, err := e.Emit(kind)
		if err != nil {
			t.Fatal(err)
		}
		got, err := b.ThunkCode(kind)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s thunk in native memory differs:\n% x\n% x", kind, got, want)
		}
	}
	entry, err := b.CodeCache().Indirection(SpecialIndirectionLow)
	if err != nil {
		t.Fatal(err)
	}
	if uint64(entry) != b.Thunk(ResolveFunction) {
		t.Errorf("special indirection = 0x%x, want resolve thunk 0x%x", entry, b.Thunk(ResolveFunction))
	}
	if b.Dispatcher.Len() != 1 {
		t.Errorf("backend registered %d handlers", b.Dispatcher.Len())
	}
}
