package x64

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/models"
)

// TrapEncoding is ud2 read as a big-endian uint16.
const TrapEncoding = 0x0F0B

var trapBytes = [2]byte{0x0F, 0x0B}

func (b *Backend) readTrapSlot(addr uint64) (uint16, error) {
	var buf [2]byte
	if err := b.mem.MemReadInto(buf[:], addr); err != nil {
		return 0, errors.Wrapf(err, "reading breakpoint site 0x%x", addr)
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (b *Backend) installTrap(bp *models.Breakpoint, addr uint64) error {
	orig, err := b.readTrapSlot(addr)
	if err != nil {
		return err
	}
	if orig == TrapEncoding {
		panic(fmt.Sprintf("breakpoint trap already installed at 0x%x", addr))
	}
	if err := b.mem.MemWrite(addr, trapBytes[:]); err != nil {
		return errors.Wrapf(err, "writing breakpoint at 0x%x", addr)
	}
	bp.AddTrap(addr, orig)
	return nil
}

// hostAddresses lists every host location a breakpoint covers.
func (b *Backend) hostAddresses(bp *models.Breakpoint) []uint64 {
	if bp.Type == models.HostAddress {
		return []uint64{bp.HostAddr}
	}
	var out []uint64
	for _, fn := range b.cache.FunctionsContaining(bp.GuestAddr) {
		if addr := fn.MapGuestToHost(bp.GuestAddr); addr != 0 {
			out = append(out, addr)
		}
	}
	return out
}

func (b *Backend) track(bp *models.Breakpoint) {
	b.bpMu.Lock()
	defer b.bpMu.Unlock()
	for _, v := range b.breakpoints {
		if v == bp {
			return
		}
	}
	b.breakpoints = append(b.breakpoints, bp)
}

// InstallBreakpoint traps every compiled copy of the breakpoint's address.
// Guest threads must be paused.
func (b *Backend) InstallBreakpoint(bp *models.Breakpoint) error {
	if b.cache == nil {
		return ErrNotInitialized
	}
	addrs := b.hostAddresses(bp)
	if len(addrs) == 0 {
		return errors.Errorf("breakpoint %s has no compiled code", bp)
	}
	installed := len(bp.Traps())
	for _, addr := range addrs {
		if err := b.installTrap(bp, addr); err != nil {
			b.restoreTraps(bp, installed)
			return err
		}
	}
	b.track(bp)
	return nil
}

// restoreTraps puts back the original bytes of every trap after the first n.
func (b *Backend) restoreTraps(bp *models.Breakpoint, n int) {
	for _, t := range bp.Traps()[n:] {
		var orig [2]byte
		binary.BigEndian.PutUint16(orig[:], t.Orig)
		if err := b.mem.MemWrite(t.Addr, orig[:]); err != nil {
			b.log.Printf("failed to roll back breakpoint at 0x%x: %v", t.Addr, err)
		}
	}
	bp.TruncateTraps(n)
}

// InstallBreakpointInFunction traps a guest breakpoint in one compiled copy.
func (b *Backend) InstallBreakpointInFunction(bp *models.Breakpoint, fn models.GuestFunction) error {
	if bp.Type != models.GuestAddress {
		return errors.Errorf("breakpoint %s is not a guest breakpoint", bp)
	}
	addr := fn.MapGuestToHost(bp.GuestAddr)
	if addr == 0 {
		return errors.Errorf("guest 0x%08x has no code in function 0x%08x", bp.GuestAddr, fn.GuestAddress())
	}
	if err := b.installTrap(bp, addr); err != nil {
		return err
	}
	b.track(bp)
	return nil
}

// UninstallBreakpoint restores the original bytes at every trap.
func (b *Backend) UninstallBreakpoint(bp *models.Breakpoint) error {
	for _, t := range bp.Traps() {
		cur, err := b.readTrapSlot(t.Addr)
		if err != nil {
			return err
		}
		if cur != TrapEncoding {
			panic(fmt.Sprintf("breakpoint trap at 0x%x was overwritten (0x%04x)", t.Addr, cur))
		}
		var orig [2]byte
		binary.BigEndian.PutUint16(orig[:], t.Orig)
		if err := b.mem.MemWrite(t.Addr, orig[:]); err != nil {
			return errors.Wrapf(err, "restoring breakpoint at 0x%x", t.Addr)
		}
	}
	bp.ClearTraps()

	b.bpMu.Lock()
	defer b.bpMu.Unlock()
	for i, v := range b.breakpoints {
		if v == bp {
			b.breakpoints = append(b.breakpoints[:i], b.breakpoints[i+1:]...)
			break
		}
	}
	return nil
}

func (b *Backend) Breakpoints() []*models.Breakpoint {
	b.bpMu.Lock()
	defer b.bpMu.Unlock()
	out := make([]*models.Breakpoint, len(b.breakpoints))
	copy(out, b.breakpoints)
	return out
}

// BreakpointAt finds the breakpoint owning a trap address.
func (b *Backend) BreakpointAt(addr uint64) *models.Breakpoint {
	b.bpMu.Lock()
	defer b.bpMu.Unlock()
	for _, bp := range b.breakpoints {
		if bp.ContainsHostAddress(addr) {
			return bp
		}
	}
	return nil
}
