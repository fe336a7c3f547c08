package models

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

var breakRe = regexp.MustCompile(`^(?:(?P<kind>g|guest|h|host):)?(?P<addr>0x[0-9a-fA-F]+|\d+)$`)

var BreakpointParseErr = fmt.Errorf("breakpoint parse failed")

type AddressType int

const (
	HostAddress AddressType = iota
	GuestAddress
)

// GuestFunction is one compiled copy of a guest function.
type GuestFunction interface {
	GuestAddress() uint32
	// MapGuestToHost returns the host address of the code emitted for a guest
	// instruction, or 0 if the address has no mapping in this copy.
	MapGuestToHost(guest uint32) uint64
}

// Trap is one installed illegal-instruction patch.
type Trap struct {
	Addr uint64
	Orig uint16
}

type Breakpoint struct {
	Type      AddressType
	HostAddr  uint64
	GuestAddr uint32

	traps []Trap
}

func NewHostBreakpoint(addr uint64) *Breakpoint {
	return &Breakpoint{Type: HostAddress, HostAddr: addr}
}

func NewGuestBreakpoint(addr uint32) *Breakpoint {
	return &Breakpoint{Type: GuestAddress, GuestAddr: addr}
}

// desc is 0xADDR (host), h:0xADDR or g:0xADDR / guest:0xADDR
func NewBreakpoint(desc string) (*Breakpoint, error) {
	r := breakRe.FindStringSubmatch(desc)
	if len(r) == 0 {
		return nil, errors.WithStack(BreakpointParseErr)
	}
	kind, addrG := r[1], r[2]
	if kind == "g" || kind == "guest" {
		addr, err := strconv.ParseUint(addrG, 0, 32)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse guest address")
		}
		return NewGuestBreakpoint(uint32(addr)), nil
	}
	addr, err := strconv.ParseUint(addrG, 0, 64)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse int")
	}
	return NewHostBreakpoint(addr), nil
}

func (b *Breakpoint) String() string {
	if b.Type == GuestAddress {
		return fmt.Sprintf("guest:%#08x", b.GuestAddr)
	}
	return fmt.Sprintf("%#x", b.HostAddr)
}

func (b *Breakpoint) AddTrap(addr uint64, orig uint16) {
	b.traps = append(b.traps, Trap{addr, orig})
}

func (b *Breakpoint) Traps() []Trap {
	return b.traps
}

func (b *Breakpoint) ClearTraps() {
	b.traps = nil
}

// TruncateTraps forgets every trap after the first n.
func (b *Breakpoint) TruncateTraps(n int) {
	if n < len(b.traps) {
		b.traps = b.traps[:n]
	}
}

func (b *Breakpoint) Installed() bool {
	return len(b.traps) > 0
}

func (b *Breakpoint) ContainsHostAddress(addr uint64) bool {
	for _, t := range b.traps {
		if t.Addr == addr {
			return true
		}
	}
	return false
}
