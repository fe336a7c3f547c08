package models

import (
	"fmt"
	"strings"
)

// x86-64 general purpose registers in ModRM encoding order.
const (
	RAX = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	RIP
	EFLAGS
	HostRegCount
)

var HostRegNames = [HostRegCount]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	"rip", "eflags",
}

func HostRegByName(name string) (int, bool) {
	name = strings.ToLower(name)
	for i, n := range HostRegNames {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// HostContext is a host register snapshot taken at an exception point.
type HostContext struct {
	Rip    uint64
	Eflags uint64
	Gpr    [16]uint64
	Xmm    [16][2]uint64
}

func (c *HostContext) Reg(enum int) uint64 {
	switch {
	case enum < 16:
		return c.Gpr[enum]
	case enum == RIP:
		return c.Rip
	case enum == EFLAGS:
		return c.Eflags
	}
	panic(fmt.Sprintf("bad host register %d", enum))
}

func (c *HostContext) SetReg(enum int, val uint64) {
	switch {
	case enum < 16:
		c.Gpr[enum] = val
	case enum == RIP:
		c.Rip = val
	case enum == EFLAGS:
		c.Eflags = val
	default:
		panic(fmt.Sprintf("bad host register %d", enum))
	}
}

// Changes diffs c against an older snapshot for display.
func (c *HostContext) Changes(old *HostContext) *Changes {
	cs := &Changes{Bsz: 16}
	for i := 0; i < HostRegCount; i++ {
		var prev uint64
		if old != nil {
			prev = old.Reg(i)
		} else {
			prev = c.Reg(i)
		}
		cs.Changes = append(cs.Changes, NewChange(HostRegNames[i], c.Reg(i), prev))
	}
	return cs
}

type ThreadDebugInfo struct {
	ThreadID    uint32
	Name        string
	HostContext HostContext
}
