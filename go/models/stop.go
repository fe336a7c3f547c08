package models

import "fmt"

type StopReason int

const (
	StopEntry StopReason = iota
	StopStep
	StopBreakpoint
	StopExit
)

func (r StopReason) String() string {
	switch r {
	case StopEntry:
		return "entry"
	case StopStep:
		return "step"
	case StopBreakpoint:
		return "breakpoint"
	case StopExit:
		return "exit"
	}
	return fmt.Sprintf("StopReason(%d)", int(r))
}

type Stop struct {
	Reason     StopReason
	PC         uint64
	Breakpoint *Breakpoint
	// rax when the program returned
	Result uint64
}

func (s *Stop) String() string {
	switch s.Reason {
	case StopExit:
		return fmt.Sprintf("exited: rax=0x%x", s.Result)
	case StopBreakpoint:
		if s.Breakpoint != nil {
			return fmt.Sprintf("breakpoint %s at 0x%x", s.Breakpoint, s.PC)
		}
	}
	return fmt.Sprintf("%s at 0x%x", s.Reason, s.PC)
}
