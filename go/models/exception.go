package models

import "fmt"

type ExceptionCode int

const (
	ExceptionUnknown ExceptionCode = iota
	ExceptionIllegalInstruction
	ExceptionAccessViolation
)

func (c ExceptionCode) String() string {
	switch c {
	case ExceptionIllegalInstruction:
		return "illegal instruction"
	case ExceptionAccessViolation:
		return "access violation"
	}
	return "unknown exception"
}

// Exception is only valid for the duration of the handler it is passed to.
type Exception struct {
	Code         ExceptionCode
	PC           uint64
	FaultAddress uint64
	Context      *HostContext
	Thread       *ThreadDebugInfo
}

func (e *Exception) String() string {
	return fmt.Sprintf("%s at %#x", e.Code, e.PC)
}
