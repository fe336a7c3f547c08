package cmd

import (
	"fmt"
	"io"

	"github.com/ST3ALth/xenia/go/models"
)

// Target is the debuggee a session drives.
type Target interface {
	Break(desc string) (*models.Breakpoint, error)
	Delete(i int) error
	Breakpoints() []*models.Breakpoint

	Step() (*models.Stop, error)
	Continue() (*models.Stop, error)
	Restart() error
	Status(color bool) (string, error)

	Context() (*models.HostContext, error)
	SetReg(enum int, val uint64) error
	MemRead(addr, size uint64) ([]byte, error)
	MemWrite(addr uint64, p []byte) error
	Disassemble(addr, size uint64) ([]models.Ins, error)
	Assemble(asm string, addr uint64) ([]byte, error)
	PC() uint64
}

type Context struct {
	io.ReadWriter
	T     Target
	Color bool
}

func (c *Context) Printf(format string, a ...interface{}) (n int, err error) {
	return fmt.Fprintf(c, format, a...)
}
