package cmd

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/models"
)

var DisCmd = cmd(&Command{
	Name: "dis",
	Desc: "Disassemble: dis [addr [size]], defaults to the pc.",
	Run: func(c *Context, args ...string) error {
		addr, size := c.T.PC(), uint64(32)
		var err error
		if len(args) > 0 {
			if addr, err = parseAddr(args[0]); err != nil {
				return err
			}
		}
		if len(args) > 1 {
			if size, err = strconv.ParseUint(args[1], 0, 64); err != nil {
				return errors.Wrapf(err, "bad size %q", args[1])
			}
		}
		dis, err := c.T.Disassemble(addr, size)
		if err != nil {
			return err
		}
		pc := c.T.PC()
		for _, ins := range dis {
			mark := "  "
			if ins.Addr() == pc {
				mark = "=>"
			}
			c.Printf("%s 0x%x: %s\n", mark, ins.Addr(), models.InsString(ins, true))
		}
		return nil
	},
})

var AsmCmd = cmd(&Command{
	Name: "asm",
	Desc: "Assemble into memory: asm <addr> <instructions; ...>",
	Run: func(c *Context, args ...string) error {
		if len(args) < 2 {
			return errors.New("usage: asm <addr> <instructions>")
		}
		addr, err := parseAddr(args[0])
		if err != nil {
			return err
		}
		code, err := c.T.Assemble(strings.Join(args[1:], " "), addr)
		if err != nil {
			return err
		}
		c.Printf("0x%x: %s (%d bytes)\n", addr, models.HexBytes(code, 0), len(code))
		return nil
	},
})
