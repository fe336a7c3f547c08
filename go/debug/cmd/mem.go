package cmd

import (
	"encoding/hex"
	"strconv"

	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/models"
)

func parseAddr(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 0, 64)
	return n, errors.Wrapf(err, "bad address %q", s)
}

var MemCmd = cmd(&Command{
	Name: "mem",
	Desc: "Read/write memory: mem <addr> <size> | mem <addr> =<hex>",
	Run: func(c *Context, args ...string) error {
		if len(args) != 2 {
			return errors.New("usage: mem <addr> <size> | mem <addr> =<hex>")
		}
		addr, err := parseAddr(args[0])
		if err != nil {
			return err
		}
		if args[1] != "" && args[1][0] == '=' {
			p, err := hex.DecodeString(args[1][1:])
			if err != nil {
				return errors.Wrap(err, "bad hex")
			}
			return c.T.MemWrite(addr, p)
		}
		size, err := strconv.ParseUint(args[1], 0, 64)
		if err != nil {
			return errors.Wrapf(err, "bad size %q", args[1])
		}
		mem, err := c.T.MemRead(addr, size)
		if err != nil {
			return err
		}
		for _, line := range models.HexDump(addr, mem) {
			c.Printf("  %s\n", line)
		}
		return nil
	},
})
