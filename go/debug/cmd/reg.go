package cmd

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ST3ALth/xenia/go/models"
)

var strEqNumRe = regexp.MustCompile(`^([a-zA-Z0-9]+)=((-|0|0x|0b)?[0-9a-fA-F]+)$`)

func parseRegValue(s string) (uint64, error) {
	if s[0] == '-' {
		n, err := strconv.ParseInt(s, 0, 64)
		return uint64(n), err
	}
	return strconv.ParseUint(s, 0, 64)
}

var RegCmd = cmd(&Command{
	Name: "reg",
	Desc: "Read/write regs: reg [name[=value]...]",
	Run: func(c *Context, args ...string) error {
		ctx, err := c.T.Context()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			for i, name := range models.HostRegNames {
				c.Printf("%6s 0x%016x\n", name, ctx.Reg(i))
			}
			return nil
		}
		for _, v := range args {
			reg := v
			match := strEqNumRe.FindStringSubmatch(v)
			if len(match) > 0 {
				reg = match[1]
			}
			enum, ok := models.HostRegByName(reg)
			if !ok {
				if strings.Contains(v, "=") && len(match) == 0 {
					c.Printf("invalid assignment: %s\n", v)
				} else {
					c.Printf("reg %s not found\n", reg)
				}
				continue
			}
			if len(match) == 0 {
				c.Printf("%s 0x%x\n", models.HostRegNames[enum], ctx.Reg(enum))
				continue
			}
			val, err := parseRegValue(match[2])
			if err != nil {
				c.Printf("error parsing %s value: %v\n", reg, err)
				continue
			}
			if err := c.T.SetReg(enum, val); err != nil {
				c.Printf("%s: %v\n", v, err)
			}
		}
		return nil
	},
})
