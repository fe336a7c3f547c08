package cmd

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/models"
)

func (c *Context) report(stop *models.Stop, err error) error {
	if err != nil {
		return err
	}
	c.Printf("%s\n", stop)
	if stop.Reason == models.StopExit {
		return nil
	}
	status, err := c.T.Status(c.Color)
	if err != nil {
		return err
	}
	c.Printf("%s\n", status)
	return nil
}

var BreakCmd = cmd(&Command{
	Name: "break",
	Desc: "Set breakpoints: break <0xhost | h:0xhost | g:0xguest>...",
	Run: func(c *Context, args ...string) error {
		if len(args) == 0 {
			return errors.New("usage: break <addr>...")
		}
		for _, desc := range args {
			bp, err := c.T.Break(desc)
			if err != nil {
				c.Printf("%s: %v\n", desc, err)
				continue
			}
			c.Printf("breakpoint %s: %d trap(s)\n", bp, len(bp.Traps()))
		}
		return nil
	},
})

var BpsCmd = cmd(&Command{
	Name: "bps",
	Desc: "List breakpoints.",
	Run: func(c *Context, args ...string) error {
		for i, bp := range c.T.Breakpoints() {
			c.Printf("  #%d %s", i, bp)
			for _, t := range bp.Traps() {
				c.Printf(" 0x%x", t.Addr)
			}
			c.Printf("\n")
		}
		return nil
	},
})

var DeleteCmd = cmd(&Command{
	Name: "delete",
	Desc: "Remove a breakpoint by number: delete <n>",
	Run: func(c *Context, args ...string) error {
		if len(args) != 1 {
			return errors.New("usage: delete <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Wrapf(err, "bad breakpoint number %q", args[0])
		}
		return c.T.Delete(n)
	},
})

var StepCmd = cmd(&Command{
	Name: "step",
	Desc: "Execute one host instruction: step [count]",
	Run: func(c *Context, args ...string) error {
		count := 1
		if len(args) > 0 {
			var err error
			if count, err = strconv.Atoi(args[0]); err != nil || count < 1 {
				return errors.Errorf("bad step count %q", args[0])
			}
		}
		var stop *models.Stop
		var err error
		for i := 0; i < count; i++ {
			stop, err = c.T.Step()
			if err != nil || stop.Reason != models.StopStep {
				break
			}
		}
		return c.report(stop, err)
	},
})

var ContCmd = cmd(&Command{
	Name: "cont",
	Desc: "Continue to the next breakpoint or the end of the program.",
	Run: func(c *Context, args ...string) error {
		return c.report(c.T.Continue())
	},
})

var RestartCmd = cmd(&Command{
	Name: "restart",
	Desc: "Re-enter the loaded code from the thunk.",
	Run: func(c *Context, args ...string) error {
		if err := c.T.Restart(); err != nil {
			return err
		}
		c.Printf("restarted at 0x%x\n", c.T.PC())
		return nil
	},
})

var StatusCmd = cmd(&Command{
	Name: "status",
	Desc: "Show the stop location and changed registers.",
	Run: func(c *Context, args ...string) error {
		status, err := c.T.Status(c.Color)
		if err != nil {
			return err
		}
		c.Printf("%s\n", status)
		return nil
	},
})
