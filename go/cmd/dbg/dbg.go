package dbg

import (
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/cmd"
	"github.com/ST3ALth/xenia/go/cpu"
	"github.com/ST3ALth/xenia/go/debug"
	"github.com/ST3ALth/xenia/go/ui"
)

func Main(args []string) int {
	c := cmd.NewCmd("dbg")
	c.Args = "[code.bin]"
	var base *uint64
	var asm, breaks *string
	var arg0, arg1 *uint64
	var listen, connect *int
	c.SetupFlags = func() error {
		base = c.Flags.Uint64("base", debug.DefaultGuestBase, "guest address of the first instruction")
		asm = c.Flags.String("asm", "", "assemble code from this string instead of reading a file")
		breaks = c.Flags.String("break", "", "comma separated breakpoints to install before starting")
		arg0 = c.Flags.Uint64("arg0", 0, "first argument (rdx into the thunk, rcx in guest code)")
		arg1 = c.Flags.Uint64("arg1", 0, "second argument")
		listen = c.Flags.Int("listen", -1, "serve the debugger on localhost:<port>")
		connect = c.Flags.Int("connect", -1, "connect to a remote debugger on localhost:<port>")
		return nil
	}
	c.Main = func(args []string) error {
		if *connect > 0 {
			return debug.RunClient(net.JoinHostPort("localhost", strconv.Itoa(*connect)))
		}
		code, err := loadCode(*asm, *base, args)
		if err != nil {
			return err
		}
		d, err := debug.NewDebugger(c.Config)
		if err != nil {
			return err
		}
		defer d.Close()
		if _, err := d.Load(code, uint32(*base), *arg0, *arg1); err != nil {
			return err
		}
		for _, desc := range splitList(*breaks) {
			if _, err := d.Break(desc); err != nil {
				return errors.Wrapf(err, "breakpoint %q", desc)
			}
		}
		if *listen > 0 {
			conn, err := debug.Accept("localhost", strconv.Itoa(*listen))
			if err != nil {
				return errors.Wrapf(err, "error accepting conn on port %d", *listen)
			}
			d.Serve(conn)
			return nil
		}
		repl, err := ui.NewRepl(d, c.Config.Color)
		if err != nil {
			return err
		}
		repl.Guest = d.GuestAddress
		return repl.Run()
	}
	return c.Run(args)
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' })
}

func loadCode(asm string, base uint64, args []string) ([]byte, error) {
	if asm != "" {
		ks, err := cpu.NewKeystone()
		if err != nil {
			return nil, err
		}
		defer ks.Close()
		return ks.Asm(asm, base)
	}
	if len(args) != 1 {
		return nil, errors.New("need a code file or -asm")
	}
	return os.ReadFile(args[0])
}

func init() { cmd.Register("dbg", "step raw x86-64 through the JIT thunks", Main) }
