package thunks

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/backend/x64"
	"github.com/ST3ALth/xenia/go/cmd"
	"github.com/ST3ALth/xenia/go/cpu"
	"github.com/ST3ALth/xenia/go/models"
)

func Main(args []string) int {
	c := cmd.NewCmd("thunks")
	c.Args = "[kind...]"
	var addr, resolver *uint64
	var showBytes, native *bool
	c.SetupFlags = func() error {
		addr = c.Flags.Uint64("addr", 0, "address to disassemble each thunk at")
		resolver = c.Flags.Uint64("resolver", 0x7f000000, "native resolve routine address baked into the resolve thunk")
		showBytes = c.Flags.Bool("bytes", true, "show instruction bytes")
		native = c.Flags.Bool("native", false, "place the thunks in real executable memory through the backend and list them from there")
		return nil
	}
	c.Main = func(args []string) error {
		kinds := x64.ThunkKinds
		if len(args) > 0 {
			kinds = nil
			for _, name := range args {
				kind, ok := thunkByName(name)
				if !ok {
					return errors.Errorf("unknown thunk %q", name)
				}
				kinds = append(kinds, kind)
			}
		}
		var dis cpu.Capstr
		emit := func(kind x64.ThunkKind) ([]byte, uint64, error) {
			e := &x64.ThunkEmitter{SaveXmm: c.Config.SaveVectorRegisters, Resolver: *resolver}
			code, err := e.Emit(kind)
			return code, *addr, err
		}
		if *native {
			mem := x64.NewNativeMemory()
			defer mem.Close()
			b := x64.New(c.Config, mem, nil, *resolver)
			if err := b.Initialize(); err != nil {
				return errors.Wrap(err, "failed to initialize native backend")
			}
			defer b.Shutdown()
			emit = func(kind x64.ThunkKind) ([]byte, uint64, error) {
				code, err := b.ThunkCode(kind)
				return code, b.Thunk(kind), err
			}
		}
		for _, kind := range kinds {
			code, base, err := emit(kind)
			if err != nil {
				return errors.Wrapf(err, "failed to emit %s thunk", kind)
			}
			listing, err := dis.Dis(code, base)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s (%d bytes at 0x%x):\n", kind, len(code), base)
			for _, ins := range listing {
				fmt.Fprintf(os.Stdout, "  0x%x: %s\n", ins.Addr(), models.InsString(ins, *showBytes))
			}
		}
		return nil
	}
	return c.Run(args)
}

func thunkByName(name string) (x64.ThunkKind, bool) {
	for _, kind := range x64.ThunkKinds {
		if kind.String() == name {
			return kind, true
		}
	}
	return 0, false
}

func init() { cmd.Register("thunks", "emit and disassemble the host/guest thunks", Main) }
