package gputrace

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/cmd"
	"github.com/ST3ALth/xenia/go/gpu"
)

func Main(args []string) int {
	c := cmd.NewCmd("gpu-trace")
	c.Args = "<script.txt>"
	var out *string
	c.SetupFlags = func() error {
		out = c.Flags.String("to", "out.xgrt", "trace output file")
		return nil
	}
	c.Main = func(args []string) error {
		var in io.Reader = os.Stdin
		if len(args) > 0 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		f, err := os.Create(*out)
		if err != nil {
			return errors.Wrap(err, "failed to create trace")
		}
		defer f.Close()
		w, err := gpu.NewTraceWriter(f)
		if err != nil {
			return err
		}
		if err := gpu.CompileTraceScript(in, w); err != nil {
			return err
		}
		return w.Close()
	}
	return c.Run(args)
}

func init() { cmd.Register("gpu-trace", "compile a register/draw script into a gpu trace", Main) }
