package cmd

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/ST3ALth/xenia/go/models"
)

// Cmd holds the flags every subcommand shares.
type Cmd struct {
	Config *models.Config
	Flags  *flag.FlagSet

	// Args describes the positional arguments in usage output.
	Args       string
	SetupFlags func() error
	Main       func(args []string) error
	Teardown   func()
}

func NewCmd(name string) *Cmd {
	return &Cmd{Flags: flag.NewFlagSet(name, flag.ExitOnError)}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func (c *Cmd) PrintError(err error) {
	// print an error, and a stacktrace if available
	fmt.Fprintf(os.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	if err, ok := err.(stackTracer); ok {
		// full path, file:line and method for each frame
		var frames [][]string
		for _, f := range err.StackTrace() {
			fullpath := ""
			fileline := fmt.Sprintf("%s:%d", f, f)
			method := fmt.Sprintf("%n", f)

			frame := fmt.Sprintf("%+s", f)
			tmp := strings.SplitN(frame, "\n", 3)
			if len(tmp) == 2 {
				pathsplit := strings.Split(tmp[0], "/")
				method = pathsplit[len(pathsplit)-1]
				fullpath = strings.TrimSpace(tmp[1])
			}
			frames = append(frames, []string{fullpath, fileline, method})
			if method == "main.main" {
				break
			}
		}
		widths := make([]int, 2)
		for _, f := range frames {
			for i := range widths {
				if len(f[i]) > widths[i] {
					widths[i] = len(f[i])
				}
			}
		}
		for _, f := range frames {
			for i := range widths {
				if widths[i] > 0 {
					pad := strings.Repeat(" ", widths[i]-len(f[i]))
					fmt.Fprintf(os.Stderr, "%s%s | ", f[i], pad)
				}
			}
			fmt.Fprintf(os.Stderr, "%s()\n", f[2])
		}
	}
}

// Run parses argv (argv[0] is the command name) and calls Main. It returns
// the process exit code.
func (c *Cmd) Run(argv []string) int {
	fs := c.Flags
	verbose := fs.Bool("v", false, "verbose output")
	outfile := fs.String("o", "", "redirect log output to file (default stderr)")
	nocolor := fs.Bool("nocolor", false, "disable color output")
	xmm := fs.Bool("xmm", false, "save and restore xmm6-xmm15 in the host/guest thunks")
	cacheDir := fs.String("cache", "", "directory for persistent caches (default: per-user cache dir)")
	cpuprofile := fs.String("cpuprofile", "", "write cpu profile to <file>")
	memprofile := fs.String("memprofile", "", "write mem profile to <file>")

	fs.Usage = func() {
		usage := "Usage: %s [options]"
		if c.Args != "" {
			usage += " " + c.Args
		}
		fmt.Fprintf(os.Stderr, usage+"\n\nOptions:\n", argv[0])
		var flags []*flag.Flag
		fs.VisitAll(func(f *flag.Flag) { flags = append(flags, f) })
		models.PrintFlags(os.Stderr, flags)
	}
	if c.SetupFlags != nil {
		if err := c.SetupFlags(); err != nil {
			panic(err)
		}
	}
	fs.Parse(argv[1:])

	config := &models.Config{
		SaveVectorRegisters: *xmm,
		CacheDir:            *cacheDir,
		Verbose:             *verbose,
		Color:               !*nocolor && term.IsTerminal(int(os.Stdout.Fd())),
	}
	if *outfile != "" {
		out, err := os.OpenFile(*outfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			c.PrintError(errors.Wrap(err, "failed to open log file"))
			return 1
		}
		defer out.Close()
		config.Output = out
	}
	c.Config = config.Init()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			c.PrintError(err)
			return 1
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}
	defer func() {
		if *memprofile != "" {
			f, err := os.Create(*memprofile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not write heap profile: %s\n", err)
				return
			}
			pprof.WriteHeapProfile(f)
			f.Close()
		}
		if c.Teardown != nil {
			c.Teardown()
		}
	}()

	if err := c.Main(fs.Args()); err != nil {
		c.PrintError(err)
		return 1
	}
	return 0
}
