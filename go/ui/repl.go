// Package ui is the interactive debugger front end.
package ui

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/shibukawa/configdir"

	"github.com/ST3ALth/xenia/go/debug/cmd"
)

type Repl struct {
	ctx *cmd.Context
	rl  *readline.Instance
	// optional guest address lookup for the prompt
	Guest func(pc uint64) (uint32, bool)
}

type rlReadWriter struct {
	io.Reader
	io.Writer
}

func NewRepl(t cmd.Target, color bool) (*Repl, error) {
	configDirs := configdir.New("xenia", "dbg")
	cacheDir := configDirs.QueryCacheFolder()
	historyPath := ""
	if err := cacheDir.MkdirAll(); err == nil {
		historyPath = filepath.Join(cacheDir.Path, "history")
	}
	rl, err := readline.NewEx(&readline.Config{
		InterruptPrompt: "\n",
		HistoryFile:     historyPath,
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, err
	}
	ctx := &cmd.Context{
		ReadWriter: rlReadWriter{rl.Config.Stdin, rl.Stdout()},
		T:          t,
		Color:      color,
	}
	return &Repl{ctx: ctx, rl: rl}, nil
}

func completer() readline.AutoCompleter {
	var items []readline.PrefixCompleterInterface
	for name := range cmd.Commands {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

func (r *Repl) setPrompt() {
	pc := r.ctx.T.PC()
	if r.Guest != nil {
		if guest, ok := r.Guest(pc); ok {
			r.rl.SetPrompt(fmt.Sprintf("%#x [g:%#08x]> ", pc, guest))
			return
		}
	}
	r.rl.SetPrompt(fmt.Sprintf("%#x> ", pc))
}

// Run reads commands until EOF.
func (r *Repl) Run() error {
	defer r.rl.Close()
	for {
		r.setPrompt()
		line, err := r.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if err := cmd.Run(r.ctx, line); err != nil {
			return err
		}
	}
}
