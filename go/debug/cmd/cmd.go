// Package cmd is the debugger command set, shared by the local repl and
// remote sessions.
package cmd

import (
	"fmt"
	"sort"

	"github.com/mattn/go-shellwords"
)

type Command struct {
	Name string
	Desc string
	Run  func(c *Context, args ...string) error
}

var Commands = make(map[string]*Command)

func cmd(c *Command) *Command {
	if c.Run == nil {
		panic(fmt.Sprintf("command %q has no Run func", c.Name))
	}
	Commands[c.Name] = c
	return c
}

// Run parses and executes one command line. Command errors are printed, and
// only a failure to write to the session is returned.
func Run(c *Context, line string) error {
	args, err := shellwords.Parse(line)
	if err != nil {
		_, err = c.Printf("parse error: %v\n", err)
		return err
	}
	if len(args) == 0 {
		return nil
	}
	name, args := args[0], args[1:]
	cmd, ok := Commands[name]
	if !ok {
		_, err = c.Printf("command not found.\n")
		return err
	}
	if err := cmd.Run(c, args...); err != nil {
		_, err = c.Printf("error: %v\n", err)
		return err
	}
	return nil
}

var HelpCmd = cmd(&Command{
	Name: "help",
	Desc: "List commands.",
	Run: func(c *Context, args ...string) error {
		names := make([]string, 0, len(Commands))
		for name := range Commands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c.Printf("  %-8s %s\n", name, Commands[name].Desc)
		}
		return nil
	},
})
