package main

import (
	"github.com/ST3ALth/xenia/go/cmd"

	_ "github.com/ST3ALth/xenia/go/cmd/dbg"
	_ "github.com/ST3ALth/xenia/go/cmd/gpureplay"
	_ "github.com/ST3ALth/xenia/go/cmd/gputrace"
	_ "github.com/ST3ALth/xenia/go/cmd/thunks"
)

func main() { cmd.Main() }
