package debug

import (
	"bufio"
	"fmt"
	"net"
	"os"

	"github.com/ST3ALth/xenia/go/debug/cmd"
)

var _ cmd.Target = &Debugger{}

func Accept(host, port string) (net.Conn, error) {
	addr := net.JoinHostPort(host, port)
	fmt.Fprintf(os.Stderr, "Waiting for connection on %s\n", addr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	defer ln.Close()
	return ln.Accept()
}

// Serve runs a line-oriented command session over c until it closes.
func (d *Debugger) Serve(c net.Conn) {
	fmt.Fprintf(os.Stderr, "Debug connection from %s\n", c.RemoteAddr())
	defer c.Close()
	context := &cmd.Context{ReadWriter: c, T: d, Color: false}
	scanner := bufio.NewScanner(c)
	for {
		if _, err := fmt.Fprintf(c, "0x%x> ", d.PC()); err != nil {
			return
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Fprintf(os.Stderr, "error reading debug connection: %v\n", err)
			}
			return
		}
		if err := cmd.Run(context, scanner.Text()); err != nil {
			fmt.Fprintf(os.Stderr, "error in command: %v\n", err)
			return
		}
	}
}
