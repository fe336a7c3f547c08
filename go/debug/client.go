package debug

import (
	"io"
	"net"
	"os"

	"github.com/pkg/errors"
)

// like go io.Copy(), but returns a channel to notify you upon completion
func copyNotify(dst io.Writer, src io.Reader) chan int {
	ret := make(chan int)
	go func() {
		io.Copy(dst, src)
		ret <- 1
	}()
	return ret
}

func RunClient(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "error connecting to debug server")
	}
	defer conn.Close()
	remoteEOF := copyNotify(os.Stdout, conn)
	localEOF := copyNotify(conn, os.Stdin)
	select {
	case <-remoteEOF:
		return errors.New("remote closed connection")
	case <-localEOF:
		return nil
	}
}
