package transport

import (
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	abi "github.com/wnxd/microdbg-abi"
)

const defaultTimeout = 5 * time.Second

// Client is an abi.Kernel whose syscalls are served by a remote Server.
// Transport failures are reported as encoded words like any other
// failure, so callers only ever see errnos.
type Client struct {
	socketPath string
	timeout    time.Duration
}

func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{socketPath: socketPath, timeout: timeout}
}

func (c *Client) NR(no uint64) abi.NR {
	return abi.NR(no)
}

func (c *Client) Syscall() abi.Syscall {
	return clientSyscall{c}
}

type clientSyscall struct {
	c *Client
}

func (s clientSyscall) Get(nr abi.NR) func(abi.Context, ...uint64) uint64 {
	return func(ctx abi.Context, args ...uint64) uint64 {
		word, err := s.c.Call(ctx.Task(), nr, args...)
		if err != nil {
			ctx.Logger().Warn("remote syscall failed", "nr", nr.String(), "error", err)
			return abi.Mux64(0, transportErrno(err))
		}
		return word
	}
}

// Call performs one round trip and returns the raw word.
func (c *Client) Call(task uint64, nr abi.NR, args ...uint64) (uint64, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return 0, &dialError{err}
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	if err := encode(conn, Request{Task: task, NR: uint64(nr), Args: args}); err != nil {
		return 0, err
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}
	var resp Response
	if err := decode(conn, &resp); err != nil {
		return 0, err
	}
	return resp.Word, nil
}

type dialError struct {
	err error
}

func (e *dialError) Error() string {
	return "dial: " + e.err.Error()
}

func (e *dialError) Unwrap() error {
	return e.err
}

func transportErrno(err error) abi.Errno {
	var dial *dialError
	var netErr net.Error
	switch {
	case errors.As(err, &dial):
		return abi.ERR_UNAVAILABLE
	case errors.As(err, &netErr) && netErr.Timeout():
		return abi.ERR_TIMED_OUT
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return abi.ERR_PEER_CLOSED
	}
	return abi.ERR_INTERNAL
}
