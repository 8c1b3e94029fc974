package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	abi "github.com/wnxd/microdbg-abi"
)

const (
	readTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// Server exposes an abi.Kernel on a Unix socket.
type Server struct {
	socketPath string
	kernel     abi.Kernel
	logger     *slog.Logger

	active sync.WaitGroup
}

func NewServer(socketPath string, kernel abi.Kernel, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{socketPath: socketPath, kernel: kernel, logger: logger}
}

// Serve accepts connections until ctx is cancelled, then waits for
// in-flight calls to finish. A stale socket file is removed first and
// the socket is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("syscall server listening", "path", s.socketPath)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(conn)
		}()
	}
	s.active.Wait()
	return nil
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	var req Request
	if err := decode(conn, &req); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.logger.Debug("invalid request", "error", err)
		s.reply(conn, abi.Mux64(0, abi.ERR_INVALID_ARG))
		return
	}

	nr := s.kernel.NR(req.NR)
	r := abi.Mux64(0, abi.ERR_NOT_SUPPORTED)
	if call := s.kernel.Syscall().Get(nr); call != nil {
		r = call(abi.NewContext(req.Task, s.logger), req.Args...)
	}
	s.logger.Debug("syscall", "task", req.Task, "nr", nr.String(), "word", r)
	s.reply(conn, r)
}

func (s *Server) reply(conn net.Conn, word uint64) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := encode(conn, Response{Word: word}); err != nil {
		s.logger.Debug("writing response failed", "error", err)
	}
}
