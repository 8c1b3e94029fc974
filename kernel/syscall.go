package kernel

import (
	"log/slog"
	"math"

	abi "github.com/wnxd/microdbg-abi"
)

type Syscall struct {
	handle
}

func (sys *Syscall) ctor(cfg Config, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	sys.handle.ctor(cfg, logger)
}

func (sys *Syscall) Close() error {
	sys.handle.dtor()
	return nil
}

func (sys *Syscall) Get(nr abi.NR) func(abi.Context, ...uint64) uint64 {
	switch nr {
	case abi.NR_handle_close:
		return sys.Emulate_handle_close
	case abi.NR_handle_duplicate:
		return sys.Emulate_handle_duplicate
	}
	return nil
}

func (sys *Syscall) Reject(ctx abi.Context, args ...uint64) uint64 {
	return abi.Mux64(0, abi.ERR_NOT_SUPPORTED)
}

func (sys *Syscall) Emulate_handle_close(ctx abi.Context, args ...uint64) uint64 {
	if len(args) < 1 {
		return abi.Mux64(0, abi.ERR_INVALID_ARG)
	}
	if args[0] > math.MaxUint32 {
		return abi.Mux64(0, abi.ERR_BAD_HANDLE)
	}
	err := sys.handle.handle_close(ctx, abi.HandleID(args[0]))
	return abi.Mux64(0, err)
}

func (sys *Syscall) Emulate_handle_duplicate(ctx abi.Context, args ...uint64) uint64 {
	if len(args) < 2 {
		return abi.Mux64(0, abi.ERR_INVALID_ARG)
	}
	if args[0] > math.MaxUint32 {
		return abi.Mux64(0, abi.ERR_BAD_HANDLE)
	}
	if args[1] > math.MaxUint32 {
		return abi.Mux64(0, abi.ERR_INVALID_ARG)
	}
	id, err := sys.handle.handle_duplicate(ctx, abi.HandleID(args[0]), abi.Rights(args[1]))
	return abi.Mux64(uint32(id), err)
}
