package kernel

import (
	"errors"
	"log/slog"
	"unsafe"

	abi "github.com/wnxd/microdbg-abi"
	"github.com/wnxd/microdbg/debugger"
	"github.com/wnxd/microdbg/emulator"
	emu_arm "github.com/wnxd/microdbg/emulator/arm"
	emu_arm64 "github.com/wnxd/microdbg/emulator/arm64"
)

// Kernel owns every handle table and answers the handle syscalls, either
// called directly through abi.Kernel or trapped from an emulated guest.
type Kernel struct {
	sys      Syscall
	logger   *slog.Logger
	intrHook debugger.HookHandler
}

func NewKernel(cfg Config, logger *slog.Logger) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	k := &Kernel{logger: logger}
	k.sys.ctor(cfg, logger)
	return k, nil
}

// Attach traps SWI/SVC 0 in dbg and serves handle syscalls for the guest.
func (k *Kernel) Attach(dbg debugger.Debugger) error {
	if k.intrHook != nil {
		return abi.ERR_ALREADY_OWNED
	}
	var handleIntr debugger.InterruptCallback
	switch dbg.Emulator().Arch() {
	case emulator.ARCH_ARM:
		handleIntr = k.armIntr
	case emulator.ARCH_ARM64:
		handleIntr = k.arm64Intr
	default:
		return errors.ErrUnsupported
	}
	hook, err := dbg.AddHook(emulator.HOOK_TYPE_INTR, handleIntr, nil, 1, 0)
	if err != nil {
		return err
	}
	k.intrHook = hook
	return nil
}

func (k *Kernel) Close() error {
	if k.intrHook != nil {
		k.intrHook.Close()
		k.intrHook = nil
	}
	return k.sys.Close()
}

func (k *Kernel) NR(no uint64) abi.NR {
	return abi.NR(no)
}

func (k *Kernel) Syscall() abi.Syscall {
	return &k.sys
}

// Grant creates a new object owned by task and returns its first handle.
func (k *Kernel) Grant(task uint64, name string, rights abi.Rights) (abi.HandleID, error) {
	return k.sys.grant(task, name, rights)
}

// Open grants a new object to the task of ctx and wraps it in a Handle.
func (k *Kernel) Open(ctx abi.Context, name string, rights abi.Rights) (*abi.Handle, error) {
	id, err := k.Grant(ctx.Task(), name, rights)
	if err != nil {
		return nil, err
	}
	return abi.NewHandle(ctx, k, id, rights), nil
}

func (k *Kernel) Info(task uint64, id abi.HandleID) (Info, bool) {
	return k.sys.info(task, id)
}

// Stats reports live handles and live objects.
func (k *Kernel) Stats() (handles, objects int) {
	return k.sys.stats()
}

func (k *Kernel) dispatch(ctx debugger.Context, nr uint64, args []uint64) (uint64, bool) {
	call := k.sys.Get(k.NR(nr))
	if call == nil {
		return 0, false
	}
	return call(abi.NewDebuggerContext(ctx, k.logger), args...), true
}

func (k *Kernel) armIntr(ctx debugger.Context, intno uint64, data any) debugger.HookResult {
	const CPSR_T = 1 << 5

	if intno != emu_arm.ARM_INTR_EXCP_SWI {
		return debugger.HookResult_Next
	}
	pc_cpsr, err := ctx.RegReadBatch(emu_arm.ARM_REG_PC, emu_arm.ARM_REG_CPSR)
	if err != nil {
		return debugger.HookResult_Next
	}
	if pc_cpsr[1]&CPSR_T != 0 {
		var code uint16
		err = ctx.ToPointer(pc_cpsr[0]-2).MemReadPtr(2, unsafe.Pointer(&code))
		if err != nil {
			return debugger.HookResult_Next
		} else if swi := code & 0xff; swi != 0 {
			return debugger.HookResult_Next
		}
	} else {
		var code uint32
		err = ctx.ToPointer(pc_cpsr[0]-4).MemReadPtr(4, unsafe.Pointer(&code))
		if err != nil {
			return debugger.HookResult_Next
		} else if swi := code & 0xffffff; swi != 0 {
			return debugger.HookResult_Next
		}
	}
	nr, err := ctx.RegRead(emu_arm.ARM_REG_R7)
	if err != nil {
		return debugger.HookResult_Next
	}
	args, err := ctx.RegReadBatch(emu_arm.ARM_REG_R0, emu_arm.ARM_REG_R1, emu_arm.ARM_REG_R2, emu_arm.ARM_REG_R3)
	if err != nil {
		return debugger.HookResult_Next
	}
	r, ok := k.dispatch(ctx, nr, args)
	if !ok {
		return debugger.HookResult_Next
	}
	// 64-bit results come back in r0:r1
	ctx.RegWrite(emu_arm.ARM_REG_R0, r&0xffffffff)
	ctx.RegWrite(emu_arm.ARM_REG_R1, r>>32)
	return debugger.HookResult_Done
}

func (k *Kernel) arm64Intr(ctx debugger.Context, intno uint64, data any) debugger.HookResult {
	// the emulator raises svc with the same exception number as AArch32 swi
	if intno != emu_arm.ARM_INTR_EXCP_SWI {
		return debugger.HookResult_Next
	}
	pc, err := ctx.RegRead(emu_arm64.ARM64_REG_PC)
	if err != nil {
		return debugger.HookResult_Next
	}
	var code uint32
	err = ctx.ToPointer(pc-4).MemReadPtr(4, unsafe.Pointer(&code))
	if err != nil {
		return debugger.HookResult_Next
	}
	if swi := (code >> 5) & 0xffff; swi != 0 {
		return debugger.HookResult_Next
	}
	nr, err := ctx.RegRead(emu_arm64.ARM64_REG_X8)
	if err != nil {
		return debugger.HookResult_Next
	}
	args, err := ctx.RegReadBatch(emu_arm64.ARM64_REG_X0, emu_arm64.ARM64_REG_X1, emu_arm64.ARM64_REG_X2, emu_arm64.ARM64_REG_X3)
	if err != nil {
		return debugger.HookResult_Next
	}
	r, ok := k.dispatch(ctx, nr, args)
	if !ok {
		return debugger.HookResult_Next
	}
	ctx.RegWrite(emu_arm64.ARM64_REG_X0, r)
	return debugger.HookResult_Done
}
