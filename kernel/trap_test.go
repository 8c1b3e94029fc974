package kernel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"unsafe"

	abi "github.com/wnxd/microdbg-abi"
	"github.com/wnxd/microdbg/debugger"
	"github.com/wnxd/microdbg/emulator"
	emu_arm "github.com/wnxd/microdbg/emulator/arm"
	emu_arm64 "github.com/wnxd/microdbg/emulator/arm64"
)

// guestMemory stands in for the emulator: it reports an arch and serves
// instruction fetches from a sparse little-endian code map.
type guestMemory struct {
	emulator.Emulator
	arch emulator.Arch
	code map[uint64][]byte
}

func (mem *guestMemory) Arch() emulator.Arch {
	return mem.arch
}

func (mem *guestMemory) MemReadPtr(addr, size uint64, ptr unsafe.Pointer) error {
	b, ok := mem.code[addr]
	if !ok || uint64(len(b)) < size {
		return fmt.Errorf("unmapped read at %#x", addr)
	}
	copy(unsafe.Slice((*byte)(ptr), size), b)
	return nil
}

func (mem *guestMemory) write32(addr uint64, insn uint32) {
	mem.code[addr] = binary.LittleEndian.AppendUint32(nil, insn)
}

func (mem *guestMemory) write16(addr uint64, insn uint16) {
	mem.code[addr] = binary.LittleEndian.AppendUint16(nil, insn)
}

type guestContext struct {
	debugger.Context
	task int
	mem  *guestMemory
	regs map[emulator.Reg]uint64
}

func (ctx *guestContext) TaskID() int {
	return ctx.task
}

func (ctx *guestContext) RegRead(reg emulator.Reg) (uint64, error) {
	return ctx.regs[reg], nil
}

func (ctx *guestContext) RegReadBatch(regs ...emulator.Reg) ([]uint64, error) {
	vals := make([]uint64, len(regs))
	for i, reg := range regs {
		vals[i] = ctx.regs[reg]
	}
	return vals, nil
}

func (ctx *guestContext) RegWrite(reg emulator.Reg, value uint64) error {
	ctx.regs[reg] = value
	return nil
}

func (ctx *guestContext) ToPointer(addr uint64) emulator.Pointer {
	return emulator.ToPointer(ctx.mem, addr)
}

type guestHook struct {
	typ      emulator.HookType
	callback any
	closed   bool
}

func (h *guestHook) Close() error {
	h.closed = true
	return nil
}

func (h *guestHook) Type() emulator.HookType {
	return h.typ
}

type guestDebugger struct {
	debugger.Debugger
	mem   *guestMemory
	hooks []*guestHook
}

func (dbg *guestDebugger) Emulator() emulator.Emulator {
	return dbg.mem
}

func (dbg *guestDebugger) AddHook(typ emulator.HookType, callback any, data any, begin, end uint64) (debugger.HookHandler, error) {
	h := &guestHook{typ: typ, callback: callback}
	dbg.hooks = append(dbg.hooks, h)
	return h, nil
}

// attachGuest attaches k to a fake debugger of the given arch and returns
// the interrupt callback it installed together with a context for task.
func attachGuest(t *testing.T, k *Kernel, arch emulator.Arch, task int) (debugger.InterruptCallback, *guestContext) {
	t.Helper()
	mem := &guestMemory{arch: arch, code: make(map[uint64][]byte)}
	dbg := &guestDebugger{mem: mem}
	if err := k.Attach(dbg); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if len(dbg.hooks) != 1 || dbg.hooks[0].typ != emulator.HOOK_TYPE_INTR {
		t.Fatalf("Attach installed %d hooks, want one interrupt hook", len(dbg.hooks))
	}
	intr, ok := dbg.hooks[0].callback.(debugger.InterruptCallback)
	if !ok {
		t.Fatalf("interrupt hook callback has type %T", dbg.hooks[0].callback)
	}
	return intr, &guestContext{task: task, mem: mem, regs: make(map[emulator.Reg]uint64)}
}

func TestArm64SvcDuplicate(t *testing.T) {
	k, _ := newTestKernel(t, DefaultConfig())
	src, _ := k.Grant(3, "vmo", abi.RIGHT_DUPLICATE|abi.RIGHT_READ)
	intr, ctx := attachGuest(t, k, emulator.ARCH_ARM64, 3)

	ctx.mem.write32(0x1000, 0xd4000001) // svc #0
	ctx.regs[emu_arm64.ARM64_REG_PC] = 0x1004
	ctx.regs[emu_arm64.ARM64_REG_X8] = uint64(abi.NR_handle_duplicate)
	ctx.regs[emu_arm64.ARM64_REG_X0] = uint64(src)
	ctx.regs[emu_arm64.ARM64_REG_X1] = uint64(abi.RIGHT_READ)

	if res := intr(ctx, emu_arm.ARM_INTR_EXCP_SWI, nil); res != debugger.HookResult_Done {
		t.Fatalf("svc #0 handle_duplicate = %v, want HookResult_Done", res)
	}
	id, err := abi.Demux64(ctx.regs[emu_arm64.ARM64_REG_X0])
	if err != nil {
		t.Fatalf("x0 carries %v", err)
	}
	if id != uint32(src)+1 {
		t.Fatalf("x0 = %#x, want %#x", id, uint32(src)+1)
	}
	if info, ok := k.Info(3, abi.HandleID(id)); !ok || info.Object != "vmo" || info.Rights != abi.RIGHT_READ {
		t.Fatalf("Info(new handle) = %+v, %v", info, ok)
	}
	if handles, objects := k.Stats(); handles != 2 || objects != 1 {
		t.Fatalf("Stats() = %d, %d, want 2, 1", handles, objects)
	}
}

func TestArmSwiClose(t *testing.T) {
	k, _ := newTestKernel(t, DefaultConfig())
	src, _ := k.Grant(4, "port", abi.RIGHT_READ)
	intr, ctx := attachGuest(t, k, emulator.ARCH_ARM, 4)

	ctx.mem.write32(0x2000, 0xef000000) // swi #0
	ctx.regs[emu_arm.ARM_REG_PC] = 0x2004
	ctx.regs[emu_arm.ARM_REG_R7] = uint64(abi.NR_handle_close)

	trap := func(id abi.HandleID) uint64 {
		ctx.regs[emu_arm.ARM_REG_R0] = uint64(id)
		ctx.regs[emu_arm.ARM_REG_R1] = 0xdeadbeef
		if res := intr(ctx, emu_arm.ARM_INTR_EXCP_SWI, nil); res != debugger.HookResult_Done {
			t.Fatalf("swi #0 handle_close = %v, want HookResult_Done", res)
		}
		if hi := ctx.regs[emu_arm.ARM_REG_R1]; hi != 0 {
			t.Fatalf("r1 = %#x, want the zero high half of the result", hi)
		}
		return ctx.regs[emu_arm.ARM_REG_R0]
	}

	if r0 := trap(src); r0 != 0 {
		t.Fatalf("close: r0 = %#x, want 0", r0)
	}
	if handles, objects := k.Stats(); handles != 0 || objects != 0 {
		t.Fatalf("Stats() after close = %d, %d", handles, objects)
	}
	r0 := trap(src)
	if _, err := abi.Demux[uint32, uint32](uint32(r0)); err != abi.ERR_BAD_HANDLE {
		t.Fatalf("second close: r0 = %#x (%v), want ERR_BAD_HANDLE", r0, err)
	}
}

func TestThumbSvcEscalation(t *testing.T) {
	const CPSR_T = 1 << 5

	k, _ := newTestKernel(t, DefaultConfig())
	src, _ := k.Grant(5, "vmo", abi.RIGHT_DUPLICATE|abi.RIGHT_READ)
	intr, ctx := attachGuest(t, k, emulator.ARCH_ARM, 5)

	ctx.mem.write16(0x3000, 0xdf00) // svc #0
	ctx.regs[emu_arm.ARM_REG_PC] = 0x3002
	ctx.regs[emu_arm.ARM_REG_CPSR] = CPSR_T
	ctx.regs[emu_arm.ARM_REG_R7] = uint64(abi.NR_handle_duplicate)
	ctx.regs[emu_arm.ARM_REG_R0] = uint64(src)
	ctx.regs[emu_arm.ARM_REG_R1] = uint64(abi.RIGHT_READ | abi.RIGHT_WRITE)

	if res := intr(ctx, emu_arm.ARM_INTR_EXCP_SWI, nil); res != debugger.HookResult_Done {
		t.Fatalf("thumb svc #0 = %v, want HookResult_Done", res)
	}
	if r0, r1 := ctx.regs[emu_arm.ARM_REG_R0], ctx.regs[emu_arm.ARM_REG_R1]; r0 != uint64(-abi.ERR_ACCESS_DENIED) || r1 != 0 {
		t.Fatalf("r0:r1 = %#x:%#x, want ERR_ACCESS_DENIED word", r0, r1)
	}
	if handles, _ := k.Stats(); handles != 1 {
		t.Fatalf("escalation created a handle: %d live", handles)
	}
}

func TestTrapsLeftToOtherHooks(t *testing.T) {
	k, _ := newTestKernel(t, DefaultConfig())
	src, _ := k.Grant(6, "vmo", abi.RIGHTS_ALL)

	tests := []struct {
		name   string
		arch   emulator.Arch
		intno  uint64
		result emulator.Reg
		setup  func(ctx *guestContext)
	}{
		{"arm64 svc with immediate", emulator.ARCH_ARM64, emu_arm.ARM_INTR_EXCP_SWI, emu_arm64.ARM64_REG_X0, func(ctx *guestContext) {
			ctx.mem.write32(0x1000, 0xd4000021) // svc #1
			ctx.regs[emu_arm64.ARM64_REG_PC] = 0x1004
			ctx.regs[emu_arm64.ARM64_REG_X8] = uint64(abi.NR_handle_close)
		}},
		{"arm64 unknown syscall", emulator.ARCH_ARM64, emu_arm.ARM_INTR_EXCP_SWI, emu_arm64.ARM64_REG_X0, func(ctx *guestContext) {
			ctx.mem.write32(0x1000, 0xd4000001)
			ctx.regs[emu_arm64.ARM64_REG_PC] = 0x1004
			ctx.regs[emu_arm64.ARM64_REG_X8] = 0x4242
		}},
		{"arm64 breakpoint", emulator.ARCH_ARM64, emu_arm.ARM_INTR_EXCP_BKPT, emu_arm64.ARM64_REG_X0, func(ctx *guestContext) {
			ctx.mem.write32(0x1000, 0xd4000001)
			ctx.regs[emu_arm64.ARM64_REG_PC] = 0x1004
			ctx.regs[emu_arm64.ARM64_REG_X8] = uint64(abi.NR_handle_close)
		}},
		{"arm64 unreadable pc", emulator.ARCH_ARM64, emu_arm.ARM_INTR_EXCP_SWI, emu_arm64.ARM64_REG_X0, func(ctx *guestContext) {
			ctx.regs[emu_arm64.ARM64_REG_PC] = 0x9004
			ctx.regs[emu_arm64.ARM64_REG_X8] = uint64(abi.NR_handle_close)
		}},
		{"arm oabi swi", emulator.ARCH_ARM, emu_arm.ARM_INTR_EXCP_SWI, emu_arm.ARM_REG_R0, func(ctx *guestContext) {
			ctx.mem.write32(0x2000, 0xef900006) // swi #0x900006
			ctx.regs[emu_arm.ARM_REG_PC] = 0x2004
			ctx.regs[emu_arm.ARM_REG_R7] = uint64(abi.NR_handle_close)
		}},
		{"thumb svc with immediate", emulator.ARCH_ARM, emu_arm.ARM_INTR_EXCP_SWI, emu_arm.ARM_REG_R0, func(ctx *guestContext) {
			ctx.mem.write16(0x3000, 0xdf01) // svc #1
			ctx.regs[emu_arm.ARM_REG_PC] = 0x3002
			ctx.regs[emu_arm.ARM_REG_CPSR] = 1 << 5
			ctx.regs[emu_arm.ARM_REG_R7] = uint64(abi.NR_handle_close)
		}},
		{"arm unknown syscall", emulator.ARCH_ARM, emu_arm.ARM_INTR_EXCP_SWI, emu_arm.ARM_REG_R0, func(ctx *guestContext) {
			ctx.mem.write32(0x2000, 0xef000000)
			ctx.regs[emu_arm.ARM_REG_PC] = 0x2004
			ctx.regs[emu_arm.ARM_REG_R7] = 0x4242
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// each case attaches its own guest
			k.intrHook = nil
			intr, ctx := attachGuest(t, k, tt.arch, 6)
			tt.setup(ctx)
			ctx.regs[tt.result] = uint64(src)
			if res := intr(ctx, tt.intno, nil); res != debugger.HookResult_Next {
				t.Fatalf("trap = %v, want HookResult_Next", res)
			}
			if r := ctx.regs[tt.result]; r != uint64(src) {
				t.Fatalf("result register rewritten to %#x", r)
			}
		})
	}
	if _, ok := k.Info(6, src); !ok {
		t.Fatalf("handle %#x closed by a trap that was not ours", uint32(src))
	}
}

func TestAttach(t *testing.T) {
	k, _ := newTestKernel(t, DefaultConfig())

	x86 := &guestDebugger{mem: &guestMemory{arch: emulator.ARCH_X86}}
	if err := k.Attach(x86); !errors.Is(err, errors.ErrUnsupported) {
		t.Fatalf("Attach(x86) = %v, want errors.ErrUnsupported", err)
	}
	if len(x86.hooks) != 0 {
		t.Fatalf("Attach(x86) installed %d hooks", len(x86.hooks))
	}

	first := &guestDebugger{mem: &guestMemory{arch: emulator.ARCH_ARM64}}
	if err := k.Attach(first); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	second := &guestDebugger{mem: &guestMemory{arch: emulator.ARCH_ARM}}
	if err := k.Attach(second); err != abi.ERR_ALREADY_OWNED {
		t.Fatalf("second Attach = %v, want ERR_ALREADY_OWNED", err)
	}
	if len(second.hooks) != 0 {
		t.Fatalf("second Attach installed %d hooks", len(second.hooks))
	}

	k.Close()
	if !first.hooks[0].closed {
		t.Fatalf("Close left the interrupt hook installed")
	}
}
