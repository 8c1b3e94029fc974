package abi

// NR is a syscall number on the handle boundary.
type NR uint64

const (
	NR_handle_close     NR = 0x1000
	NR_handle_duplicate NR = 0x1001
)

func (nr NR) String() string {
	switch nr {
	case NR_handle_close:
		return "handle_close"
	case NR_handle_duplicate:
		return "handle_duplicate"
	}
	return "nr_unknown"
}

// Syscall resolves a syscall number to its implementation. Every
// implementation returns one word encoded with Mux.
type Syscall interface {
	Get(nr NR) func(ctx Context, args ...uint64) uint64
}

type Kernel interface {
	NR(no uint64) NR
	Syscall() Syscall
}

// invoke issues nr on k, answering ERR_NOT_SUPPORTED when k does not
// implement it.
func invoke(ctx Context, k Kernel, nr NR, args ...uint64) uint64 {
	call := k.Syscall().Get(nr)
	if call == nil {
		return Mux64(0, ERR_NOT_SUPPORTED)
	}
	return call(ctx, args...)
}
