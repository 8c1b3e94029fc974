package abi

import "fmt"

// HandleID names a kernel object. It has no meaning outside the kernel
// that issued it.
type HandleID uint32

// Handle is a move-only reference to a kernel object. Close consumes it;
// any later use fails with ERR_BAD_STATE. A Handle is not safe for
// concurrent use.
type Handle struct {
	ctx    Context
	k      Kernel
	id     HandleID
	rights Rights
	closed bool
}

// NewHandle adopts an id issued by k to the task of ctx, granted rights.
func NewHandle(ctx Context, k Kernel, id HandleID, rights Rights) *Handle {
	return &Handle{ctx: ctx, k: k, id: id, rights: rights}
}

func (h *Handle) ID() HandleID {
	return h.id
}

func (h *Handle) Rights() Rights {
	return h.rights
}

func (h *Handle) Closed() bool {
	return h.closed
}

func (h *Handle) String() string {
	if h.closed {
		return fmt.Sprintf("handle(%#x, closed)", uint32(h.id))
	}
	return fmt.Sprintf("handle(%#x, %s)", uint32(h.id), h.rights)
}

// Duplicate asks the kernel for a second handle to the same object with
// the requested rights. The request is checked against the rights
// granted to h before any syscall is made; bits outside RIGHTS_ALL are
// ERR_INVALID_ARG, as the kernel would answer.
func (h *Handle) Duplicate(rights Rights) (*Handle, error) {
	if h.closed {
		return nil, ERR_BAD_STATE
	}
	if rights&^RIGHTS_ALL != 0 {
		return nil, ERR_INVALID_ARG
	}
	if err := h.rights.Has(RIGHT_DUPLICATE | rights); err != nil {
		return nil, err
	}
	r := invoke(h.ctx, h.k, NR_handle_duplicate, uint64(h.id), uint64(rights))
	id, err := Demux64(r)
	if err != nil {
		return nil, err
	}
	return NewHandle(h.ctx, h.k, HandleID(id), rights), nil
}

// Close releases the handle. It never fails from the caller's point of
// view; kernel failures and repeated closes are logged.
func (h *Handle) Close() {
	log := h.ctx.Logger()
	if h.closed {
		log.Error("handle closed twice", "handle", uint32(h.id))
		return
	}
	h.closed = true
	r := invoke(h.ctx, h.k, NR_handle_close, uint64(h.id))
	if _, err := Demux64(r); err != nil {
		errno := AsErrno(err)
		log.Error("handle close failed", "handle", uint32(h.id), "errno", errno.Name(), "error", errno.Text())
	}
}
