package abi

import "errors"

// Word is a value returned across the syscall boundary.
type Word interface {
	~uint32 | ~uint64 | ~uintptr
}

// Payload is the success value packed into a Word.
type Payload interface {
	~uint32 | ~uint64 | ~uintptr
}

// Mux packs a result into a single word. A nil err encodes v
// zero-extended; any other error encodes as -errno.
func Mux[W Word, V Payload](v V, err error) W {
	if err == nil {
		return W(v)
	}
	return W(-int64(AsErrno(err)))
}

// Demux unpacks a word produced by Mux. The word is truncated to the
// payload width first; payloads in [1, Reserved) decode as failures and
// everything else as success.
func Demux[W Word, V Payload](w W) (V, error) {
	v := V(w)
	if n := uint64(v); n > 0 && n < uint64(Reserved) {
		return 0, Errno(-int64(n))
	}
	return v, nil
}

// Mux64 encodes a 32-bit payload, such as a handle id, into a 64-bit word.
func Mux64(v uint32, err error) uint64 {
	return Mux[uint64](v, err)
}

func Demux64(w uint64) (uint32, error) {
	return Demux[uint64, uint32](w)
}

// MuxSize encodes a pointer-width size or count.
func MuxSize(n uintptr, err error) uintptr {
	return Mux[uintptr](n, err)
}

func DemuxSize(w uintptr) (uintptr, error) {
	return Demux[uintptr, uintptr](w)
}

// Expect turns a missing value into ERR_INTERNAL.
func Expect[V any](v V, ok bool) (V, error) {
	if !ok {
		var zero V
		return zero, ERR_INTERNAL
	}
	return v, nil
}

// AsErrno reduces err to the code that crosses the boundary. Errors
// without a failure Errno in their chain become ERR_INTERNAL, including
// a non-nil OK and errnos outside the table.
func AsErrno(err error) Errno {
	if err == nil {
		return OK
	}
	var errno Errno
	if errors.As(err, &errno) && errno < 0 && errno.Valid() {
		return errno
	}
	return ERR_INTERNAL
}
