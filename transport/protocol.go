// Package transport carries handle syscalls over a Unix socket so that
// the kernel side of the boundary can live in another process.
//
// Each connection carries exactly one CBOR request and one CBOR
// response. The response is the raw syscall word; it is decoded by the
// caller with the same Demux rules as a local call.
package transport

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Request is one syscall invocation.
type Request struct {
	Task uint64   `cbor:"task"`
	NR   uint64   `cbor:"nr"`
	Args []uint64 `cbor:"args,omitempty"`
}

// Response carries the word returned by the kernel.
type Response struct {
	Word uint64 `cbor:"word"`
}

// maxRequestSize bounds a single request. Six 64-bit arguments fit in
// well under 128 bytes.
const maxRequestSize = 4096

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("transport: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 16,
	}.DecMode()
	if err != nil {
		panic("transport: CBOR decoder initialization failed: " + err.Error())
	}
}

func encode(w io.Writer, v any) error {
	return encMode.NewEncoder(w).Encode(v)
}

func decode(r io.Reader, v any) error {
	return decMode.NewDecoder(io.LimitReader(r, maxRequestSize)).Decode(v)
}
