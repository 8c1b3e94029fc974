// Package abi is the user-space side of a handle-oriented syscall
// boundary.
//
// A kernel object is reached only through a [Handle], and what a holder
// may do with it is limited by the [Rights] granted alongside it. Each
// syscall returns a single unsigned word built by [Mux] and read back by
// [Demux]: a success payload is stored as is, a failure as the negation
// of its [Errno].
//
// # Encoding window
//
// Demux cannot tell an encoded failure from a success payload of the
// same value. Payloads in [1, Reserved) always decode as failures. Any
// call returning a success value must keep its results out of that
// window; kernels in this module allocate handle ids starting at or
// above Reserved for that reason.
//
// The same rule applies at every word width. [Mux64] and [Demux64] carry
// 32-bit handle ids in a 64-bit word; [MuxSize] and [DemuxSize] carry
// pointer-width sizes.
package abi
