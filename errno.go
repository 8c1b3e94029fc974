package abi

import "strconv"

// Errno is the signed code carried across the syscall boundary.
// Failures are negative, 0 is success.
type Errno int32

const (
	OK                   Errno = 0
	ERR_INTERNAL         Errno = -1
	ERR_NOT_SUPPORTED    Errno = -2
	ERR_NO_RESOURCES     Errno = -3
	ERR_NO_MEMORY        Errno = -4
	ERR_INVALID_ARG      Errno = -5
	ERR_BAD_HANDLE       Errno = -6
	ERR_WRONG_TYPE       Errno = -7
	ERR_OUT_OF_BOUNDS    Errno = -8
	ERR_BUFFER_TOO_SMALL Errno = -9
	ERR_BAD_STATE        Errno = -10
	ERR_TIMED_OUT        Errno = -11
	ERR_SHOULD_WAIT      Errno = -12
	ERR_CANCELLED        Errno = -13
	ERR_PEER_CLOSED      Errno = -14
	ERR_NOT_FOUND        Errno = -15
	ERR_ALREADY_EXISTS   Errno = -16
	ERR_ALREADY_OWNED    Errno = -17
	ERR_UNAVAILABLE      Errno = -18
	ERR_ACCESS_DENIED    Errno = -19
)

const unknownText = "An Unknown error occurred."

// errnoTable is indexed by -errno. The order is ABI and must not change.
var errnoTable = [...]struct {
	name string
	text string
}{
	{"OK", "The operation succeeded."},
	{"ERR_INTERNAL", "The system encountered an otherwise unspecified error while performing the operation."},
	{"ERR_NOT_SUPPORTED", "The operation is not implemented, supported, or enabled."},
	{"ERR_NO_RESOURCES", "The system was not able to allocate some resource needed for the operation."},
	{"ERR_NO_MEMORY", "The system was not able to allocate memory needed for the operation."},
	{"ERR_INVALID_ARG", "An argument passed was invalid."},
	{"ERR_BAD_HANDLE", "A specified handle value does not refer to a valid handle."},
	{"ERR_WRONG_TYPE", "The subject of the operation is the wrong type to perform the operation."},
	{"ERR_OUT_OF_BOUNDS", "An argument is outside of the valid range for this operation."},
	{"ERR_BUFFER_TOO_SMALL", "A caller provided buffer is too small for this operation."},
	{"ERR_BAD_STATE", "The operation failed because the current state of the object does not allow it, or a precondition of the operation is not satisfied."},
	{"ERR_TIMED_OUT", "The time limit for the operation elapsed before the operation completed."},
	{"ERR_SHOULD_WAIT", "The operation cannot be performed currently."},
	{"ERR_CANCELLED", "The in-progress operation has been canceled."},
	{"ERR_PEER_CLOSED", "The operation failed because the remote end of the subject of the operation was closed."},
	{"ERR_NOT_FOUND", "The requested entity is not found."},
	{"ERR_ALREADY_EXISTS", "An object with the specified identifier already exists."},
	{"ERR_ALREADY_OWNED", "The operation failed because the specified entity is already owned or controlled."},
	{"ERR_UNAVAILABLE", "The subject of the operation is currently unable to perform the operation."},
	{"ERR_ACCESS_DENIED", "The caller did not have permission to perform the specified operation."},
}

// Reserved is the size of the errno table. Encoded words in [1, Reserved)
// are failures, so no success payload may take those values.
const Reserved = len(errnoTable)

// Errnos returns every defined failure code in ABI order.
func Errnos() []Errno {
	list := make([]Errno, 0, Reserved-1)
	for i := 1; i < Reserved; i++ {
		list = append(list, Errno(-i))
	}
	return list
}

func (e Errno) index() (int, bool) {
	i := -int64(e)
	if i < 0 || i >= int64(Reserved) {
		return 0, false
	}
	return int(i), true
}

// Valid reports whether e has a slot in the errno table.
func (e Errno) Valid() bool {
	_, ok := e.index()
	return ok
}

// Text returns the fixed description of e, or a generic one for codes
// outside the table.
func (e Errno) Text() string {
	if i, ok := e.index(); ok {
		return errnoTable[i].text
	}
	return unknownText
}

func (e Errno) Name() string {
	if i, ok := e.index(); ok {
		return errnoTable[i].name
	}
	return "ERRNO(" + strconv.FormatInt(int64(e), 10) + ")"
}

func (e Errno) Error() string {
	return e.Text()
}
