package abi

import (
	"strconv"
	"strings"
)

// Rights is the capability bitmask granted with a handle. Bits are
// independent; any subset is valid.
type Rights uint32

const (
	RIGHT_DUPLICATE Rights = 1 << 0
	RIGHT_TRANSFER  Rights = 1 << 1
	RIGHT_READ      Rights = 1 << 2
	RIGHT_WRITE     Rights = 1 << 3

	RIGHTS_NONE Rights = 0
	RIGHTS_ALL         = RIGHT_DUPLICATE | RIGHT_TRANSFER | RIGHT_READ | RIGHT_WRITE
)

var rightNames = [...]struct {
	bit  Rights
	name string
}{
	{RIGHT_DUPLICATE, "duplicate"},
	{RIGHT_TRANSFER, "transfer"},
	{RIGHT_READ, "read"},
	{RIGHT_WRITE, "write"},
}

func (r Rights) Contains(required Rights) bool {
	return r&required == required
}

// Has returns ERR_ACCESS_DENIED unless every bit of required is in r.
func (r Rights) Has(required Rights) error {
	if r.Contains(required) {
		return nil
	}
	return ERR_ACCESS_DENIED
}

func (r Rights) String() string {
	if r == RIGHTS_NONE {
		return "none"
	}
	var parts []string
	for _, rn := range rightNames {
		if r&rn.bit != 0 {
			parts = append(parts, rn.name)
		}
	}
	if rest := r &^ RIGHTS_ALL; rest != 0 {
		parts = append(parts, "0x"+strconv.FormatUint(uint64(rest), 16))
	}
	return strings.Join(parts, "|")
}

// ParseRights accepts the format produced by String, plus "all".
func ParseRights(s string) (Rights, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "none":
		return RIGHTS_NONE, nil
	case "all":
		return RIGHTS_ALL, nil
	}
	var r Rights
next:
	for _, part := range strings.Split(s, "|") {
		part = strings.ToLower(strings.TrimSpace(part))
		for _, rn := range rightNames {
			if part == rn.name {
				r |= rn.bit
				continue next
			}
		}
		return 0, ERR_INVALID_ARG
	}
	return r, nil
}
