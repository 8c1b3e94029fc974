package abi

import "testing"

func TestRightsHasAllCombinations(t *testing.T) {
	for granted := RIGHTS_NONE; granted <= RIGHTS_ALL; granted++ {
		for required := RIGHTS_NONE; required <= RIGHTS_ALL; required++ {
			subset := true
			for bit := RIGHT_DUPLICATE; bit <= RIGHT_WRITE; bit <<= 1 {
				if required&bit != 0 && granted&bit == 0 {
					subset = false
				}
			}
			err := granted.Has(required)
			if subset && err != nil {
				t.Errorf("%s.Has(%s) = %v, want nil", granted, required, err)
			}
			if !subset && err != ERR_ACCESS_DENIED {
				t.Errorf("%s.Has(%s) = %v, want ERR_ACCESS_DENIED", granted, required, err)
			}
			if granted.Contains(required) != subset {
				t.Errorf("%s.Contains(%s) = %v", granted, required, !subset)
			}
		}
	}
}

func TestRightsBitLayout(t *testing.T) {
	if RIGHT_DUPLICATE != 1 || RIGHT_TRANSFER != 2 || RIGHT_READ != 4 || RIGHT_WRITE != 8 {
		t.Fatalf("rights bits renumbered: %d %d %d %d", RIGHT_DUPLICATE, RIGHT_TRANSFER, RIGHT_READ, RIGHT_WRITE)
	}
}

func TestRightsString(t *testing.T) {
	tests := []struct {
		rights Rights
		want   string
	}{
		{RIGHTS_NONE, "none"},
		{RIGHT_READ, "read"},
		{RIGHT_DUPLICATE | RIGHT_WRITE, "duplicate|write"},
		{RIGHTS_ALL, "duplicate|transfer|read|write"},
		{RIGHT_READ | 0x30, "read|0x30"},
	}
	for _, tt := range tests {
		if got := tt.rights.String(); got != tt.want {
			t.Errorf("Rights(%#x).String() = %q, want %q", uint32(tt.rights), got, tt.want)
		}
	}
}

func TestParseRights(t *testing.T) {
	for r := RIGHTS_NONE; r <= RIGHTS_ALL; r++ {
		got, err := ParseRights(r.String())
		if err != nil || got != r {
			t.Errorf("ParseRights(%q) = %s, %v", r.String(), got, err)
		}
	}
	if got, err := ParseRights(" Read | WRITE "); err != nil || got != RIGHT_READ|RIGHT_WRITE {
		t.Errorf("ParseRights with spacing = %s, %v", got, err)
	}
	if got, err := ParseRights("all"); err != nil || got != RIGHTS_ALL {
		t.Errorf("ParseRights(all) = %s, %v", got, err)
	}
	if _, err := ParseRights("read|execute"); err != ERR_INVALID_ARG {
		t.Errorf("ParseRights(read|execute) = %v, want ERR_INVALID_ARG", err)
	}
}
