package dialect

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const pendingLiteral = "pending"

// Approval is either a decided boolean or "pending".
type Approval struct {
	decided bool
	value   bool
}

// Decided returns a decided approval.
func Decided(v bool) Approval {
	return Approval{decided: true, value: v}
}

// Pending returns the undecided approval.
func Pending() Approval {
	return Approval{}
}

// IsPending reports whether no decision has been made.
func (a Approval) IsPending() bool {
	return !a.decided
}

// Value returns the decision and whether one was made.
func (a Approval) Value() (approved bool, decided bool) {
	return a.value, a.decided
}

func (a Approval) String() string {
	if !a.decided {
		return pendingLiteral
	}
	return fmt.Sprint(a.value)
}

func (a Approval) MarshalJSON() ([]byte, error) {
	if !a.decided {
		return []byte(`"` + pendingLiteral + `"`), nil
	}
	return json.Marshal(a.value)
}

func (a *Approval) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte(`"`+pendingLiteral+`"`)) {
		*a = Pending()
		return nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("dialect: approval must be a boolean or %q", pendingLiteral)
	}
	*a = Decided(v)
	return nil
}
