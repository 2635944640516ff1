package access

import "fmt"

// Reason is why a viewer may (or may not) see a full profile.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonSelf
	ReasonMatch
	ReasonPurchase
)

var reasonNames = [...]string{
	ReasonNone:     "none",
	ReasonSelf:     "self",
	ReasonMatch:    "match",
	ReasonPurchase: "purchase",
}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return fmt.Sprintf("Reason(%d)", int(r))
	}
	return reasonNames[r]
}

// GrantsFullView reports whether r lets the viewer see the full profile.
func (r Reason) GrantsFullView() bool { return r != ReasonNone }

func (r Reason) MarshalText() ([]byte, error) {
	if r < 0 || int(r) >= len(reasonNames) {
		return nil, fmt.Errorf("unknown unlock reason %d", int(r))
	}
	return []byte(reasonNames[r]), nil
}

func (r *Reason) UnmarshalText(b []byte) error {
	for i, name := range reasonNames {
		if name == string(b) {
			*r = Reason(i)
			return nil
		}
	}
	return fmt.Errorf("unknown unlock reason %q", string(b))
}
