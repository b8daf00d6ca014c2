package rules

import "fmt"

// ActionKind classifies tools for activation and chaining rules.
type ActionKind int

const (
	KindStandard ActionKind = iota
	KindReaction
	KindDerived
	KindFullRound
	KindSustained
	KindFree
)

var kindNames = map[ActionKind]string{
	KindStandard:  "STANDARD",
	KindReaction:  "REACTION",
	KindDerived:   "DERIVED",
	KindFullRound: "FULL_ROUND",
	KindSustained: "SUSTAINED",
	KindFree:      "FREE",
}

func (k ActionKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND_%d", int(k))
}

// ParseActionKind converts a catalog name such as "derived" to a kind.
func ParseActionKind(s string) (ActionKind, error) {
	for k, name := range kindNames {
		if equalFold(name, s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown action kind %q", s)
}

func equalFold(upper, s string) bool {
	if len(upper) != len(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c == '-' {
			c = '_'
		}
		if c != upper[i] {
			return false
		}
	}
	return true
}
