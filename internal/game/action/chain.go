package action

import (
	"github.com/hexline/hexline-server-go/internal/game/rules"
	"github.com/hexline/hexline-server-go/internal/game/unit"
)

// ChainRules decides which follow-up kinds a chain prompt offers.
type ChainRules interface {
	Allowed(base rules.ActionKind, friendly bool, depth int) []rules.ActionKind
}

// DefaultChainRules narrows the allowed set per layer: a standard action may
// be followed by a derived one, reactions and derived actions by free ones,
// and every deeper layer only by free actions until MaxDepth.
type DefaultChainRules struct {
	MaxDepth int
}

// Allowed implements ChainRules.
func (r DefaultChainRules) Allowed(base rules.ActionKind, friendly bool, depth int) []rules.ActionKind {
	if depth >= r.MaxDepth {
		return nil
	}
	if depth > 0 {
		return []rules.ActionKind{rules.KindFree}
	}
	switch base {
	case rules.KindStandard:
		return []rules.ActionKind{rules.KindDerived}
	case rules.KindReaction:
		if friendly {
			return []rules.ActionKind{rules.KindFree}
		}
		return nil
	case rules.KindDerived:
		return []rules.ActionKind{rules.KindFree}
	}
	return nil
}

// ChainSource lists the tools a unit could chain with.
type ChainSource interface {
	ChainCandidates(u *unit.Unit) []Tool
}

func kindAllowed(kind rules.ActionKind, allowed []rules.ActionKind) bool {
	for _, k := range allowed {
		if k == kind {
			return true
		}
	}
	return false
}
