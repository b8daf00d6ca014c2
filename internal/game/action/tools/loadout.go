package tools

import (
	"sync"

	"github.com/hexline/hexline-server-go/internal/game/action"
	"github.com/hexline/hexline-server-go/internal/game/unit"
)

// Loadout maps units to the tools they carry. It is the controller's chain
// source.
type Loadout struct {
	mu    sync.RWMutex
	tools map[string][]action.Tool
}

// NewLoadout creates an empty loadout.
func NewLoadout() *Loadout {
	return &Loadout{tools: make(map[string][]action.Tool)}
}

// Assign appends tools to a unit's loadout.
func (l *Loadout) Assign(unitID string, tools ...action.Tool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tools[unitID] = append(l.tools[unitID], tools...)
}

// Tools returns a copy of the unit's tools.
func (l *Loadout) Tools(unitID string) []action.Tool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]action.Tool, len(l.tools[unitID]))
	copy(out, l.tools[unitID])
	return out
}

// Tool looks up one of the unit's tools by id.
func (l *Loadout) Tool(unitID, toolID string) (action.Tool, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, t := range l.tools[unitID] {
		if t.ID() == toolID {
			return t, true
		}
	}
	return nil, false
}

// Drop forgets a unit's tools.
func (l *Loadout) Drop(unitID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.tools, unitID)
}

// ChainCandidates implements action.ChainSource.
func (l *Loadout) ChainCandidates(u *unit.Unit) []action.Tool {
	return l.Tools(u.ID)
}
