package tools

import (
	"github.com/hexline/hexline-server-go/internal/game/action"
	"github.com/hexline/hexline-server-go/internal/game/hex"
	"github.com/hexline/hexline-server-go/internal/game/occupancy"
	"github.com/hexline/hexline-server-go/internal/game/rules"
	"github.com/hexline/hexline-server-go/internal/game/unit"
)

// unitTarget resolves the actor standing on target.Cell and checks it is
// within reach of u. hostileOnly additionally requires another faction.
func unitTarget(env *action.Env, u *unit.Unit, target action.Target, reach int, hostileOnly bool) (occupancy.ActorInfo, rules.Reason) {
	anchor, _, placed := env.Occupancy.PlacementOf(u)
	if !placed {
		return occupancy.ActorInfo{}, rules.ReasonNotPlaced
	}
	info, ok := env.Occupancy.TryGetActorInfo(target.Cell)
	if !ok || string(info.ID) == u.ID {
		return occupancy.ActorInfo{}, rules.ReasonInvalidTarget
	}
	if target.UnitID != "" && string(info.ID) != target.UnitID {
		return occupancy.ActorInfo{}, rules.ReasonInvalidTarget
	}
	if hostileOnly && env.Units != nil {
		other, ok := env.Units.Unit(string(info.ID))
		if !ok || other.Faction == u.Faction {
			return occupancy.ActorInfo{}, rules.ReasonInvalidTarget
		}
	}
	self, ok := env.Occupancy.TryGetActorInfo(anchor)
	if !ok {
		return occupancy.ActorInfo{}, rules.ReasonNotPlaced
	}
	if reach < 1 {
		reach = 1
	}
	if minDistance(self.Cells, info.Cells) > reach {
		return occupancy.ActorInfo{}, rules.ReasonInvalidTarget
	}
	return info, rules.ReasonOK
}

func minDistance(a, b []hex.Cell) int {
	best := -1
	for _, x := range a {
		for _, y := range b {
			if d := hex.Distance(x, y); best < 0 || d < best {
				best = d
			}
		}
	}
	return best
}

func tagsMatch(accepted []string, previousID string, previousTags []string) bool {
	if len(accepted) == 0 {
		return true
	}
	for _, a := range accepted {
		if a == previousID {
			return true
		}
		for _, t := range previousTags {
			if a == t {
				return true
			}
		}
	}
	return false
}
