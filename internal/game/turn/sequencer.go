// Package turn sequences unit activations: friendly units act first, then
// hostile units, one active unit at a time.
package turn

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hexline/hexline-server-go/internal/game/action"
	"github.com/hexline/hexline-server-go/internal/game/rules"
	"github.com/hexline/hexline-server-go/internal/game/unit"
)

// ErrNoUnits is returned when a round has nobody to activate.
var ErrNoUnits = errors.New("turn: no units to activate")

// Sequencer tracks the active unit and turn progression.
type Sequencer struct {
	roster *unit.Roster
	ctrl   *action.Controller
	logger *zap.Logger

	mu         sync.Mutex
	order      []string
	index      int
	turnNumber int
	round      int
	active     string
	friendly   bool
	started    bool
}

// NewSequencer creates a sequencer over the roster. Call Start to begin.
func NewSequencer(roster *unit.Roster, ctrl *action.Controller, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{roster: roster, ctrl: ctrl, logger: logger}
}

// roundOrder lists friendly units then hostile ones, each in roster order.
func (s *Sequencer) roundOrder() []string {
	var friendly, hostile []string
	for _, u := range s.roster.Ordered() {
		if u.IsFriendly() {
			friendly = append(friendly, u.ID)
		} else {
			hostile = append(hostile, u.ID)
		}
	}
	return append(friendly, hostile...)
}

// Start begins round 1 with the first friendly unit.
func (s *Sequencer) Start(ctx context.Context) error {
	s.mu.Lock()
	s.order = s.roundOrder()
	if len(s.order) == 0 {
		s.mu.Unlock()
		return ErrNoUnits
	}
	s.index = -1
	s.round = 1
	s.turnNumber = 0
	s.started = true
	s.mu.Unlock()
	return s.advance(ctx)
}

// EndTurn ends the active unit's turn and starts the next one.
func (s *Sequencer) EndTurn(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNoUnits
	}
	ended := s.active
	s.mu.Unlock()

	if u, ok := s.roster.Unit(ended); ok {
		s.ctrl.CancelAim(u)
		s.ctrl.CancelChain(u)
	}
	ev := rules.NewEvent(rules.EventTurnEnded, ended, "")
	ev.Metadata = map[string]string{"turn": strconv.Itoa(s.TurnNumber())}
	s.ctrl.Env().Bus.Publish(ev)
	return s.advance(ctx)
}

// advance moves to the next unit still on the roster, starting a new round
// when the order is exhausted.
func (s *Sequencer) advance(ctx context.Context) error {
	var next *unit.Unit
	s.mu.Lock()
	for next == nil {
		s.index++
		if s.index >= len(s.order) {
			s.order = s.roundOrder()
			s.index = 0
			s.round++
			if len(s.order) == 0 {
				s.started = false
				s.mu.Unlock()
				return ErrNoUnits
			}
		}
		if u, ok := s.roster.Unit(s.order[s.index]); ok {
			next = u
		}
	}
	s.turnNumber++
	s.active = next.ID
	s.friendly = next.IsFriendly()
	turnNumber, round := s.turnNumber, s.round
	s.mu.Unlock()

	return s.beginTurn(ctx, next, turnNumber, round)
}

// beginTurn resets the unit's budget and per-turn usage, ticks its
// cooldowns through the tick policies, and resolves due full-round actions.
func (s *Sequencer) beginTurn(ctx context.Context, u *unit.Unit, turnNumber, round int) error {
	env := s.ctrl.Env()
	u.Budget.Reset()
	s.ctrl.ResetTurnUsage(u)

	delta := env.Evaluator.CooldownTick(u.RuleContext(), -env.Cooldowns.SecondsPerTurn())
	ready := env.Cooldowns.Tick(u.ID, delta)

	reports, err := s.ctrl.AdvanceFullRound(ctx, u)

	ev := rules.NewEvent(rules.EventTurnStarted, u.ID, "")
	ev.Metadata = map[string]string{
		"turn":  strconv.Itoa(turnNumber),
		"round": strconv.Itoa(round),
		"phase": string(u.Faction),
	}
	if len(ready) > 0 {
		ev.Metadata["ready"] = strings.Join(ready, ",")
	}
	env.Bus.Publish(ev)

	s.logger.Debug("turn started",
		zap.String("actor_id", u.ID),
		zap.Int("turn", turnNumber),
		zap.Int("round", round),
		zap.Int("cooldown_delta", delta),
		zap.Strings("ready", ready),
		zap.Int("full_round_resolved", len(reports)))
	return err
}

// ActiveActor returns the id of the unit whose turn it is.
func (s *Sequencer) ActiveActor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// IsFriendlyPhase reports whether a friendly unit is active.
func (s *Sequencer) IsFriendlyPhase() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && s.friendly
}

// TurnNumber returns the current turn number (1-based, counting every unit
// activation).
func (s *Sequencer) TurnNumber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnNumber
}

// Round returns the current round number.
func (s *Sequencer) Round() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

// CanActivate implements action.Gate. The active unit may use any kind;
// units of the other side may only react.
func (s *Sequencer) CanActivate(u *unit.Unit, kind rules.ActionKind) rules.Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return rules.ReasonNotReady
	}
	if u.ID == s.active {
		return rules.ReasonOK
	}
	if kind == rules.KindReaction && u.IsFriendly() != s.friendly {
		return rules.ReasonOK
	}
	return rules.ReasonWrongPhase
}
