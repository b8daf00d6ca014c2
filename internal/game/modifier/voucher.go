package modifier

import (
	"sync"

	"github.com/hexline/hexline-server-go/internal/game/rules"
)

// Voucher makes an ability free for a limited number of uses. A charge is
// only spent when the action actually resolves: confirmation registers a
// pending use, resolution consumes it, and cancellation or rejection
// discards it.
type Voucher struct {
	Match

	mu      sync.Mutex
	charges int
	pending map[string]int
	subs    *rules.Subscriptions
}

// NewVoucher creates a voucher with the given number of charges.
func NewVoucher(match Match, charges int) *Voucher {
	return &Voucher{Match: match, charges: charges, pending: make(map[string]int)}
}

// Charges returns the remaining charges.
func (v *Voucher) Charges() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.charges
}

// Pending returns the number of confirmed but unresolved uses.
func (v *Voucher) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, c := range v.pending {
		n += c
	}
	return n
}

// ModifyCost implements CostModifier. Preview evaluations see the discount
// but never register a pending use.
func (v *Voucher) ModifyCost(rc Context, cost *Cost) {
	if !v.applies(rc) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	inFlight := 0
	for _, c := range v.pending {
		inFlight += c
	}
	if v.charges-inFlight <= 0 {
		return
	}
	*cost = Cost{}
	if !rc.Preview {
		v.pending[rc.ActorID]++
	}
}

// Attach subscribes the voucher to resolution, cancellation, and rejection
// events.
func (v *Voucher) Attach(bus *rules.EventBus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.subs != nil {
		v.subs.Close()
	}
	v.subs = bus.Group()
	v.subs.On(rules.EventActionResolved, v.onResolved)
	v.subs.On(rules.EventActionCancelled, v.onCancelled)
	v.subs.On(rules.EventActionRejected, v.onCancelled)
}

// Detach drops the voucher's event subscriptions.
func (v *Voucher) Detach() {
	v.mu.Lock()
	subs := v.subs
	v.subs = nil
	v.mu.Unlock()
	if subs != nil {
		subs.Close()
	}
}

func (v *Voucher) matches(event rules.Event) bool {
	return (v.AbilityID == "" || event.AbilityID == v.AbilityID) &&
		(v.ActorID == "" || event.ActorID == v.ActorID)
}

func (v *Voucher) onResolved(event rules.Event) {
	if !v.matches(event) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pending[event.ActorID] == 0 {
		return
	}
	v.release(event.ActorID)
	if v.charges > 0 {
		v.charges--
	}
}

func (v *Voucher) onCancelled(event rules.Event) {
	if !v.matches(event) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.release(event.ActorID)
}

func (v *Voucher) release(actorID string) {
	if v.pending[actorID] <= 1 {
		delete(v.pending, actorID)
		return
	}
	v.pending[actorID]--
}
