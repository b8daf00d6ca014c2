package action

import (
	"sync"

	"github.com/google/uuid"

	"github.com/hexline/hexline-server-go/internal/game/cost"
	"github.com/hexline/hexline-server-go/internal/game/unit"
)

// QueuedFullRound is a full-round action waiting for its turns to elapse.
type QueuedFullRound struct {
	ID        string
	Unit      *unit.Unit
	Tool      FullRoundTool
	Target    Target
	Decision  cost.Decision
	TurnsLeft int
}

// FullRoundQueue holds queued full-round actions in queue order.
type FullRoundQueue struct {
	mu    sync.Mutex
	items []*QueuedFullRound
}

// NewFullRoundQueue creates an empty queue.
func NewFullRoundQueue() *FullRoundQueue {
	return &FullRoundQueue{items: make([]*QueuedFullRound, 0, 4)}
}

// Push queues an item and assigns it an id.
func (q *FullRoundQueue) Push(item *QueuedFullRound) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	q.items = append(q.items, item)
	return item.ID
}

// Advance counts one elapsed turn for the actor's items and removes and
// returns those that are due.
func (q *FullRoundQueue) Advance(actorID string) []*QueuedFullRound {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []*QueuedFullRound
	kept := q.items[:0]
	for _, item := range q.items {
		if item.Unit.ID == actorID {
			item.TurnsLeft--
			if item.TurnsLeft <= 0 {
				due = append(due, item)
				continue
			}
		}
		kept = append(kept, item)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	return due
}

// Pending reports whether the actor has a queued item.
func (q *FullRoundQueue) Pending(actorID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.Unit.ID == actorID {
			return true
		}
	}
	return false
}

// RemoveActor drops and returns every item queued by the actor.
func (q *FullRoundQueue) RemoveActor(actorID string) []*QueuedFullRound {
	q.mu.Lock()
	defer q.mu.Unlock()
	var removed []*QueuedFullRound
	kept := make([]*QueuedFullRound, 0, len(q.items))
	for _, item := range q.items {
		if item.Unit.ID == actorID {
			removed = append(removed, item)
			continue
		}
		kept = append(kept, item)
	}
	q.items = kept
	return removed
}

// List returns a copy of the queue.
func (q *FullRoundQueue) List() []QueuedFullRound {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedFullRound, len(q.items))
	for i, item := range q.items {
		out[i] = *item
	}
	return out
}
