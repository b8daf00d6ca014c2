package rules

import (
	"sort"
	"sync"
	"time"
)

// EventType indicates the category of a combat event.
type EventType string

const (
	EventActionResolved     EventType = "ACTION_RESOLVED"
	EventActionCancelled    EventType = "ACTION_CANCELLED"
	EventActionRejected     EventType = "ACTION_REJECTED"
	EventMoveRejected       EventType = "MOVE_REJECTED"
	EventAttackRejected     EventType = "ATTACK_REJECTED"
	EventAttackLanded       EventType = "ATTACK_LANDED"
	EventPhaseChanged       EventType = "PHASE_CHANGED"
	EventChainPromptOpened  EventType = "CHAIN_PROMPT_OPENED"
	EventFullRoundQueued    EventType = "FULL_ROUND_QUEUED"
	EventFullRoundTriggered EventType = "FULL_ROUND_TRIGGERED"
	EventTurnStarted        EventType = "TURN_STARTED"
	EventTurnEnded          EventType = "TURN_ENDED"
	EventOccupancyChanged   EventType = "OCCUPANCY_CHANGED"
)

// Event is a single combat notification. Message is display text only.
type Event struct {
	Type      EventType         `json:"type"`
	ActorID   string            `json:"actor_id,omitempty"`
	AbilityID string            `json:"ability_id,omitempty"`
	TargetID  string            `json:"target_id,omitempty"`
	Reason    Reason            `json:"reason,omitempty"`
	Message   string            `json:"message,omitempty"`
	Amount    int               `json:"amount,omitempty"`
	Version   uint64            `json:"version,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewEvent creates an event with common fields populated.
func NewEvent(eventType EventType, actorID, abilityID string) Event {
	return Event{
		Type:      eventType,
		ActorID:   actorID,
		AbilityID: abilityID,
		Timestamp: time.Now(),
		Metadata:  make(map[string]string),
	}
}

// NewRejection creates a rejection event carrying a reason and its display message.
func NewRejection(eventType EventType, actorID, abilityID string, reason Reason) Event {
	evt := NewEvent(eventType, actorID, abilityID)
	evt.Reason = reason
	evt.Message = reason.Message()
	return evt
}

// Listener receives every published event.
type Listener func(Event)

type typedListener struct {
	handle    int
	eventType EventType
	callback  func(Event)
}

// EventBus is a synchronous observer registry. Listeners are invoked outside
// the bus lock, so a listener may subscribe or unsubscribe while handling an
// event; such changes take effect from the next publish.
type EventBus struct {
	mu             sync.RWMutex
	nextHandle     int
	listeners      map[int]Listener
	typedListeners map[EventType][]typedListener
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		nextHandle:     1,
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]typedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], typedListener{
		handle:    handle,
		eventType: eventType,
		callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener identified by handle.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// ListenerCount returns the number of registered listeners of both kinds.
func (bus *EventBus) ListenerCount() int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	n := len(bus.listeners)
	for _, l := range bus.typedListeners {
		n += len(l)
	}
	return n
}

// Publish delivers the event to all registered listeners synchronously, in
// subscription order.
func (bus *EventBus) Publish(event Event) {
	if bus == nil {
		return
	}
	bus.mu.RLock()
	handles := make([]int, 0, len(bus.listeners))
	for h := range bus.listeners {
		handles = append(handles, h)
	}
	sort.Ints(handles)
	calls := make([]func(Event), 0, len(handles)+len(bus.typedListeners[event.Type]))
	for _, h := range handles {
		calls = append(calls, bus.listeners[h])
	}
	for _, tl := range bus.typedListeners[event.Type] {
		calls = append(calls, tl.callback)
	}
	bus.mu.RUnlock()

	for _, call := range calls {
		call(event)
	}
}

// Subscriptions groups handles so an owner can release them together at
// teardown.
type Subscriptions struct {
	bus     *EventBus
	mu      sync.Mutex
	handles []int
}

// Group creates a subscription group bound to the bus.
func (bus *EventBus) Group() *Subscriptions {
	return &Subscriptions{bus: bus}
}

// On subscribes a typed callback and tracks its handle.
func (s *Subscriptions) On(eventType EventType, callback func(Event)) {
	h := s.bus.SubscribeTyped(eventType, callback)
	if h < 0 {
		return
	}
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
}

// All subscribes a listener for every event and tracks its handle.
func (s *Subscriptions) All(listener Listener) {
	h := s.bus.Subscribe(listener)
	if h < 0 {
		return
	}
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
}

// Close unsubscribes every tracked handle. Safe to call more than once.
func (s *Subscriptions) Close() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()
	for _, h := range handles {
		s.bus.Unsubscribe(h)
	}
}
