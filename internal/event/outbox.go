// internal/event/outbox.go
package event

// Outbox buffers events produced while an operation executes. The
// engine drains it into envelopes only after the operation succeeds;
// a failed operation discards the buffer, keeping the event log
// all-or-nothing.
//
// Not thread-safe — only accessed under the engine's execution slot.
type Outbox struct {
	events []Event
}

func NewOutbox() *Outbox {
	return &Outbox{events: make([]Event, 0, 8)}
}

// Record appends an event to the pending buffer.
func (o *Outbox) Record(evt Event) {
	o.events = append(o.events, evt)
}

// Drain returns all pending events and resets the buffer.
func (o *Outbox) Drain() []Event {
	drained := o.events
	o.events = make([]Event, 0, 8)
	return drained
}

// Discard drops all pending events.
func (o *Outbox) Discard() {
	o.events = o.events[:0]
}

// Len reports the number of pending events.
func (o *Outbox) Len() int {
	return len(o.events)
}
