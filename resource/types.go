package resource

// Handle is an opaque reference to an object in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// EventType classifies lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventRetained
	EventReleased
	EventDropped
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventRetained:
		return "retained"
	case EventReleased:
		return "released"
	case EventDropped:
		return "dropped"
	}
	return "unknown"
}

// Event describes one change to a handle. Refs is the reference count
// after the change.
type Event struct {
	Value    any
	Resource string
	Handle   Handle
	Refs     uint32
	Type     EventType
}

// Observer receives lifecycle events. Observers run synchronously on the
// goroutine that caused the event and must not call back into the table.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is optionally implemented by values that need cleanup once
// their last reference is released.
type Dropper interface {
	Drop()
}
