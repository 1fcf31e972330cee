package store

// EventType names a change or session event sent to subscribers
type EventType string

const (
	EventUpdated EventType = "UPDATED" // a key was written
	EventDeleted EventType = "DELETED" // a key was removed
	EventNew     EventType = "NEW"     // sent to a subscriber right after it attached
	EventOpened  EventType = "OPENED"  // another subscriber attached to the database
	EventClosed  EventType = "CLOSED"  // a subscriber detached
	EventError   EventType = "ERROR"   // the subscriber protocol failed
)
