package bus

import "time"

// Event kinds published by chatsync components. Subscribers filter by
// prefix, so "timeline." receives every timeline event.
const (
	KindTimelineChanged = "timeline.changed"
	KindStatusChanged   = "session.status_changed"
	KindMessageInserted = "message.inserted"
	KindSendAck         = "send.ack"
	KindSendFailed      = "send.failed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
