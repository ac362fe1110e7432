package model

import "time"

const (
	EventCapture  = "capture"
	EventQueue    = "queue"
	EventDispatch = "dispatch"
	EventFollowup = "followup"
	EventOptOut   = "optout"
	EventError    = "error"
	EventStartup  = "startup"
)

// Event is an append-only audit log entry.
type Event struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	Type      string    `gorm:"column:type;not null;index" json:"type"`
	Payload   string    `gorm:"column:payload" json:"payload"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (Event) TableName() string { return "events" }

// All lists every persisted model, in migration order.
func All() []any {
	return []any{&Lead{}, &Message{}, &OptOut{}, &DailyCounter{}, &Event{}}
}
