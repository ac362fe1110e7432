package model

import "time"

type OptOutSource string

const (
	OptOutUser    OptOutSource = "user"
	OptOutAdmin   OptOutSource = "admin"
	OptOutWebhook OptOutSource = "webhook"
)

// OptOut is a phone (E.164) that must never be messaged again.
type OptOut struct {
	ID        int          `gorm:"primaryKey" json:"id"`
	Phone     string       `gorm:"column:phone;uniqueIndex;not null" json:"phone"`
	Source    OptOutSource `gorm:"column:source;not null;default:user" json:"source"`
	CreatedAt time.Time    `gorm:"column:created_at;not null" json:"created_at"`
}

func (OptOut) TableName() string { return "opt_outs" }
