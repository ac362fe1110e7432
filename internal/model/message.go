// internal/model/message.go
package model

import "time"

type MessageKind string

const (
	KindFirst       MessageKind = "first"
	KindFollowup24h MessageKind = "followup_24h"
	KindFollowup72h MessageKind = "followup_72h"
	KindFollowup7d  MessageKind = "followup_7d"
)

type MessageStatus string

const (
	MessageQueued  MessageStatus = "queued"
	MessageSending MessageStatus = "sending" // claimed by a dispatch run, gateway call in flight
	MessageSent    MessageStatus = "sent"
	MessageFailed  MessageStatus = "failed"
)

// Message is one outbound attempt tied to a lead. At most one per (lead, kind).
type Message struct {
	ID                int           `gorm:"primaryKey" json:"id"`
	LeadID            int           `gorm:"column:lead_id;not null;uniqueIndex:idx_messages_lead_kind" json:"lead_id"`
	Kind              MessageKind   `gorm:"column:kind;not null;uniqueIndex:idx_messages_lead_kind" json:"kind"`
	TemplateKey       string        `gorm:"column:template_key" json:"template_key"`
	Text              string        `gorm:"column:text;not null" json:"text"`
	Status            MessageStatus `gorm:"column:status;not null;default:queued;index" json:"status"`
	Attempts          int           `gorm:"column:attempts;not null;default:0" json:"attempts"`
	QueuedAt          time.Time     `gorm:"column:queued_at;not null" json:"queued_at"`
	ClaimedAt         *time.Time    `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	SentAt            *time.Time    `gorm:"column:sent_at" json:"sent_at,omitempty"`
	ProviderMessageID string        `gorm:"column:provider_message_id" json:"provider_message_id,omitempty"`
	Error             string        `gorm:"column:error" json:"error,omitempty"`
}

func (Message) TableName() string { return "messages" }
