// internal/model/lead.go
package model

import "time"

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusReplied   LeadStatus = "replied"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusBlocked   LeadStatus = "blocked"
)

var leadStatusRank = map[LeadStatus]int{
	LeadStatusNew:       0,
	LeadStatusContacted: 1,
	LeadStatusReplied:   2,
	LeadStatusConverted: 3,
}

// CanAdvanceTo reports whether the lifecycle allows moving from s to next.
// Blocked is reachable from anything and leaves nothing.
func (s LeadStatus) CanAdvanceTo(next LeadStatus) bool {
	if s == LeadStatusBlocked {
		return false
	}
	if next == LeadStatusBlocked {
		return true
	}
	cur, ok := leadStatusRank[s]
	if !ok {
		return false
	}
	nr, ok := leadStatusRank[next]
	if !ok {
		return false
	}
	return nr > cur
}

// Lead is one captured business, unique by tax id (CNPJ).
type Lead struct {
	ID           int        `gorm:"primaryKey" json:"id"`
	TaxID        string     `gorm:"column:tax_id;uniqueIndex;not null" json:"tax_id"`
	LegalName    string     `gorm:"column:legal_name" json:"legal_name"`
	City         string     `gorm:"column:city" json:"city"`
	State        string     `gorm:"column:state" json:"state"`
	ActivityCode string     `gorm:"column:activity_code" json:"activity_code"`
	Phone        string     `gorm:"column:phone" json:"phone"`
	PhoneE164    *string    `gorm:"column:phone_e164;index" json:"phone_e164,omitempty"`
	Email        string     `gorm:"column:email" json:"email"`
	Address      string     `gorm:"column:address" json:"address"`
	FoundedOn    string     `gorm:"column:founded_on" json:"founded_on"`
	Segment      string     `gorm:"column:segment" json:"segment"`
	Status       LeadStatus `gorm:"column:status;not null;default:new" json:"status"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (Lead) TableName() string { return "leads" }
