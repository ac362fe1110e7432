package model

// DailyCounter holds the number of messages sent on one local calendar day.
type DailyCounter struct {
	Day       string `gorm:"column:day;primaryKey" json:"day"` // YYYY-MM-DD
	SentCount int    `gorm:"column:sent_count;not null;default:0" json:"sent_count"`
}

func (DailyCounter) TableName() string { return "daily_counters" }
