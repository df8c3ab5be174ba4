package models

import "time"

// Message is one stored chat message. Time is a unix timestamp in seconds with a
// fractional part, the way the recorder has always written it.
type Message struct {
	ID        uint    `gorm:"primaryKey;autoIncrement"`
	MessageID string  `gorm:"size:64;index"`
	ChatID    string  `gorm:"size:128;index:idx_messages_chat_time,priority:1;not null"`
	Time      float64 `gorm:"index:idx_messages_chat_time,priority:2;not null"`
	UserID    string  `gorm:"size:64;index"`
	UserName  string  `gorm:"size:255"`
	Text      string  `gorm:"type:text"`
	IsBot     bool    `gorm:"default:false"`
}

func (Message) TableName() string { return "messages" }

// ChatStream describes one conversation the bot has seen.
type ChatStream struct {
	ID             uint    `gorm:"primaryKey;autoIncrement"`
	StreamID       string  `gorm:"size:128;uniqueIndex;not null"`
	Platform       string  `gorm:"size:32"`
	GroupID        string  `gorm:"size:64"`
	GroupName      string  `gorm:"size:255"`
	UserID         string  `gorm:"size:64"`
	CreateTime     float64 `gorm:"not null"`
	LastActiveTime float64 `gorm:"index;not null"`
}

func (ChatStream) TableName() string { return "chat_streams" }

// UnixSeconds converts t to the float timestamp stored in Message.Time.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
