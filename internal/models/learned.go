package models

// Learned state accumulated while chatting. The bot never reads these tables
// itself; they are populated by companion workers and wiped by amnesia.

type PersonInfo struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	PersonID     string `gorm:"size:128;uniqueIndex;not null"`
	Platform     string `gorm:"size:32"`
	UserID       string `gorm:"size:64;index"`
	Nickname     string `gorm:"size:255"`
	Impression   string `gorm:"type:text"`
	KnowTimes    int
	LastKnowTime float64
}

func (PersonInfo) TableName() string { return "person_info" }

// GroupInfo is optional; older deployments never created the table.
type GroupInfo struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	GroupID    string `gorm:"size:64;uniqueIndex;not null"`
	Platform   string `gorm:"size:32"`
	GroupName  string `gorm:"size:255"`
	Impression string `gorm:"type:text"`
	UpdateTime float64
}

func (GroupInfo) TableName() string { return "group_info" }

type Expression struct {
	ID         uint    `gorm:"primaryKey;autoIncrement"`
	ChatID     string  `gorm:"size:128;index"`
	Situation  string  `gorm:"type:text"`
	Style      string  `gorm:"type:text"`
	Count      float64 `gorm:"default:1"`
	LastActive float64
	Type       string `gorm:"size:32"`
}

func (Expression) TableName() string { return "expression" }

type ActionRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	ActionID   string `gorm:"size:64;index"`
	ChatID     string `gorm:"size:128;index"`
	ActionName string `gorm:"size:64"`
	ActionData string `gorm:"type:text"`
	ActionDone bool
	Time       float64 `gorm:"index"`
}

func (ActionRecord) TableName() string { return "action_records" }

type ChatHistory struct {
	ID        uint    `gorm:"primaryKey;autoIncrement"`
	ChatID    string  `gorm:"size:128;index"`
	StartTime float64 `gorm:"index"`
	EndTime   float64
	Theme     string `gorm:"size:255"`
	Summary   string `gorm:"type:text"`
}

func (ChatHistory) TableName() string { return "chat_history" }

type ThinkingBack struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	ChatID     string `gorm:"size:128;index"`
	Question   string `gorm:"type:text"`
	Answer     string `gorm:"type:text"`
	CreateTime float64
}

func (ThinkingBack) TableName() string { return "thinking_back" }

type Jargon struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	ChatID  string `gorm:"size:128;index"`
	Content string `gorm:"size:255;index"`
	Meaning string `gorm:"type:text"`
	Count   int    `gorm:"default:1"`
}

func (Jargon) TableName() string { return "jargon" }
