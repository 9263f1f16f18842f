// pkg/db/models.go
package db

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

type RegistrationStatus string

const (
	RegistrationActive    RegistrationStatus = "active"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

type PairStatus string

const (
	PairPending   PairStatus = "pending"
	PairConfirmed PairStatus = "confirmed"
	PairCancelled PairStatus = "cancelled"
)

// Live reports whether the pair still counts toward quotas and uniqueness.
func (s PairStatus) Live() bool {
	return s == PairPending || s == PairConfirmed
}

// LivePairStatuses is the status set counted by both pairing invariants.
var LivePairStatuses = []PairStatus{PairPending, PairConfirmed}

type User struct {
	ID            string  `gorm:"primaryKey;type:varchar(36)"`
	TelegramID    int64   `gorm:"uniqueIndex"`
	Username      string  `gorm:"type:varchar(64);not null;default:''"`
	FirstName     string  `gorm:"type:varchar(128);not null;default:''"`
	LastName      string  `gorm:"type:varchar(128);not null;default:''"`
	Gender        *string `gorm:"type:varchar(10)"` // male, female, other
	TotalSessions int     `gorm:"not null;default:0"`
	IsActive      bool    `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Topic is one node of the topic tree; full paths join names from the root
// with the topics separator.
type Topic struct {
	ID        string  `gorm:"primaryKey;type:varchar(36)"`
	TopicID   string  `gorm:"type:varchar(100);uniqueIndex;not null"`
	Name      string  `gorm:"type:varchar(255);not null"`
	ParentID  *string `gorm:"type:varchar(36);index"`
	Level     int     `gorm:"not null;default:1"`
	SortOrder int     `gorm:"not null;default:0"`
	IsActive  bool    `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Registration struct {
	ID            string             `gorm:"primaryKey;type:varchar(36)"`
	UserID        string             `gorm:"type:varchar(36);not null;index:idx_registrations_user_week"`
	WeekStart     time.Time          `gorm:"type:date;not null;index:idx_registrations_user_week;index:idx_registrations_week_status"`
	WeekEnd       time.Time          `gorm:"type:date;not null"`
	PreferredTime string             `gorm:"type:varchar(5);not null"` // HH:MM
	Status        RegistrationStatus `gorm:"type:varchar(16);not null;default:active;index:idx_registrations_week_status"`
	Topics        []RegistrationTopic
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CancelledAt   *time.Time
}

// TopicPaths returns the selected topics in their recorded order.
func (r Registration) TopicPaths() []string {
	paths := make([]string, 0, len(r.Topics))
	for _, topic := range r.Topics {
		paths = append(paths, topic.TopicPath)
	}
	return paths
}

type RegistrationTopic struct {
	ID             uint   `gorm:"primaryKey"`
	RegistrationID string `gorm:"type:varchar(36);not null;index"`
	UserID         string `gorm:"type:varchar(36);not null"`
	TopicPath      string `gorm:"type:varchar(255);not null"`
	Position       int    `gorm:"not null;default:0"`
	CreatedAt      time.Time
}

type Pair struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)"`
	UserA          string     `gorm:"column:user_a;type:varchar(36);not null;index"`
	UserB          string     `gorm:"column:user_b;type:varchar(36);not null;index"`
	RegistrationID string     `gorm:"type:varchar(36);not null;index"`
	WeekStart      time.Time  `gorm:"type:date;not null;index"`
	PairKey        string     `gorm:"type:varchar(128);not null;index"` // week|min(user)|max(user)
	Status         PairStatus `gorm:"type:varchar(16);not null;default:pending;index"`
	CreatedAt      time.Time
	ConfirmedAt    *time.Time
	CancelledAt    *time.Time
	UpdatedAt      time.Time
}

// Partner returns the other participant, or "" when userID is not part of
// the pair.
func (p Pair) Partner(userID string) string {
	switch userID {
	case p.UserA:
		return p.UserB
	case p.UserB:
		return p.UserA
	default:
		return ""
	}
}

func (p Pair) Involves(userID string) bool {
	return userID != "" && (p.UserA == userID || p.UserB == userID)
}

type QueuedMessage struct {
	ID           string         `gorm:"primaryKey;type:varchar(36)"`
	RecipientID  string         `gorm:"type:varchar(100);not null;index"`
	Body         string         `gorm:"type:text;not null"`
	Action       datatypes.JSON // inline keyboard, nil when absent
	Sent         bool           `gorm:"not null;default:false;index:idx_message_queue_unsent,priority:1"`
	CreatedAt    time.Time      `gorm:"not null;index:idx_message_queue_unsent,priority:2"`
	SentAt       *time.Time
	ClaimToken   *string `gorm:"type:varchar(36);index"`
	ClaimedUntil *time.Time
	Attempts     int `gorm:"not null;default:0"`
	LastError    *string
	DeadAt       *time.Time // set once attempts reach the configured limit
}

func (QueuedMessage) TableName() string {
	return "message_queue"
}

type Setting struct {
	Key         string `gorm:"primaryKey;type:varchar(100)"`
	Value       string `gorm:"type:text;not null"`
	Description string `gorm:"type:text;not null;default:''"`
	IsActive    bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Setting) TableName() string {
	return "orator_settings"
}

type FlowState struct {
	Key       string    `gorm:"primaryKey;type:varchar(191)"`
	Value     string    `gorm:"type:text;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AllModels lists every table owned by this service, in migration order.
func AllModels() []any {
	return []any{
		&User{},
		&Topic{},
		&Registration{},
		&RegistrationTopic{},
		&Pair{},
		&QueuedMessage{},
		&Setting{},
		&FlowState{},
	}
}
