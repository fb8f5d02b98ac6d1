package models

import "time"

// ActionLock is the lease row used to serialize mutations of one action
// across processes sharing the database.
type ActionLock struct {
	ActionID  string    `gorm:"primaryKey;type:char(36)"`
	Token     string    `gorm:"not null;default:''"`
	ExpiresAt time.Time `gorm:"index"`
}
