package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WatchlistEntry is an indicator (IP, domain, hash, user) under heightened monitoring.
type WatchlistEntry struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	Kind      string    `json:"kind" gorm:"index"`
	Value     string    `json:"value" gorm:"index"`
	Note      string    `json:"note" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns the uuid.
func (w *WatchlistEntry) BeforeCreate(tx *gorm.DB) error {
	if w.UUID == "" {
		w.UUID = uuid.NewString()
	}
	return nil
}
