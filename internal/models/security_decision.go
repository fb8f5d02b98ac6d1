package models

import (
	"time"
)

// SecurityDecision stores a block/allow decision enforced by the request gate.
// The BlockIP compensator removes a decision by its UUID.
type SecurityDecision struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	Source    string    `json:"source"` // e.g., aegis, manual
	Action    string    `json:"action"` // allow, block
	IP        string    `json:"ip" gorm:"index"`
	Details   string    `json:"details" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}
