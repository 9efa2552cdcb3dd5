// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Interaction lock states.
const (
	LockProcessing = "processing"
	LockDone       = "done"
)

// InteractionLock is the per-interaction claim record that makes queue
// redelivery safe. It is created with a conditional insert when processing
// starts and flipped to "done" once the interaction has a final outcome, so a
// redelivered copy of the same payload is dropped instead of reprocessed.
//
// A lock still in "processing" after the configured TTL belonged to a worker
// that died mid-flight and may be reclaimed.
type InteractionLock struct {
	InteractionID string    `gorm:"type:varchar(32);primaryKey"`
	Status        string    `gorm:"type:varchar(16);not null;index"`
	AcquiredAt    time.Time `gorm:"not null;index"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName implements the GORM tabler interface.
func (InteractionLock) TableName() string { return "interaction_locks" }
