// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the interaction lock store: an
// optimistic "claim" keyed by interaction id that makes at-least-once queue
// delivery safe to process.
//
// Contract:
//   - AcquireInteractionLock creates the lock if absent (conditional insert in
//     a transaction). It returns false when another delivery already holds or
//     finished the interaction.
//   - A "processing" lock older than ttl is considered abandoned by a crashed
//     worker and is reclaimed.
//   - MarkInteractionLockDone records that the interaction reached a final
//     outcome, success or not. A "done" lock is never reclaimed, so a
//     redelivered copy is dropped.
//   - ReleaseInteractionLock deletes the lock when processing was abandoned
//     before any outcome (shutdown), so the queue may deliver it again.
//   - SweepInteractionLocks removes done locks once no redelivery can matter.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/pollcord/internal/domain"
)

// ErrDuplicate indicates that a record with the same unique key already exists.
var ErrDuplicate = errors.New("duplicate")

// AcquireInteractionLock attempts to claim interactionID. It reports whether
// the caller now holds the lock.
func AcquireInteractionLock(ctx context.Context, db *gorm.DB, interactionID string, now time.Time, ttl time.Duration) (bool, error) {
	acquired := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.InteractionLock
		err := tx.Where("interaction_id = ?", interactionID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec := &domain.InteractionLock{
				InteractionID: interactionID,
				Status:        domain.LockProcessing,
				AcquiredAt:    now,
				UpdatedAt:     now,
			}
			if err := tx.Create(rec).Error; err != nil {
				if isUniqueViolation(err) {
					return nil
				}
				return err
			}
			acquired = true
			return nil
		case err != nil:
			return err
		}

		if existing.Status != domain.LockProcessing || now.Sub(existing.AcquiredAt) < ttl {
			return nil
		}

		// Abandoned claim: take it over only if nobody else did in between.
		res := tx.Model(&domain.InteractionLock{}).
			Where("interaction_id = ? AND status = ? AND acquired_at < ?", interactionID, domain.LockProcessing, now.Add(-ttl)).
			Updates(map[string]any{"acquired_at": now, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		acquired = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// ReleaseInteractionLock deletes the lock so a later delivery can claim it.
func ReleaseInteractionLock(ctx context.Context, db *gorm.DB, interactionID string) error {
	return db.WithContext(ctx).
		Where("interaction_id = ?", interactionID).
		Delete(&domain.InteractionLock{}).Error
}

// MarkInteractionLockDone flips the lock to its terminal "done" state.
func MarkInteractionLockDone(ctx context.Context, db *gorm.DB, interactionID string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.InteractionLock{}).
		Where("interaction_id = ?", interactionID).
		Updates(map[string]any{"status": domain.LockDone, "updated_at": now}).Error
}

// GetInteractionLock returns the lock for interactionID or ErrNotFound.
func GetInteractionLock(ctx context.Context, db *gorm.DB, interactionID string) (*domain.InteractionLock, error) {
	var rec domain.InteractionLock
	if err := db.WithContext(ctx).Where("interaction_id = ?", interactionID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// SweepInteractionLocks deletes "done" locks last touched before cutoff.
// Once the platform token window has passed no redelivery can produce a
// visible reply, so old done locks carry no information.
func SweepInteractionLocks(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.LockDone, cutoff).
		Delete(&domain.InteractionLock{})
	return res.RowsAffected, res.Error
}

// isUniqueViolation detects unique-constraint violations across drivers
// that may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
