// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for notification
// events and the per-user in-app notifications they fan out into.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/pollcord/internal/domain"
)

// CreateEvent inserts ev with status "queued". A missing id is generated;
// reusing an existing id yields ErrDuplicate.
func CreateEvent(ctx context.Context, db *gorm.DB, ev *domain.NotificationEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.Status = domain.EventQueued
	now := time.Now().UTC()
	ev.CreatedAt, ev.UpdatedAt = now, now
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetEvent fetches a notification event by id, or ErrNotFound.
func GetEvent(ctx context.Context, db *gorm.DB, id string) (*domain.NotificationEvent, error) {
	var ev domain.NotificationEvent
	if err := db.WithContext(ctx).Where("id = ?", id).First(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

// EventOutcome is the terminal result recorded on an event.
type EventOutcome struct {
	Status    string
	ChatError string
	Error     string
}

// MarkEventProcessing moves the event into "processing" and clears errors
// left by an earlier attempt.
func MarkEventProcessing(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.NotificationEvent{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":     domain.EventProcessing,
			"chat_error": "",
			"error":      "",
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishEvent records the outcome of a processing attempt.
func FinishEvent(ctx context.Context, db *gorm.DB, id string, out EventOutcome) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.NotificationEvent{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":       out.Status,
			"chat_error":   out.ChatError,
			"error":        out.Error,
			"processed_at": now,
			"updated_at":   now,
		}).Error
}

// CreateNotificationIfAbsent inserts n unless a notification with the same id
// already exists. It reports whether a row was written.
func CreateNotificationIfAbsent(ctx context.Context, db *gorm.DB, n *domain.Notification) (bool, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(n)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountNotifications returns how many in-app notifications userID has.
func CountNotifications(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}
