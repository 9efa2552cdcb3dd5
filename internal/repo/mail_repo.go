package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/pollcord/internal/domain"
)

// EnqueueMail appends m to the outbox with status "pending". A message whose
// id is already in the outbox is left alone; the result reports whether a row
// was written.
func EnqueueMail(ctx context.Context, db *gorm.DB, m *domain.MailMessage) (bool, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Status = domain.MailPending
	m.CreatedAt = time.Now().UTC()
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListPendingMail returns up to limit pending messages, oldest first.
func ListPendingMail(ctx context.Context, db *gorm.DB, limit int) ([]domain.MailMessage, error) {
	var out []domain.MailMessage
	err := db.WithContext(ctx).
		Where("status = ?", domain.MailPending).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkMailSent records a successful delivery.
func MarkMailSent(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.MailMessage{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"status": domain.MailSent, "sent_at": at, "error": ""}).Error
}

// MarkMailFailed records a failed delivery attempt. The message stays pending
// until maxAttempts is reached, then moves to "error".
func MarkMailFailed(ctx context.Context, db *gorm.DB, id, reason string, maxAttempts int) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m domain.MailMessage
		if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
			return err
		}
		status := domain.MailPending
		if m.Attempts+1 >= maxAttempts {
			status = domain.MailError
		}
		return tx.Model(&domain.MailMessage{}).
			Where("id = ?", id).
			UpdateColumns(map[string]any{
				"attempts": m.Attempts + 1,
				"status":   status,
				"error":    reason,
			}).Error
	})
}
