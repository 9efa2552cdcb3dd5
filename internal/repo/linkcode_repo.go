package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/pollcord/internal/domain"
)

// IssueLinkCode stores a fresh code for (codeType, targetID), replacing any
// previous live code for the same target.
func IssueLinkCode(ctx context.Context, db *gorm.DB, codeType, targetID, code, userID string, ttl time.Duration) (*domain.LinkCode, error) {
	now := time.Now().UTC()
	lc := &domain.LinkCode{
		ID:               uuid.NewString(),
		Type:             codeType,
		TargetID:         targetID,
		Code:             code,
		RequestingUserID: userID,
		ExpiresAt:        now.Add(ttl),
		CreatedAt:        now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("type = ? AND target_id = ?", codeType, targetID).
			Delete(&domain.LinkCode{}).Error; err != nil {
			return err
		}
		return tx.Create(lc).Error
	})
	if err != nil {
		return nil, err
	}
	return lc, nil
}

// GetLinkCode returns the live code for (codeType, targetID), or ErrNotFound.
func GetLinkCode(ctx context.Context, db *gorm.DB, codeType, targetID string) (*domain.LinkCode, error) {
	var lc domain.LinkCode
	err := db.WithContext(ctx).
		Where("type = ? AND target_id = ?", codeType, targetID).
		First(&lc).Error
	if err != nil {
		return nil, err
	}
	return &lc, nil
}

// RecordFailedLinkAttempt increments the attempt counter of code id and
// deletes the code once maxAttempts is reached. It reports whether the code
// was invalidated.
func RecordFailedLinkAttempt(ctx context.Context, db *gorm.DB, id string, maxAttempts int) (bool, error) {
	invalidated := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lc domain.LinkCode
		if err := tx.Where("id = ?", id).First(&lc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				invalidated = true
				return nil
			}
			return err
		}
		if lc.Attempts+1 >= maxAttempts {
			invalidated = true
			return tx.Delete(&domain.LinkCode{}, "id = ?", id).Error
		}
		return tx.Model(&domain.LinkCode{}).
			Where("id = ?", id).
			UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
	})
	return invalidated, err
}

// DeleteLinkCode removes code id. Deleting an absent code is not an error.
func DeleteLinkCode(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.LinkCode{}).Error
}
