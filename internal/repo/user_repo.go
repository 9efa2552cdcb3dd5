package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/pollcord/internal/domain"
)

// GetUserByDiscordID returns the account linked to a chat user id, or ErrNotFound.
func GetUserByDiscordID(ctx context.Context, db *gorm.DB, discordUserID string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("discord_user_id = ?", discordUserID).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUsersByIDs loads the users with the given ids. Unknown ids are skipped.
func GetUsersByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.User
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

// GetUsersByEmails loads the users registered under the given addresses.
// Matching is case-insensitive.
func GetUsersByEmails(ctx context.Context, db *gorm.DB, emails []string) ([]domain.User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	lowered := make([]string, 0, len(emails))
	for _, e := range emails {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(e)))
	}
	var out []domain.User
	err := db.WithContext(ctx).Where("LOWER(email) IN ?", lowered).Find(&out).Error
	return out, err
}
