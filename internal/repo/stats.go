package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/pollcord/internal/domain"
)

// CountVoters returns how many users have a vote on pollID. Each user has
// at most one vote row per poll, so this is the poll's response count.
func CountVoters(ctx context.Context, db *gorm.DB, pollID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Vote{}).
		Where("poll_id = ?", pollID).
		Count(&n).Error
	return n, err
}
