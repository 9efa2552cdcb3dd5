package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/pollcord/internal/domain"
)

// GetVote returns the vote userID cast on pollID, or ErrNotFound.
func GetVote(ctx context.Context, db *gorm.DB, pollID, userID string) (*domain.Vote, error) {
	var v domain.Vote
	err := db.WithContext(ctx).
		Where("poll_id = ? AND user_id = ?", pollID, userID).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// UpsertVote writes v at its deterministic id, replacing the selections of an
// earlier vote by the same user on the same poll.
func UpsertVote(ctx context.Context, db *gorm.DB, v *domain.Vote) error {
	now := time.Now().UTC()
	if v.ID == "" {
		v.ID = domain.VoteID(v.PollID, v.UserID)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "poll_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"votes", "no_times_work", "source", "updated_at"}),
		}).
		Create(v).Error
}
