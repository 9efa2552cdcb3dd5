package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/pollcord/internal/domain"
)

// GetGroup fetches a group by id, or ErrNotFound.
func GetGroup(ctx context.Context, db *gorm.DB, id string) (*domain.Group, error) {
	var g domain.Group
	if err := db.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGroupByChannel returns the group bound to channelID, or ErrNotFound.
func GetGroupByChannel(ctx context.Context, db *gorm.DB, channelID string) (*domain.Group, error) {
	var g domain.Group
	err := db.WithContext(ctx).
		Where("discord_channel_id = ?", channelID).
		First(&g).Error
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// RedeemGroupLink consumes link code codeID and binds groupID to the channel
// in a single transaction. A code consumed concurrently by another redemption
// yields ErrNotFound and leaves the group untouched.
func RedeemGroupLink(ctx context.Context, db *gorm.DB, codeID, groupID string, b domain.ChannelBinding) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := tx.Where("id = ?", codeID).Delete(&domain.LinkCode{})
		if del.Error != nil {
			return del.Error
		}
		if del.RowsAffected == 0 {
			return ErrNotFound
		}
		res := tx.Model(&domain.Group{}).
			Where("id = ?", groupID).
			UpdateColumns(map[string]any{
				"discord_channel_id": b.ChannelID,
				"discord_guild_id":   b.GuildID,
				"discord_linked_by":  b.LinkedBy,
				"discord_linked_at":  b.LinkedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// UnbindGroupChannel clears the chat binding of every group linked to
// channelID and returns how many were unbound.
func UnbindGroupChannel(ctx context.Context, db *gorm.DB, channelID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Group{}).
		Where("discord_channel_id = ?", channelID).
		UpdateColumns(map[string]any{
			"discord_channel_id": "",
			"discord_guild_id":   "",
			"discord_linked_by":  "",
			"discord_linked_at":  nil,
		})
	return res.RowsAffected, res.Error
}
