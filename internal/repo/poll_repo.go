// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for polls and the
// chat-card metadata embedded on them.
//
// Polls are owned by the scheduling application; the bridge only reads them
// and writes the embedded ChatLink columns (prefix "discord_"). Writes to the
// link go through column maps so an unrelated concurrent write to the poll
// body is never clobbered.
//
// Error semantics:
//   - Missing polls return gorm.ErrRecordNotFound (exported as ErrNotFound).
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"github.com/tbourn/pollcord/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetPoll fetches a poll by id, or ErrNotFound.
func GetPoll(ctx context.Context, db *gorm.DB, id string) (*domain.Poll, error) {
	var p domain.Poll
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveChatLink overwrites the embedded chat link columns of pollID.
// It returns ErrNotFound when the poll no longer exists.
func SaveChatLink(ctx context.Context, db *gorm.DB, pollID string, link domain.ChatLink) error {
	snapshot, err := json.Marshal(link.SlotSnapshot)
	if err != nil {
		return err
	}
	res := db.WithContext(ctx).
		Model(&domain.Poll{}).
		Where("id = ?", pollID).
		UpdateColumns(map[string]any{
			"discord_message_id":       link.MessageID,
			"discord_channel_id":       link.ChannelID,
			"discord_guild_id":         link.GuildID,
			"discord_last_synced_hash": link.LastSyncedHash,
			"discord_pending_sync":     link.PendingSync,
			"discord_slot_set_hash":    link.SlotSetHash,
			"discord_slot_snapshot":    string(snapshot),
			"discord_last_synced_at":   link.LastSyncedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPendingSync flips only the pending flag, leaving the last synced hash
// untouched so the next attempt still sees the content as changed.
func SetPendingSync(ctx context.Context, db *gorm.DB, pollID string, pending bool) error {
	res := db.WithContext(ctx).
		Model(&domain.Poll{}).
		Where("id = ?", pollID).
		UpdateColumn("discord_pending_sync", pending)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPendingSyncPollIDs returns up to limit ids of linked polls whose last
// card sync failed.
func ListPendingSyncPollIDs(ctx context.Context, db *gorm.DB, limit int) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Poll{}).
		Where("discord_pending_sync = ? AND discord_channel_id <> ''", true).
		Order("updated_at asc").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
