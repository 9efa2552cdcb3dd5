// Package services – CardSyncService
//
// CardSyncService keeps the chat card of a linked poll in step with the
// database. Each run recomputes the sync hash and only calls out when it
// differs from the hash of the content already posted. Outbound failures
// are recorded as pendingSync on the poll instead of surfacing, and the
// reconcile loop schedules those polls again later.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/tbourn/pollcord/internal/discord"
	"github.com/tbourn/pollcord/internal/domain"
	"github.com/tbourn/pollcord/internal/observability"
	"github.com/tbourn/pollcord/internal/queue"
	"github.com/tbourn/pollcord/internal/repo"
)

// CardPoster is the part of the chat client used for cards.
type CardPoster interface {
	CreateMessage(ctx context.Context, channelID string, msg discord.MessageParams) (*discord.Message, error)
	EditMessage(ctx context.Context, channelID, messageID string, msg discord.MessageParams) (*discord.Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// TaskQueue accepts keyed, delayed tasks.
type TaskQueue interface {
	Enqueue(ctx context.Context, key string, payload []byte, delay time.Duration) (string, error)
}

// SyncRequest is the payload of a card sync task. Deleted requests carry
// the card location because the poll row may already be gone.
type SyncRequest struct {
	PollID    string `json:"poll_id"`
	Deleted   bool   `json:"deleted,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Sync outcomes, also used as metric labels.
const (
	SyncUnchanged = "unchanged"
	SyncCreated   = "created"
	SyncEdited    = "edited"
	SyncDeleted   = "deleted"
	SyncPending   = "pending"
	SyncSkipped   = "skipped"
)

// CardSyncService renders poll cards into their linked channels.
type CardSyncService struct {
	DB    *gorm.DB
	Chat  CardPoster
	Queue TaskQueue

	// Debounce delays scheduled syncs so a burst of writes to one poll
	// produces one outbound call.
	Debounce   time.Duration
	AppBaseURL string
	Now        func() time.Time
}

func (s *CardSyncService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Schedule enqueues a debounced sync for pollID. The task is keyed by poll
// id, so a sync already waiting is replaced and pushed back.
func (s *CardSyncService) Schedule(ctx context.Context, pollID string) error {
	return s.enqueue(ctx, SyncRequest{PollID: pollID}, s.Debounce)
}

// ScheduleDelete enqueues removal of the card at (channelID, messageID) for
// a poll that was deleted.
func (s *CardSyncService) ScheduleDelete(ctx context.Context, pollID, channelID, messageID string) error {
	return s.enqueue(ctx, SyncRequest{PollID: pollID, Deleted: true, ChannelID: channelID, MessageID: messageID}, 0)
}

func (s *CardSyncService) enqueue(ctx context.Context, req SyncRequest, delay time.Duration) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := s.Queue.Enqueue(ctx, req.PollID, payload, delay); err != nil {
		return fmt.Errorf("enqueue card sync: %w", err)
	}
	return nil
}

// HandleTask adapts Sync to the queue runner.
func (s *CardSyncService) HandleTask(ctx context.Context, t *queue.Task) error {
	var req SyncRequest
	if err := json.Unmarshal(t.Payload, &req); err != nil || req.PollID == "" {
		return queue.Permanent(fmt.Errorf("decode card sync request: %v", err))
	}
	_, err := s.Sync(ctx, req)
	return err
}

// ReconcilePending schedules up to limit polls whose last sync failed and
// returns how many were scheduled.
func (s *CardSyncService) ReconcilePending(ctx context.Context, limit int) (int, error) {
	ids, err := repo.ListPendingSyncPollIDs(ctx, s.DB, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if err := s.Schedule(ctx, id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Sync brings the card of req.PollID up to date and reports what it did.
// Outbound failures on a live poll are recorded as pending and are not
// returned; the only errors are database failures and failed deletes of
// cards whose poll is gone.
func (s *CardSyncService) Sync(ctx context.Context, req SyncRequest) (outcome string, err error) {
	ctx, span := otel.Tracer("services/CardSyncService").Start(ctx, "CardSyncService.Sync")
	defer func() {
		span.SetAttributes(attribute.String("card.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "card sync")
		}
		span.End()
		if outcome != "" {
			observability.CardSyncs.WithLabelValues(outcome).Inc()
		}
	}()
	span.SetAttributes(attribute.String("poll.id", req.PollID))
	logger := log.With().Str("poll_id", req.PollID).Logger()

	if req.Deleted {
		return s.deleteCard(ctx, req)
	}

	p, err := repo.GetPoll(ctx, s.DB, req.PollID)
	if errors.Is(err, repo.ErrNotFound) {
		return SyncSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("load poll: %w", err)
	}
	if !p.Chat.Linked() {
		return SyncSkipped, nil
	}

	voteCount, err := repo.CountVoters(ctx, s.DB, p.ID)
	if err != nil {
		return "", fmt.Errorf("count voters: %w", err)
	}
	total := participantCount(p)
	hash := ComputeSyncHash(p, voteCount, total)

	if p.Chat.MessageID != "" && hash == p.Chat.LastSyncedHash {
		if p.Chat.PendingSync {
			if err := repo.SetPendingSync(ctx, s.DB, p.ID, false); err != nil && !errors.Is(err, repo.ErrNotFound) {
				return "", err
			}
		}
		return SyncUnchanged, nil
	}

	card := renderPollCard(p, voteCount, total, s.AppBaseURL)
	var (
		msg *discord.Message
		out = SyncEdited
	)
	if p.Chat.MessageID != "" {
		msg, err = s.Chat.EditMessage(ctx, p.Chat.ChannelID, p.Chat.MessageID, card)
		var apiErr *discord.APIError
		if errors.As(err, &apiErr) && apiErr.NotFound() {
			// Someone deleted the card; post a new one.
			logger.Info().Str("message_id", p.Chat.MessageID).Msg("card message gone, recreating")
			msg, err = s.Chat.CreateMessage(ctx, p.Chat.ChannelID, card)
			out = SyncCreated
		}
	} else {
		msg, err = s.Chat.CreateMessage(ctx, p.Chat.ChannelID, card)
		out = SyncCreated
	}
	if err != nil {
		logger.Warn().Err(err).Msg("card sync failed, marking pending")
		if perr := repo.SetPendingSync(ctx, s.DB, p.ID, true); perr != nil && !errors.Is(perr, repo.ErrNotFound) {
			return "", fmt.Errorf("mark pending sync: %w", perr)
		}
		return SyncPending, nil
	}

	now := s.now()
	link := p.Chat
	link.MessageID = msg.ID
	link.LastSyncedHash = hash
	link.PendingSync = false
	link.SlotSetHash = SlotSetHash(p)
	link.SlotSnapshot = p.SlotIDs()
	link.LastSyncedAt = &now
	if err := repo.SaveChatLink(ctx, s.DB, p.ID, link); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return out, nil
		}
		return "", fmt.Errorf("save chat link: %w", err)
	}
	logger.Debug().Str("message_id", msg.ID).Str("outcome", out).Msg("card synced")
	return out, nil
}

// deleteCard removes the card of a deleted poll. Without a location in the
// request the poll row is consulted in case it still exists.
func (s *CardSyncService) deleteCard(ctx context.Context, req SyncRequest) (string, error) {
	channelID, messageID := req.ChannelID, req.MessageID
	if channelID == "" || messageID == "" {
		p, err := repo.GetPoll(ctx, s.DB, req.PollID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return "", fmt.Errorf("load poll: %w", err)
		}
		if p != nil {
			channelID, messageID = p.Chat.ChannelID, p.Chat.MessageID
		}
	}
	if channelID == "" || messageID == "" {
		return SyncSkipped, nil
	}
	if err := s.Chat.DeleteMessage(ctx, channelID, messageID); err != nil {
		if perr := repo.SetPendingSync(ctx, s.DB, req.PollID, true); perr != nil && !errors.Is(perr, repo.ErrNotFound) {
			log.Error().Err(perr).Str("poll_id", req.PollID).Msg("mark pending sync")
		}
		return SyncPending, fmt.Errorf("delete card: %w", err)
	}
	// Forget the card if the row is still around.
	if err := repo.SaveChatLink(ctx, s.DB, req.PollID, domain.ChatLink{}); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return SyncDeleted, fmt.Errorf("clear chat link: %w", err)
	}
	return SyncDeleted, nil
}

// participantCount counts the creator and every distinct participant.
func participantCount(p *domain.Poll) int64 {
	seen := map[string]struct{}{}
	if p.CreatorID != "" {
		seen[p.CreatorID] = struct{}{}
	}
	for _, id := range p.ParticipantIDs {
		if id != "" {
			seen[id] = struct{}{}
		}
	}
	return int64(len(seen))
}
