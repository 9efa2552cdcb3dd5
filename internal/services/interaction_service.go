// Package services – InteractionService
//
// InteractionService is the queue worker for inbound interactions. The
// webhook has already acknowledged the interaction; the worker claims it,
// routes it and writes the single visible reply by editing the deferred
// response.
//
// Outcomes:
//   - success, unhandled, user error and infrastructure error all finish the
//     interaction and mark its lock done so a redelivered copy is dropped.
//   - cancellation (shutdown) releases the lock and returns the error so the
//     queue delivers the payload again.
//   - a redelivery that finds the lock still processing returns
//     ErrInteractionInProgress and is retried until the lock is done or old
//     enough to reclaim.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/tbourn/pollcord/internal/discord"
	"github.com/tbourn/pollcord/internal/dispatch"
	"github.com/tbourn/pollcord/internal/domain"
	"github.com/tbourn/pollcord/internal/observability"
	"github.com/tbourn/pollcord/internal/queue"
	"github.com/tbourn/pollcord/internal/repo"
)

// InteractionService processes queued interactions.
type InteractionService struct {
	// DB holds the interaction locks.
	DB *gorm.DB
	// Replies edits deferred responses.
	Replies discord.OriginalResponseEditor
	// Router maps interactions to flow handlers.
	Router *dispatch.Router

	ApplicationID string
	// LockTTL is how long a "processing" lock is honored before it is
	// treated as abandoned.
	LockTTL time.Duration
	// TokenTTL is the usable window of an interaction token.
	TokenTTL time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// NewInteractionService wires a service with default windows and installs
// the missing-id reply on router.
func NewInteractionService(db *gorm.DB, replies discord.OriginalResponseEditor, router *dispatch.Router, applicationID string) *InteractionService {
	router.MissingID = func(ctx context.Context, req *dispatch.Request) error {
		return req.Reply.SendText(ctx, replyMissingID)
	}
	return &InteractionService{
		DB:            db,
		Replies:       replies,
		Router:        router,
		ApplicationID: applicationID,
		LockTTL:       5 * time.Minute,
		TokenTTL:      15 * time.Minute,
	}
}

func (s *InteractionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// HandleTask adapts Process to the queue runner.
func (s *InteractionService) HandleTask(ctx context.Context, t *queue.Task) error {
	return s.Process(ctx, t.Payload)
}

// Process handles one raw interaction envelope.
func (s *InteractionService) Process(ctx context.Context, payload []byte) error {
	var in discord.Interaction
	if err := json.Unmarshal(payload, &in); err != nil {
		return queue.Permanent(fmt.Errorf("decode interaction: %w", err))
	}
	if in.ID == "" {
		return queue.Permanent(errors.New("interaction without id"))
	}
	kind := interactionKind(in.Type)
	logger := log.With().Str("interaction_id", in.ID).Str("kind", kind).Logger()

	if in.ApplicationID != s.ApplicationID {
		logger.Warn().Str("application_id", in.ApplicationID).Msg("dropping interaction for another application")
		observability.Interactions.WithLabelValues(kind, "dropped").Inc()
		return nil
	}

	ctx, span := otel.Tracer("services/InteractionService").Start(ctx, "InteractionService.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("interaction.id", in.ID),
		attribute.String("interaction.kind", kind),
	)

	acquired, err := repo.AcquireInteractionLock(ctx, s.DB, in.ID, s.now(), s.LockTTL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire lock")
		return fmt.Errorf("acquire interaction lock: %w", err)
	}
	if !acquired {
		// A lock still processing belongs to a worker that crashed or stalled
		// within LockTTL; retry until it is done or can be reclaimed.
		if l, lerr := repo.GetInteractionLock(ctx, s.DB, in.ID); lerr == nil && l.Status == domain.LockProcessing {
			logger.Info().Time("acquired_at", l.AcquiredAt).Msg("interaction held by another delivery, retrying later")
			return ErrInteractionInProgress
		}
		logger.Debug().Msg("interaction already claimed")
		observability.Interactions.WithLabelValues(kind, "duplicate").Inc()
		return nil
	}

	reply := discord.NewReplyHandle(s.Replies, &in, s.TokenTTL).WithClock(s.now)
	if reply.Expired() {
		logger.Info().Time("expired_at", reply.ExpiresAt()).Msg("interaction token expired, reply will be skipped")
	}

	handled, err := s.dispatch(ctx, &in, reply)

	if err != nil && ctx.Err() != nil {
		// Shutdown mid-flight: hand the payload back to the queue.
		if rerr := repo.ReleaseInteractionLock(context.WithoutCancel(ctx), s.DB, in.ID); rerr != nil {
			logger.Error().Err(rerr).Msg("release interaction lock")
		}
		return err
	}

	outcome := "ok"
	switch {
	case errors.Is(err, discord.ErrReplyExpired):
		outcome = "expired"
		logger.Info().Msg("reply skipped, interaction token expired")
	case err != nil:
		if msg, ok := ReplyFor(err); ok {
			outcome = "rejected"
			logger.Info().Err(err).Msg("interaction rejected")
			s.reply(ctx, logger, reply, msg)
		} else {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, "dispatch")
			logger.Error().Err(err).Msg("interaction failed")
			s.reply(ctx, logger, reply, replyGenericError)
		}
	case !handled:
		outcome = "unhandled"
		msg := replyActionUnsupported
		if in.Type == discord.InteractionApplicationCommand {
			msg = replyCommandUnsupported
		}
		s.reply(ctx, logger, reply, msg)
	}
	observability.Interactions.WithLabelValues(kind, outcome).Inc()

	if err := repo.MarkInteractionLockDone(context.WithoutCancel(ctx), s.DB, in.ID, s.now()); err != nil {
		// The reply is out; a redelivery reclaims only after LockTTL.
		logger.Error().Err(err).Msg("mark interaction lock done")
	}
	return nil
}

// dispatch runs the router and turns a handler panic into an error.
func (s *InteractionService) dispatch(ctx context.Context, in *discord.Interaction, reply *discord.ReplyHandle) (handled bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			handled = true
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return s.Router.Dispatch(ctx, in, reply)
}

// reply sends msg unless the handle is spent or expired.
func (s *InteractionService) reply(ctx context.Context, logger zerolog.Logger, h *discord.ReplyHandle, msg string) {
	err := h.SendText(ctx, msg)
	switch {
	case err == nil, errors.Is(err, discord.ErrReplyExpired), errors.Is(err, discord.ErrReplyUsed):
	default:
		logger.Error().Err(err).Msg("send interaction reply")
	}
}

func interactionKind(t discord.InteractionType) string {
	switch t {
	case discord.InteractionApplicationCommand:
		return "command"
	case discord.InteractionMessageComponent:
		return "component"
	default:
		return "other"
	}
}
