// Internal API handlers.
//
// The scheduling application calls these endpoints when its own data
// changes: it publishes notification events, asks for a poll card to be
// re-synced or removed, and issues link codes for groups. Every endpoint only
// records or schedules work and answers immediately.
//
//   - POST   /events                 (publish a notification event)
//   - POST   /polls/{id}/sync        (schedule a card sync)
//   - DELETE /polls/{id}/card        (schedule a card delete)
//   - POST   /cards/reconcile        (re-schedule pending cards)
//   - POST   /groups/{id}/link-code  (issue a one-time link code)
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pollcord/internal/domain"
	"github.com/tbourn/pollcord/internal/repo"
	"github.com/tbourn/pollcord/internal/services"
	"github.com/tbourn/pollcord/internal/utils"
)

// CardScheduler schedules poll card work.
type CardScheduler interface {
	// Schedule queues a debounced sync of the poll's card.
	Schedule(ctx context.Context, pollID string) error
	// ScheduleDelete queues removal of the poll's card. Empty location
	// fields are read from the poll when the task runs.
	ScheduleDelete(ctx context.Context, pollID, channelID, messageID string) error
	// ReconcilePending re-schedules up to limit cards flagged pending.
	ReconcilePending(ctx context.Context, limit int) (int, error)
}

// EventPublisher stores and queues notification events.
type EventPublisher interface {
	Enqueue(ctx context.Context, ev *domain.NotificationEvent) error
}

// LinkCodeIssuer issues one-time group link codes.
type LinkCodeIssuer interface {
	IssueCode(ctx context.Context, groupID, userID string) (*domain.LinkCode, error)
}

// InternalHandlers groups the internal API endpoints.
type InternalHandlers struct {
	cards  CardScheduler
	events EventPublisher
	links  LinkCodeIssuer
}

// NewInternal constructs the internal API handlers.
func NewInternal(cards CardScheduler, events EventPublisher, links LinkCodeIssuer) *InternalHandlers {
	return &InternalHandlers{cards: cards, events: events, links: links}
}

//
// DTOs
//

// PublishEventRequest is the JSON payload of a notification event.
type PublishEventRequest struct {
	// ID optionally fixes the event id; publishing the same id twice is rejected.
	ID         string            `json:"id" example:"9b2d0c1e-7f0a-4c51-a3e2-5d8f1c7b6a90"`
	EventType  string            `json:"event_type" binding:"required" example:"POLL_FINALIZED"`
	Resource   domain.Resource   `json:"resource"`
	Actor      domain.Actor      `json:"actor"`
	Payload    map[string]any    `json:"payload"`
	Recipients domain.Recipients `json:"recipients"`
	DedupeKey  string            `json:"dedupe_key" example:"poll-p1-finalized"`
}

// AcceptedResponse acknowledges queued work.
type AcceptedResponse struct {
	ID     string `json:"id" example:"p1"`
	Status string `json:"status" example:"queued"`
}

// DeleteCardRequest optionally names where the card lives, for polls that
// are already gone from the database.
type DeleteCardRequest struct {
	ChannelID string `json:"channel_id" example:"1122334455667788990"`
	MessageID string `json:"message_id" example:"1234567890123456789"`
}

// ReconcileResponse reports how many cards were re-scheduled.
type ReconcileResponse struct {
	Scheduled int `json:"scheduled" example:"3"`
}

// IssueLinkCodeRequest names the user asking to link the group.
type IssueLinkCodeRequest struct {
	UserID string `json:"user_id" binding:"required" example:"u1"`
}

// LinkCodeResponse carries a freshly issued code.
type LinkCodeResponse struct {
	Code      string    `json:"code" example:"K7QX2M9D"`
	ExpiresAt time.Time `json:"expires_at"`
}

//
// Handlers
//

// PublishEvent godoc
// @ID          publishEvent
// @Summary     Publish a notification event
// @Description Stores the event as queued and schedules it for routing to in-app, email and chat channels.
// @Tags        Events
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.PublishEventRequest  true  "Event"
//
// @Success     202  {object}  handlers.AcceptedResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     409  {object}  handlers.ErrorResponse  "Duplicate event id"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /events [post]
func (h *InternalHandlers) PublishEvent(c *gin.Context) {
	var req PublishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ev := &domain.NotificationEvent{
		ID:         strings.TrimSpace(req.ID),
		EventType:  strings.TrimSpace(req.EventType),
		Resource:   req.Resource,
		Actor:      req.Actor,
		Payload:    req.Payload,
		Recipients: req.Recipients,
		DedupeKey:  strings.TrimSpace(req.DedupeKey),
	}
	if err := h.events.Enqueue(c.Request.Context(), ev); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			fail(c, http.StatusConflict, ErrCodeConflict, "event already exists")
			return
		}
		serverError(c, ErrCodeEnqueueFailed, err)
		return
	}
	ok(c, http.StatusAccepted, AcceptedResponse{ID: ev.ID, Status: domain.EventQueued})
}

// SyncPoll godoc
// @ID          syncPollCard
// @Summary     Schedule a poll card sync
// @Description Queues a debounced sync of the poll's chat card. Repeated calls within the debounce window coalesce.
// @Tags        Cards
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Poll ID"
//
// @Success     202  {object}  handlers.AcceptedResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls/{id}/sync [post]
func (h *InternalHandlers) SyncPoll(c *gin.Context) {
	pollID := c.Param("id")
	if err := h.cards.Schedule(c.Request.Context(), pollID); err != nil {
		serverError(c, ErrCodeEnqueueFailed, err)
		return
	}
	ok(c, http.StatusAccepted, AcceptedResponse{ID: pollID, Status: "queued"})
}

// DeleteCard godoc
// @ID          deletePollCard
// @Summary     Schedule a poll card delete
// @Description Queues removal of the poll's chat card. The body may name the card location for polls already deleted.
// @Tags        Cards
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                      true   "Poll ID"
// @Param       body  body  handlers.DeleteCardRequest  false  "Card location"
//
// @Success     202  {object}  handlers.AcceptedResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls/{id}/card [delete]
func (h *InternalHandlers) DeleteCard(c *gin.Context) {
	var req DeleteCardRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	pollID := c.Param("id")
	if err := h.cards.ScheduleDelete(c.Request.Context(), pollID, req.ChannelID, req.MessageID); err != nil {
		serverError(c, ErrCodeEnqueueFailed, err)
		return
	}
	ok(c, http.StatusAccepted, AcceptedResponse{ID: pollID, Status: "queued"})
}

// ReconcileCards godoc
// @ID          reconcileCards
// @Summary     Re-schedule pending cards
// @Description Schedules a sync for every poll whose last card update failed.
// @Tags        Cards
// @Produce     json
// @Security    BearerAuth
//
// @Param       limit  query  int  false  "Maximum polls to schedule (1..1000)"  default(100)
//
// @Success     200  {object}  handlers.ReconcileResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /cards/reconcile [post]
func (h *InternalHandlers) ReconcileCards(c *gin.Context) {
	const (
		defaultLimit = 100
		maxLimit     = 1000
	)
	limit := utils.AtoiDefault(c.Query("limit"), defaultLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	n, err := h.cards.ReconcilePending(c.Request.Context(), limit)
	if err != nil {
		serverError(c, ErrCodeReconcileFailed, err)
		return
	}
	ok(c, http.StatusOK, ReconcileResponse{Scheduled: n})
}

// IssueLinkCode godoc
// @ID          issueLinkCode
// @Summary     Issue a group link code
// @Description Issues a one-time code that binds a chat channel to the group. Issuing again replaces the live code.
// @Tags        Groups
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                         true  "Group ID"
// @Param       body  body  handlers.IssueLinkCodeRequest  true  "Requesting user"
//
// @Success     201  {object}  handlers.LinkCodeResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Group not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /groups/{id}/link-code [post]
func (h *InternalHandlers) IssueLinkCode(c *gin.Context) {
	var req IssueLinkCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	lc, err := h.links.IssueCode(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.UserID))
	switch {
	case errors.Is(err, services.ErrGroupNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "group not found")
		return
	case err != nil:
		serverError(c, ErrCodeLinkCodeFailed, err)
		return
	}
	ok(c, http.StatusCreated, LinkCodeResponse{Code: lc.Code, ExpiresAt: lc.ExpiresAt})
}
