package discord

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrReplyExpired is returned when the interaction token is past its
	// usable window. Callers treat it as a no-op.
	ErrReplyExpired = errors.New("discord: interaction token expired")

	// ErrReplyUsed is returned when the handle already delivered its reply.
	ErrReplyUsed = errors.New("discord: reply already sent")
)

// OriginalResponseEditor edits the deferred response of an interaction.
type OriginalResponseEditor interface {
	EditOriginalResponse(ctx context.Context, applicationID, token string, msg MessageParams) (*Message, error)
}

// ReplyHandle is the single reply slot of one interaction. It edits the
// deferred "@original" response at most once and refuses to call out once
// the token window, measured from the id's embedded timestamp, has passed.
type ReplyHandle struct {
	editor        OriginalResponseEditor
	applicationID string
	token         string
	expiresAt     time.Time
	now           func() time.Time

	mu   sync.Mutex
	used bool
}

// NewReplyHandle builds the handle for in. An id without a decodable
// timestamp yields an already expired handle.
func NewReplyHandle(editor OriginalResponseEditor, in *Interaction, ttl time.Duration) *ReplyHandle {
	h := &ReplyHandle{
		editor:        editor,
		applicationID: in.ApplicationID,
		token:         in.Token,
		now:           time.Now,
	}
	if created, err := EmbeddedTimestamp(in.ID); err == nil {
		h.expiresAt = created.Add(ttl)
	}
	return h
}

// WithClock overrides the clock used for expiry checks.
func (h *ReplyHandle) WithClock(now func() time.Time) *ReplyHandle {
	h.now = now
	return h
}

// ExpiresAt returns the instant the token stops being usable.
func (h *ReplyHandle) ExpiresAt() time.Time { return h.expiresAt }

// Expired reports whether the token window has elapsed.
func (h *ReplyHandle) Expired() bool {
	return h.token == "" || !h.now().Before(h.expiresAt)
}

// Used reports whether the reply was already delivered.
func (h *ReplyHandle) Used() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

// Send delivers msg as the interaction's reply.
func (h *ReplyHandle) Send(ctx context.Context, msg MessageParams) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.used {
		return ErrReplyUsed
	}
	if h.Expired() {
		return ErrReplyExpired
	}
	h.used = true
	_, err := h.editor.EditOriginalResponse(ctx, h.applicationID, h.token, msg)
	return err
}

// SendText is Send with a plain content message and no mentions.
func (h *ReplyHandle) SendText(ctx context.Context, content string) error {
	return h.Send(ctx, MessageParams{Content: content, AllowedMentions: NoMentions()})
}
