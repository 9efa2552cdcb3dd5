// Package services defines the business logic of the bridge: interaction
// processing, the vote and link flows, poll card synchronization and the
// notification router. This file centralizes service-level error values.
//
// Errors wrapped in a UserError carry the text shown to the chat user.
// Anything else reaching the top of interaction processing is treated as an
// infrastructure failure and replaced by one generic reply.
package services

import "errors"

// Poll and vote errors.
var (
	ErrPollNotFound     = errors.New("poll not found")
	ErrPollClosed       = errors.New("poll is not open")
	ErrNotParticipant   = errors.New("user is not a participant")
	ErrAccountNotLinked = errors.New("chat account not linked")
	ErrChannelMismatch  = errors.New("interaction channel does not match poll")
	ErrSessionExpired   = errors.New("vote session expired")
	ErrStaleSlots       = errors.New("session references removed slots")
	ErrEmptySelection   = errors.New("no slots selected")
)

// Linking errors.
var (
	ErrGuildOnly         = errors.New("command requires a guild")
	ErrMissingPermission = errors.New("member lacks admin or manage channels")
	ErrLinkUsage         = errors.New("group and code are required")
	ErrGroupNotFound     = errors.New("group not found")
	ErrInvalidLinkCode   = errors.New("invalid link code")
	ErrLinkCodeExpired   = errors.New("link code expired")
	ErrLinkCodeExhausted = errors.New("link code attempts exhausted")
)

// ErrInteractionInProgress reports that another delivery holds the
// interaction lock.
var ErrInteractionInProgress = errors.New("interaction in progress")

// Notification errors.
var (
	ErrEventNotFound    = errors.New("notification event not found")
	ErrUnknownEventType = errors.New("unknown notification event type")
)

// UserError pairs an error with the reply shown to the chat user.
type UserError struct {
	Err     error
	Message string
}

func (e *UserError) Error() string { return e.Err.Error() }
func (e *UserError) Unwrap() error { return e.Err }

// userError wraps err with its user-facing reply.
func userError(err error, msg string) error {
	return &UserError{Err: err, Message: msg}
}

// ReplyFor returns the user-facing reply carried by err, if any.
func ReplyFor(err error) (string, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Message, true
	}
	return "", false
}

// Fixed replies.
const (
	replyCommandUnsupported = "This command is not supported."
	replyActionUnsupported  = "This action is not supported."
	replyGenericError       = "Something went wrong while handling that. Please try again."
	replyMissingID          = "This button is missing its poll reference. Please use a current poll card."
)
