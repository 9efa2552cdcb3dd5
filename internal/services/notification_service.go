// Package services – NotificationService
//
// NotificationService fans a queued domain event out to three independent
// channels: in-app documents, the mail outbox and the linked chat channel.
// In-app documents are written at deterministic ids so a redelivered event
// never duplicates them; events that already reached a terminal status are
// not processed again, which keeps emails and chat posts from repeating.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/pollcord/internal/discord"
	"github.com/tbourn/pollcord/internal/domain"
	"github.com/tbourn/pollcord/internal/email"
	"github.com/tbourn/pollcord/internal/observability"
	"github.com/tbourn/pollcord/internal/queue"
	"github.com/tbourn/pollcord/internal/repo"
)

// ChatSender posts messages into a channel.
type ChatSender interface {
	CreateMessage(ctx context.Context, channelID string, msg discord.MessageParams) (*discord.Message, error)
}

// notificationNamespace scopes in-app ids derived from event ids.
var notificationNamespace = uuid.MustParse("6f1c8f5e-2b0a-4d7e-9a57-1d0b6c3e9f42")

// mailNamespace scopes outbox ids derived from event ids.
var mailNamespace = uuid.MustParse("b3e7a1d2-5c84-4f19-8e6a-2d9c0f7b4a15")

// eventTask is the queue payload of a notification task.
type eventTask struct {
	EventID string `json:"event_id"`
}

// NotificationService routes notification events.
type NotificationService struct {
	DB    *gorm.DB
	Chat  ChatSender
	Queue TaskQueue

	AppName    string
	AppBaseURL string
}

// Enqueue stores ev as queued and schedules it for routing.
func (s *NotificationService) Enqueue(ctx context.Context, ev *domain.NotificationEvent) error {
	if err := repo.CreateEvent(ctx, s.DB, ev); err != nil {
		return err
	}
	payload, _ := json.Marshal(eventTask{EventID: ev.ID})
	if _, err := s.Queue.Enqueue(ctx, ev.ID, payload, 0); err != nil {
		return fmt.Errorf("enqueue notification event: %w", err)
	}
	return nil
}

// HandleTask adapts Route to the queue runner.
func (s *NotificationService) HandleTask(ctx context.Context, t *queue.Task) error {
	var task eventTask
	if err := json.Unmarshal(t.Payload, &task); err != nil || task.EventID == "" {
		return queue.Permanent(fmt.Errorf("decode notification task: %v", err))
	}
	err := s.Route(ctx, task.EventID)
	if errors.Is(err, ErrEventNotFound) {
		return queue.Permanent(err)
	}
	return err
}

// recipient is one resolved delivery target. User is nil for raw emails.
type recipient struct {
	user  *domain.User
	email string
}

// Route delivers event eventID. A returned error leaves the event in
// "processing" for the queue to retry; channel failures that the event can
// record do not produce one.
func (s *NotificationService) Route(ctx context.Context, eventID string) error {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "NotificationService.Route")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", eventID))
	logger := log.With().Str("event_id", eventID).Logger()

	ev, err := repo.GetEvent(ctx, s.DB, eventID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	switch ev.Status {
	case domain.EventProcessed, domain.EventPartial, domain.EventFailed:
		logger.Debug().Str("status", ev.Status).Msg("event already routed")
		return nil
	}
	span.SetAttributes(attribute.String("event.type", ev.EventType))

	if err := repo.MarkEventProcessing(ctx, s.DB, ev.ID); err != nil {
		return fmt.Errorf("mark event processing: %w", err)
	}

	spec, ok := LookupEvent(ev.EventType)
	if !ok {
		logger.Warn().Str("event_type", ev.EventType).Msg("unknown event type")
		return repo.FinishEvent(ctx, s.DB, ev.ID, repo.EventOutcome{
			Status: domain.EventFailed,
			Error:  fmt.Sprintf("%s: %s", ErrUnknownEventType, ev.EventType),
		})
	}

	title, body := spec.Describe(ev)
	link := s.resourceURL(ev.Resource)

	recipients, err := s.resolveRecipients(ctx, ev)
	if err != nil {
		return err
	}
	for _, r := range recipients {
		if err := s.deliver(ctx, ev, spec, r, title, body, link); err != nil {
			return err
		}
	}

	out := repo.EventOutcome{Status: domain.EventProcessed}
	if chatErr := s.deliverChat(ctx, ev, spec, title, body, link); chatErr != nil {
		logger.Warn().Err(chatErr).Msg("chat delivery failed")
		out.Status = domain.EventPartial
		out.ChatError = chatErr.Error()
	}
	if err := repo.FinishEvent(ctx, s.DB, ev.ID, out); err != nil {
		return fmt.Errorf("finish event: %w", err)
	}
	logger.Info().Str("status", out.Status).Int("recipients", len(recipients)).Msg("event routed")
	return nil
}

// resolveRecipients merges user ids and emails into distinct targets.
// Emails that belong to an account are delivered as that account; the
// actor is never notified of their own action.
func (s *NotificationService) resolveRecipients(ctx context.Context, ev *domain.NotificationEvent) ([]recipient, error) {
	byID := map[string]*domain.User{}

	if len(ev.Recipients.UserIDs) > 0 {
		users, err := repo.GetUsersByIDs(ctx, s.DB, ev.Recipients.UserIDs)
		if err != nil {
			return nil, fmt.Errorf("load recipients: %w", err)
		}
		for i := range users {
			byID[users[i].ID] = &users[i]
		}
	}

	var raw []string
	if len(ev.Recipients.Emails) > 0 {
		users, err := repo.GetUsersByEmails(ctx, s.DB, ev.Recipients.Emails)
		if err != nil {
			return nil, fmt.Errorf("load recipients by email: %w", err)
		}
		known := map[string]bool{}
		for i := range users {
			byID[users[i].ID] = &users[i]
			known[strings.ToLower(users[i].Email)] = true
		}
		seen := map[string]bool{}
		for _, e := range ev.Recipients.Emails {
			e = strings.TrimSpace(e)
			key := strings.ToLower(e)
			if e == "" || known[key] || seen[key] {
				continue
			}
			seen[key] = true
			raw = append(raw, e)
		}
	}

	out := make([]recipient, 0, len(byID)+len(raw))
	for id, u := range byID {
		if id == ev.Actor.UserID {
			continue
		}
		out = append(out, recipient{user: u, email: u.Email})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].user.ID < out[j].user.ID })
	for _, e := range raw {
		out = append(out, recipient{email: e})
	}
	return out, nil
}

// deliver writes the in-app document and the email for one recipient.
func (s *NotificationService) deliver(ctx context.Context, ev *domain.NotificationEvent, spec EventSpec, r recipient, title, body, link string) error {
	sendEmail := !spec.InAppOnly
	if r.user != nil {
		pref := ResolvePreference(ev.EventType, r.user.Settings)
		if pref.InApp() {
			n := &domain.Notification{
				ID:           notificationID(ev, r.user.ID),
				UserID:       r.user.ID,
				EventID:      ev.ID,
				EventType:    ev.EventType,
				Title:        title,
				Body:         body,
				ResourceType: ev.Resource.Type,
				ResourceID:   ev.Resource.ID,
				ActorName:    ev.Actor.DisplayName,
			}
			created, err := repo.CreateNotificationIfAbsent(ctx, s.DB, n)
			if err != nil {
				observability.Notifications.WithLabelValues("in_app", "error").Inc()
				return fmt.Errorf("write notification: %w", err)
			}
			outcome := "ok"
			if !created {
				outcome = "skipped"
			}
			observability.Notifications.WithLabelValues("in_app", outcome).Inc()
		}
		sendEmail = pref.Email()
	}
	if !sendEmail || r.email == "" {
		return nil
	}

	text, html, err := email.RenderNotification(email.NotificationData{
		AppName:   s.AppName,
		Title:     title,
		Body:      body,
		ActionURL: link,
	})
	if err != nil {
		return err
	}
	m := &domain.MailMessage{ID: mailID(ev, r.email), To: r.email, Subject: title, Text: text, HTML: html, EventID: ev.ID}
	created, err := repo.EnqueueMail(ctx, s.DB, m)
	if err != nil {
		observability.Notifications.WithLabelValues("email", "error").Inc()
		return fmt.Errorf("enqueue mail: %w", err)
	}
	outcome := "queued"
	if !created {
		outcome = "skipped"
	}
	observability.Notifications.WithLabelValues("email", outcome).Inc()
	return nil
}

// deliverChat posts to the channel linked to the event's resource when its
// chat settings allow the event's category. A nil return covers both
// success and "nothing to post".
func (s *NotificationService) deliverChat(ctx context.Context, ev *domain.NotificationEvent, spec EventSpec, title, body, link string) error {
	if s.Chat == nil {
		return nil
	}
	channelID, err := s.chatChannel(ctx, ev.Resource, spec.Category)
	if err != nil {
		return err
	}
	if channelID == "" {
		observability.Notifications.WithLabelValues("chat", "skipped").Inc()
		return nil
	}
	if _, err := s.Chat.CreateMessage(ctx, channelID, renderChatNotification(title, body, link, time.Now())); err != nil {
		observability.Notifications.WithLabelValues("chat", "error").Inc()
		return err
	}
	observability.Notifications.WithLabelValues("chat", "ok").Inc()
	return nil
}

// chatChannel finds the channel for resource. A poll without its own link
// falls back to its group's channel and settings.
func (s *NotificationService) chatChannel(ctx context.Context, res domain.Resource, category string) (string, error) {
	switch res.Type {
	case "poll":
		p, err := repo.GetPoll(ctx, s.DB, res.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("load poll: %w", err)
		}
		if p.Chat.Linked() {
			if p.ChatNotifications.Allows(category) {
				return p.Chat.ChannelID, nil
			}
			return "", nil
		}
		if p.GroupID == "" {
			return "", nil
		}
		return s.groupChannel(ctx, p.GroupID, category)
	case "group":
		return s.groupChannel(ctx, res.ID, category)
	}
	return "", nil
}

func (s *NotificationService) groupChannel(ctx context.Context, groupID, category string) (string, error) {
	g, err := repo.GetGroup(ctx, s.DB, groupID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load group: %w", err)
	}
	if g.Chat.ChannelID == "" || !g.ChatNotifications.Allows(category) {
		return "", nil
	}
	return g.Chat.ChannelID, nil
}

func (s *NotificationService) resourceURL(res domain.Resource) string {
	if s.AppBaseURL == "" || res.ID == "" {
		return ""
	}
	base := strings.TrimRight(s.AppBaseURL, "/")
	switch res.Type {
	case "poll":
		return base + "/polls/" + res.ID
	case "group":
		return base + "/groups/" + res.ID
	}
	return base
}

// notificationID derives the in-app document id for userID. A dedupe key
// makes it stable across events; otherwise it is stable per event.
func notificationID(ev *domain.NotificationEvent, userID string) string {
	if ev.DedupeKey != "" {
		sum := sha256.Sum256([]byte(ev.DedupeKey + "|" + userID))
		return hex.EncodeToString(sum[:])
	}
	return uuid.NewSHA1(notificationNamespace, []byte(ev.ID+"|"+userID)).String()
}

// mailID is stable per event and address, so a redelivered event finds the
// mail it already queued.
func mailID(ev *domain.NotificationEvent, addr string) string {
	return uuid.NewSHA1(mailNamespace, []byte(ev.ID+"|"+strings.ToLower(strings.TrimSpace(addr)))).String()
}
