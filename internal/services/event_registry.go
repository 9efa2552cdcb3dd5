package services

import (
	"sort"
	"strings"

	"github.com/tbourn/pollcord/internal/domain"
)

// Notification event types.
const (
	EventPollCreated           = "POLL_CREATED"
	EventPollFinalized         = "POLL_FINALIZED"
	EventPollReopened          = "POLL_REOPENED"
	EventPollCancelled         = "POLL_CANCELLED"
	EventPollDeadlineReminder  = "POLL_DEADLINE_REMINDER"
	EventVoteSubmitted         = "VOTE_SUBMITTED"
	EventInviteSent            = "INVITE_SENT"
	EventInviteAccepted        = "INVITE_ACCEPTED"
	EventInviteDeclined        = "INVITE_DECLINED"
	EventGroupMemberJoined     = "GROUP_MEMBER_JOINED"
	EventFriendRequestSent     = "FRIEND_REQUEST_SENT"
	EventFriendRequestAccepted = "FRIEND_REQUEST_ACCEPTED"
)

// Chat notification categories.
const (
	CategoryPollLifecycle = "poll_lifecycle"
	CategoryReminders     = "reminders"
	CategoryVotes         = "votes"
	CategoryInvites       = "invites"
	CategoryGroups        = "groups"
	CategorySocial        = "social"
)

// EventSpec describes how one event type is delivered.
type EventSpec struct {
	Type     string
	Category string
	// Default is the preference used in simple mode.
	Default Preference
	// InAppOnly events never send email, whatever the user chose.
	InAppOnly bool

	// Templates; {resource} is the resource title, {actor} the actor name.
	title string
	body  string
}

// Describe renders the title and body for ev.
func (s EventSpec) Describe(ev *domain.NotificationEvent) (title, body string) {
	actor := ev.Actor.DisplayName
	if actor == "" {
		actor = "Someone"
	}
	resource := ev.Resource.Title
	if resource == "" {
		resource = "untitled"
	}
	r := strings.NewReplacer("{resource}", resource, "{actor}", actor)
	return r.Replace(s.title), r.Replace(s.body)
}

var eventRegistry = map[string]EventSpec{
	EventPollCreated: {
		Category: CategoryPollLifecycle, Default: PreferenceInAppEmail,
		title: "New poll: {resource}", body: "{actor} created a poll and asked for your availability.",
	},
	EventPollFinalized: {
		Category: CategoryPollLifecycle, Default: PreferenceInAppEmail,
		title: "Time picked for {resource}", body: "{actor} finalized the poll.",
	},
	EventPollReopened: {
		Category: CategoryPollLifecycle, Default: PreferenceInApp,
		title: "{resource} is open again", body: "{actor} reopened the poll for votes.",
	},
	EventPollCancelled: {
		Category: CategoryPollLifecycle, Default: PreferenceInAppEmail,
		title: "{resource} was cancelled", body: "{actor} cancelled the poll.",
	},
	EventPollDeadlineReminder: {
		Category: CategoryReminders, Default: PreferenceInAppEmail,
		title: "Voting closes soon for {resource}", body: "{actor} is waiting on your vote.",
	},
	EventVoteSubmitted: {
		Category: CategoryVotes, Default: PreferenceInApp, InAppOnly: true,
		title: "New vote on {resource}", body: "{actor} submitted a vote.",
	},
	EventInviteSent: {
		Category: CategoryInvites, Default: PreferenceInAppEmail,
		title: "You're invited to {resource}", body: "{actor} invited you to vote.",
	},
	EventInviteAccepted: {
		Category: CategoryInvites, Default: PreferenceInApp,
		title: "Invite to {resource} accepted", body: "{actor} accepted your invite.",
	},
	EventInviteDeclined: {
		Category: CategoryInvites, Default: PreferenceInApp,
		title: "Invite to {resource} declined", body: "{actor} declined your invite.",
	},
	EventGroupMemberJoined: {
		Category: CategoryGroups, Default: PreferenceInApp, InAppOnly: true,
		title: "New member in {resource}", body: "{actor} joined the group.",
	},
	EventFriendRequestSent: {
		Category: CategorySocial, Default: PreferenceInAppEmail,
		title: "Friend request from {actor}", body: "{actor} sent you a friend request.",
	},
	EventFriendRequestAccepted: {
		Category: CategorySocial, Default: PreferenceInApp, InAppOnly: true,
		title: "{actor} accepted your friend request", body: "You and {actor} are now friends.",
	},
}

func init() {
	for t, s := range eventRegistry {
		s.Type = t
		eventRegistry[t] = s
	}
}

// LookupEvent returns the spec of eventType.
func LookupEvent(eventType string) (EventSpec, bool) {
	s, ok := eventRegistry[eventType]
	return s, ok
}

// EventTypes lists every known event type in sorted order.
func EventTypes() []string {
	out := make([]string, 0, len(eventRegistry))
	for t := range eventRegistry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
