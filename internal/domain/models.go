// Package domain defines the persistence models the bridge reads and writes:
// polls and their slots, votes, groups, users, and one-time link codes. The
// scheduling application owns these documents; only the fields the bridge
// touches are modeled here.
package domain

import (
	"time"
)

// Poll statuses.
const (
	PollOpen      = "open"
	PollFinalized = "finalized"
	PollCancelled = "cancelled"
)

// Vote values stored per slot.
const (
	VotePreferred = "PREFERRED"
	VoteFeasible  = "FEASIBLE"
)

// Slot is one candidate time of a poll.
type Slot struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ChatLink is the chat-card metadata embedded on a poll. It is owned by the
// card sync processor and only updated after an outbound call completes or
// deliberately fails.
//
// Fields:
//   - MessageID / ChannelID / GuildID: where the card lives; MessageID is empty
//     until the first successful create.
//   - LastSyncedHash: sync hash of the content currently rendered in the card.
//   - PendingSync: set when the last outbound call failed and a retry is owed.
//   - SlotSetHash / SlotSnapshot: slot ids as of the last sync.
type ChatLink struct {
	MessageID      string     `json:"message_id,omitempty"       gorm:"type:varchar(32)"`
	ChannelID      string     `json:"channel_id,omitempty"       gorm:"type:varchar(32);index"`
	GuildID        string     `json:"guild_id,omitempty"         gorm:"type:varchar(32)"`
	LastSyncedHash string     `json:"last_synced_hash,omitempty" gorm:"type:varchar(64)"`
	PendingSync    bool       `json:"pending_sync"               gorm:"not null;default:false;index"`
	SlotSetHash    string     `json:"slot_set_hash,omitempty"    gorm:"type:varchar(64)"`
	SlotSnapshot   []string   `json:"slot_snapshot,omitempty"    gorm:"serializer:json"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
}

// Linked reports whether the poll is bound to a chat channel.
func (l ChatLink) Linked() bool { return l.ChannelID != "" }

// ChatNotificationSettings controls which event categories are mirrored into
// the linked chat channel. A nil value means every category is allowed.
type ChatNotificationSettings struct {
	Enabled    bool     `json:"enabled"`
	Categories []string `json:"categories,omitempty"`
}

// Allows reports whether events of the given category may be posted.
func (s *ChatNotificationSettings) Allows(category string) bool {
	if s == nil {
		return true
	}
	if !s.Enabled {
		return false
	}
	if len(s.Categories) == 0 {
		return true
	}
	for _, c := range s.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Poll is a scheduling poll. Only the fields that affect the chat card or the
// vote flow are modeled.
type Poll struct {
	ID                string                    `json:"id"                 gorm:"type:varchar(64);primaryKey"`
	GroupID           string                    `json:"group_id,omitempty" gorm:"type:varchar(64);index"`
	CreatorID         string                    `json:"creator_id"         gorm:"type:varchar(64);not null"`
	Title             string                    `json:"title"              gorm:"type:varchar(255);not null"`
	Description       string                    `json:"description"        gorm:"type:text"`
	Status            string                    `json:"status"             gorm:"type:varchar(16);not null;default:'open';index"`
	Slots             []Slot                    `json:"slots"              gorm:"serializer:json"`
	ParticipantIDs    []string                  `json:"participant_ids"    gorm:"serializer:json"`
	FinalizedSlotID   string                    `json:"finalized_slot_id,omitempty" gorm:"type:varchar(64)"`
	Chat              ChatLink                  `json:"discord"            gorm:"embedded;embeddedPrefix:discord_"`
	ChatNotifications *ChatNotificationSettings `json:"chat_notifications,omitempty" gorm:"serializer:json"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}

// TableName returns the database table name for Poll.
func (Poll) TableName() string { return "polls" }

// IsOpen reports whether the poll still accepts votes.
func (p *Poll) IsOpen() bool { return p.Status == PollOpen }

// HasParticipant reports whether userID may vote on the poll.
func (p *Poll) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	if userID == p.CreatorID {
		return true
	}
	for _, id := range p.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// SlotIDs returns the ids of the current slot set in order.
func (p *Poll) SlotIDs() []string {
	out := make([]string, 0, len(p.Slots))
	for _, s := range p.Slots {
		out = append(out, s.ID)
	}
	return out
}

// Vote is one user's vote on a poll, keyed by (poll_id, user_id).
// Votes maps slot id to VotePreferred or VoteFeasible; slots absent from the
// map do not work for the user. NoTimesWork marks an explicit "none work" vote.
type Vote struct {
	ID          string            `json:"id"            gorm:"type:varchar(140);primaryKey"`
	PollID      string            `json:"poll_id"       gorm:"type:varchar(64);not null;uniqueIndex:ux_vote_poll_user,priority:1"`
	UserID      string            `json:"user_id"       gorm:"type:varchar(64);not null;uniqueIndex:ux_vote_poll_user,priority:2"`
	Votes       map[string]string `json:"votes"         gorm:"serializer:json"`
	NoTimesWork bool              `json:"no_times_work" gorm:"not null;default:false"`
	Source      string            `json:"source"        gorm:"type:varchar(16)"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TableName returns the database table name for Vote.
func (Vote) TableName() string { return "votes" }

// VoteID derives the deterministic primary key for a (poll, user) vote.
func VoteID(pollID, userID string) string { return pollID + ":" + userID }

// ChannelBinding records which chat channel a group is linked to.
type ChannelBinding struct {
	ChannelID string     `json:"channel_id,omitempty" gorm:"type:varchar(32);index"`
	GuildID   string     `json:"guild_id,omitempty"   gorm:"type:varchar(32)"`
	LinkedBy  string     `json:"linked_by,omitempty"  gorm:"type:varchar(32)"`
	LinkedAt  *time.Time `json:"linked_at,omitempty"`
}

// Group is a set of users that polls can belong to.
type Group struct {
	ID                string                    `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Name              string                    `json:"name"       gorm:"type:varchar(255);not null"`
	OwnerID           string                    `json:"owner_id"   gorm:"type:varchar(64);not null"`
	MemberIDs         []string                  `json:"member_ids" gorm:"serializer:json"`
	Chat              ChannelBinding            `json:"discord"    gorm:"embedded;embeddedPrefix:discord_"`
	ChatNotifications *ChatNotificationSettings `json:"chat_notifications,omitempty" gorm:"serializer:json"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}

// TableName returns the database table name for Group.
func (Group) TableName() string { return "groups" }

// Notification modes.
const (
	NotificationModeSimple   = "simple"
	NotificationModeAdvanced = "advanced"
)

// UserSettings holds notification preferences. NotificationPreferences maps
// an event type to one of the preference values ("muted", "in_app",
// "in_app_email") and is only honored in advanced mode.
type UserSettings struct {
	NotificationMode        string            `json:"notification_mode,omitempty"`
	EmailNotifications      bool              `json:"email_notifications"`
	NotificationPreferences map[string]string `json:"notification_preferences,omitempty"`
}

// User is an application account. DiscordUserID is set once the user links
// their chat identity.
type User struct {
	ID            string       `json:"id"              gorm:"type:varchar(64);primaryKey"`
	Email         string       `json:"email"           gorm:"type:varchar(320);uniqueIndex"`
	DisplayName   string       `json:"display_name"    gorm:"type:varchar(255)"`
	DiscordUserID string       `json:"discord_user_id" gorm:"type:varchar(32);index"`
	Settings      UserSettings `json:"settings"        gorm:"serializer:json"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Link code target types.
const LinkTargetGroup = "group"

// LinkCode is a one-time, expiring, attempt-limited code that lets a chat
// channel be bound to an application entity. At most one live code exists
// per (type, target).
type LinkCode struct {
	ID               string    `gorm:"type:char(36);primaryKey"`
	Type             string    `gorm:"type:varchar(16);not null;uniqueIndex:ux_linkcode_target,priority:1"`
	TargetID         string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_linkcode_target,priority:2"`
	Code             string    `gorm:"type:varchar(64);not null"`
	RequestingUserID string    `gorm:"type:varchar(64);not null"`
	Attempts         int       `gorm:"not null;default:0"`
	ExpiresAt        time.Time `gorm:"not null;index"`
	CreatedAt        time.Time
}

// TableName returns the database table name for LinkCode.
func (LinkCode) TableName() string { return "link_codes" }
