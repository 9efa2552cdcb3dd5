// Package discord holds the chat platform wire types, request signature
// verification, snowflake decoding, the single-use reply handle and a thin
// REST client for the outbound calls the bridge makes.
package discord

import (
	"encoding/json"
	"strconv"
	"strings"
)

// InteractionType is the kind of an inbound interaction.
type InteractionType int

// Interaction types.
const (
	InteractionPing               InteractionType = 1
	InteractionApplicationCommand InteractionType = 2
	InteractionMessageComponent   InteractionType = 3
	InteractionAutocomplete       InteractionType = 4
	InteractionModalSubmit        InteractionType = 5
)

// ResponseType is the kind of an interaction callback.
type ResponseType int

// Interaction callback types.
const (
	ResponsePong                   ResponseType = 1
	ResponseChannelMessage         ResponseType = 4
	ResponseDeferredChannelMessage ResponseType = 5
	ResponseDeferredUpdateMessage  ResponseType = 6
	ResponseUpdateMessage          ResponseType = 7
)

// Message flags.
const MessageFlagEphemeral = 1 << 6

// Permission bits checked on invoking members.
const (
	PermissionAdministrator  uint64 = 1 << 3
	PermissionManageChannels uint64 = 1 << 4
)

// Component types and button styles.
const (
	ComponentActionRow    = 1
	ComponentButton       = 2
	ComponentStringSelect = 3

	ButtonPrimary   = 1
	ButtonSecondary = 2
	ButtonSuccess   = 3
	ButtonDanger    = 4
	ButtonLink      = 5
)

// Interaction is the envelope the platform posts to the webhook.
type Interaction struct {
	ID            string           `json:"id"`
	ApplicationID string           `json:"application_id"`
	Type          InteractionType  `json:"type"`
	Data          *InteractionData `json:"data,omitempty"`
	GuildID       string           `json:"guild_id,omitempty"`
	ChannelID     string           `json:"channel_id,omitempty"`
	Member        *Member          `json:"member,omitempty"`
	User          *User            `json:"user,omitempty"`
	Token         string           `json:"token"`
	Version       int              `json:"version,omitempty"`
}

// UserID returns the invoking user's id for guild and DM interactions.
func (i *Interaction) UserID() string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// CommandName returns the slash command name, or "".
func (i *Interaction) CommandName() string {
	if i.Data == nil {
		return ""
	}
	return i.Data.Name
}

// CustomID returns the component custom id, or "".
func (i *Interaction) CustomID() string {
	if i.Data == nil {
		return ""
	}
	return i.Data.CustomID
}

// Values returns the selected values of a select component.
func (i *Interaction) Values() []string {
	if i.Data == nil {
		return nil
	}
	return i.Data.Values
}

// Option returns the string form of the named command option.
func (i *Interaction) Option(name string) (string, bool) {
	if i.Data == nil {
		return "", false
	}
	for _, o := range i.Data.Options {
		if o.Name == name {
			return o.String(), true
		}
	}
	return "", false
}

// InteractionData carries the command or component specific payload.
type InteractionData struct {
	ID            string          `json:"id,omitempty"`
	Name          string          `json:"name,omitempty"`
	Options       []CommandOption `json:"options,omitempty"`
	CustomID      string          `json:"custom_id,omitempty"`
	ComponentType int             `json:"component_type,omitempty"`
	Values        []string        `json:"values,omitempty"`
}

// CommandOption is one argument of a slash command.
type CommandOption struct {
	Name  string          `json:"name"`
	Type  int             `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// String renders the option value as text regardless of its JSON type.
func (o CommandOption) String() string {
	var s string
	if err := json.Unmarshal(o.Value, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(o.Value))
}

// Member is a guild member; Permissions is a decimal bitset string.
type Member struct {
	User        *User    `json:"user,omitempty"`
	Nick        string   `json:"nick,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions string   `json:"permissions,omitempty"`
}

// HasAny reports whether the member holds at least one of the given bits.
func (m *Member) HasAny(bits ...uint64) bool {
	if m == nil {
		return false
	}
	perms, err := strconv.ParseUint(m.Permissions, 10, 64)
	if err != nil {
		return false
	}
	for _, b := range bits {
		if perms&b != 0 {
			return true
		}
	}
	return false
}

// User is a platform account.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username,omitempty"`
	GlobalName string `json:"global_name,omitempty"`
}

// InteractionResponse is a synchronous webhook reply.
type InteractionResponse struct {
	Type ResponseType  `json:"type"`
	Data *ResponseData `json:"data,omitempty"`
}

// ResponseData is the optional body of an InteractionResponse.
type ResponseData struct {
	Content string `json:"content,omitempty"`
	Flags   int    `json:"flags,omitempty"`
}

// MessageParams is the body of a create or edit message call.
type MessageParams struct {
	Content         string           `json:"content"`
	Embeds          []Embed          `json:"embeds"`
	Components      []Component      `json:"components"`
	Flags           int              `json:"flags,omitempty"`
	AllowedMentions *AllowedMentions `json:"allowed_mentions,omitempty"`
}

// AllowedMentions restricts which mentions in content ping anyone.
type AllowedMentions struct {
	Parse []string `json:"parse"`
}

// NoMentions disables every ping.
func NoMentions() *AllowedMentions { return &AllowedMentions{Parse: []string{}} }

// Embed is a rich card attached to a message.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField is one name/value row in an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter is the small text under an embed.
type EmbedFooter struct {
	Text string `json:"text"`
}

// Component is a button, select menu or action row.
type Component struct {
	Type        int            `json:"type"`
	Style       int            `json:"style,omitempty"`
	Label       string         `json:"label,omitempty"`
	CustomID    string         `json:"custom_id,omitempty"`
	URL         string         `json:"url,omitempty"`
	Disabled    bool           `json:"disabled,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
	MinValues   *int           `json:"min_values,omitempty"`
	MaxValues   *int           `json:"max_values,omitempty"`
	Options     []SelectOption `json:"options,omitempty"`
	Components  []Component    `json:"components,omitempty"`
}

// SelectOption is one entry of a select menu.
type SelectOption struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

// ActionRow wraps components into a row.
func ActionRow(cs ...Component) Component {
	return Component{Type: ComponentActionRow, Components: cs}
}

// Message is the subset of a posted message the bridge reads back.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

// Channel is the subset of a channel the bridge reads.
type Channel struct {
	ID      string `json:"id"`
	GuildID string `json:"guild_id,omitempty"`
	Name    string `json:"name,omitempty"`
	Type    int    `json:"type"`
}

// Role is a guild role with its permission bitset.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Permissions string `json:"permissions"`
}
