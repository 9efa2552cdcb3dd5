// Package dispatch routes inbound interactions to handlers. Custom ids are
// parsed once into a ComponentID and looked up by exact verb, so no entry in
// the table can shadow another.
package dispatch

import (
	"strings"

	"github.com/tbourn/pollcord/internal/discord"
)

// Verb names a component action. The set is closed.
type Verb string

// Component verbs.
const (
	VerbVoteButton    Verb = "vote_btn"
	VerbVotePreferred Verb = "vote_pref"
	VerbVoteFeasible  Verb = "vote_feasible"
	VerbPagePrev      Verb = "page_prev"
	VerbPageNext      Verb = "page_next"
	VerbClearVotes    Verb = "clear_votes"
	VerbNoneWork      Verb = "none_work"
	VerbSubmitVote    Verb = "submit_vote"
)

// Slash commands.
const (
	CommandLinkGroup   = "link-group"
	CommandUnlinkGroup = "unlink-group"
)

// ComponentID is a parsed custom id of the form <verb>:<entityId>[:<subverb>].
type ComponentID struct {
	Verb     Verb
	EntityID string
	SubVerb  string
}

// ParseComponentID splits a custom id. It never fails; an id without a
// separator yields an empty EntityID.
func ParseComponentID(customID string) ComponentID {
	parts := strings.SplitN(customID, ":", 3)
	id := ComponentID{Verb: Verb(parts[0])}
	if len(parts) > 1 {
		id.EntityID = parts[1]
	}
	if len(parts) > 2 {
		id.SubVerb = parts[2]
	}
	return id
}

// String renders the id back into its wire form.
func (c ComponentID) String() string {
	s := string(c.Verb) + ":" + c.EntityID
	if c.SubVerb != "" {
		s += ":" + c.SubVerb
	}
	return s
}

// CustomID builds the wire form for verb and entityID.
func CustomID(verb Verb, entityID string) string {
	return ComponentID{Verb: verb, EntityID: entityID}.String()
}

// DeferredAck is the provisional reply the webhook sends before queueing.
// Commands and the public card's vote button open a new private reply;
// clicks inside that private reply update it in place.
func DeferredAck(in *discord.Interaction) discord.InteractionResponse {
	if in.Type == discord.InteractionMessageComponent &&
		ParseComponentID(in.CustomID()).Verb != VerbVoteButton {
		return discord.InteractionResponse{Type: discord.ResponseDeferredUpdateMessage}
	}
	return discord.InteractionResponse{
		Type: discord.ResponseDeferredChannelMessage,
		Data: &discord.ResponseData{Flags: discord.MessageFlagEphemeral},
	}
}
