package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/pollcord/internal/dispatch"
	"github.com/tbourn/pollcord/internal/domain"
	"github.com/tbourn/pollcord/internal/repo"
	"github.com/tbourn/pollcord/internal/session"
	"github.com/tbourn/pollcord/internal/utils"
)

// VoteSource tags votes written from chat.
const VoteSource = "discord"

// Vote flow replies.
const (
	replyPollNotFound     = "This poll no longer exists."
	replyPollClosed       = "This poll is no longer accepting votes."
	replyChannelMismatch  = "This poll is not linked to this channel."
	replyAccountNotLinked = "Link your chat account in the app before voting."
	replyNotParticipant   = "You are not a participant of this poll."
	replySessionExpired   = "Your voting session expired. Press Vote on the poll card to start again."
	replyStaleSlots       = "The times on this poll changed while you were voting. Press Vote on the poll card to start again."
	replyEmptySelection   = "Select at least one time that works, or choose None work."
)

// SessionStore persists in-progress vote sessions.
type SessionStore interface {
	Get(ctx context.Context, pollID, userID string) (*session.VoteSession, error)
	Save(ctx context.Context, vs *session.VoteSession) error
	Delete(ctx context.Context, pollID, userID string) error
}

// SyncScheduler requests a debounced card sync for a poll.
type SyncScheduler interface {
	Schedule(ctx context.Context, pollID string) error
}

// VoteFlow implements the multi-step vote components. Sessions are keyed by
// (poll id, chat user id); every step reloads the poll and re-checks that
// the voter may still vote.
type VoteFlow struct {
	DB       *gorm.DB
	Sessions SessionStore
	Cards    SyncScheduler
}

// Register installs the vote handlers on r.
func (f *VoteFlow) Register(r *dispatch.Router) {
	r.Component(dispatch.VerbVoteButton, f.open)
	r.Component(dispatch.VerbVoteFeasible, f.selectSlots, "feasible")
	r.Component(dispatch.VerbVotePreferred, f.selectSlots, "preferred")
	r.Component(dispatch.VerbPagePrev, f.turnPage, "prev")
	r.Component(dispatch.VerbPageNext, f.turnPage, "next")
	r.Component(dispatch.VerbClearVotes, f.clear, "clear")
	r.Component(dispatch.VerbNoneWork, f.clear, "none")
	r.Component(dispatch.VerbSubmitVote, f.submit)
}

// voter is the validated context of one vote step.
type voter struct {
	poll       *domain.Poll
	user       *domain.User
	chatUserID string
}

// authorize loads the poll named by the component and checks that the
// invoking chat user may vote on it from this channel.
func (f *VoteFlow) authorize(ctx context.Context, req *dispatch.Request) (*voter, error) {
	in := req.Interaction
	p, err := repo.GetPoll(ctx, f.DB, req.Component.EntityID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, userError(ErrPollNotFound, replyPollNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load poll: %w", err)
	}
	if !p.IsOpen() {
		return nil, userError(ErrPollClosed, replyPollClosed)
	}
	if !p.Chat.Linked() || p.Chat.ChannelID != in.ChannelID ||
		(p.Chat.GuildID != "" && p.Chat.GuildID != in.GuildID) {
		return nil, userError(ErrChannelMismatch, replyChannelMismatch)
	}

	chatUserID := in.UserID()
	if chatUserID == "" {
		return nil, userError(ErrAccountNotLinked, replyAccountNotLinked)
	}
	u, err := repo.GetUserByDiscordID(ctx, f.DB, chatUserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, userError(ErrAccountNotLinked, replyAccountNotLinked)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !p.HasParticipant(u.ID) {
		return nil, userError(ErrNotParticipant, replyNotParticipant)
	}
	return &voter{poll: p, user: u, chatUserID: chatUserID}, nil
}

// loadSession returns the live session or a "session expired" user error.
func (f *VoteFlow) loadSession(ctx context.Context, v *voter) (*session.VoteSession, error) {
	vs, err := f.Sessions.Get(ctx, v.poll.ID, v.chatUserID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, userError(ErrSessionExpired, replySessionExpired)
	}
	return vs, err
}

// saveAndRender persists vs and redraws the current page.
func (f *VoteFlow) saveAndRender(ctx context.Context, req *dispatch.Request, v *voter, vs *session.VoteSession) error {
	vs.PageIndex = utils.Paginate(vs.PageIndex, len(v.poll.Slots), VotePageSize).Index
	if err := f.Sessions.Save(ctx, vs); err != nil {
		return err
	}
	return req.Reply.Send(ctx, renderVotePage(v.poll, vs))
}

// open starts or resumes a session. A fresh session is seeded from the
// user's stored vote, restricted to the poll's current slots.
func (f *VoteFlow) open(ctx context.Context, req *dispatch.Request) error {
	v, err := f.authorize(ctx, req)
	if err != nil {
		return err
	}
	vs, err := f.Sessions.Get(ctx, v.poll.ID, v.chatUserID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		prev, err := repo.GetVote(ctx, f.DB, v.poll.ID, v.user.ID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("load vote: %w", err)
		}
		if prev != nil {
			current := v.poll.SlotIDs()
			for slotID := range prev.Votes {
				if !containsID(current, slotID) {
					delete(prev.Votes, slotID)
				}
			}
		}
		vs = session.FromVote(v.poll.ID, v.chatUserID, prev)
	case err != nil:
		return err
	}
	return f.saveAndRender(ctx, req, v, vs)
}

// selectSlots applies a select menu to the current page.
func (f *VoteFlow) selectSlots(ctx context.Context, req *dispatch.Request) error {
	v, err := f.authorize(ctx, req)
	if err != nil {
		return err
	}
	vs, err := f.loadSession(ctx, v)
	if err != nil {
		return err
	}
	pg := utils.Paginate(vs.PageIndex, len(v.poll.Slots), VotePageSize)
	page := v.poll.SlotIDs()[pg.Start:pg.End]
	if req.Args[0] == "preferred" {
		vs.SelectPreferred(page, req.Interaction.Values())
	} else {
		vs.SelectFeasible(page, req.Interaction.Values())
	}
	return f.saveAndRender(ctx, req, v, vs)
}

func (f *VoteFlow) turnPage(ctx context.Context, req *dispatch.Request) error {
	v, err := f.authorize(ctx, req)
	if err != nil {
		return err
	}
	vs, err := f.loadSession(ctx, v)
	if err != nil {
		return err
	}
	step := 1
	if req.Args[0] == "prev" {
		step = -1
	}
	vs.PageIndex = utils.Paginate(vs.PageIndex+step, len(v.poll.Slots), VotePageSize).Index
	return f.saveAndRender(ctx, req, v, vs)
}

// clear resets the selection ("clear") or records that no time works
// ("none"). The latter is a terminal vote and ends the session.
func (f *VoteFlow) clear(ctx context.Context, req *dispatch.Request) error {
	v, err := f.authorize(ctx, req)
	if err != nil {
		return err
	}
	if req.Args[0] == "none" {
		vote := &domain.Vote{
			PollID:      v.poll.ID,
			UserID:      v.user.ID,
			Votes:       map[string]string{},
			NoTimesWork: true,
			Source:      VoteSource,
		}
		return f.commit(ctx, req, v, vote)
	}

	vs, err := f.Sessions.Get(ctx, v.poll.ID, v.chatUserID)
	if errors.Is(err, session.ErrNotFound) {
		vs = session.New(v.poll.ID, v.chatUserID)
	} else if err != nil {
		return err
	}
	vs.Clear()
	return f.saveAndRender(ctx, req, v, vs)
}

// submit validates the session against the poll's current slots and writes
// the vote.
func (f *VoteFlow) submit(ctx context.Context, req *dispatch.Request) error {
	v, err := f.authorize(ctx, req)
	if err != nil {
		return err
	}
	vs, err := f.loadSession(ctx, v)
	if err != nil {
		return err
	}
	if stale := vs.UnknownSlots(v.poll.SlotIDs()); len(stale) > 0 {
		if err := f.Sessions.Delete(ctx, v.poll.ID, v.chatUserID); err != nil {
			log.Warn().Err(err).Str("poll_id", v.poll.ID).Msg("delete stale vote session")
		}
		return userError(fmt.Errorf("%w: %v", ErrStaleSlots, stale), replyStaleSlots)
	}
	if vs.Empty() {
		return userError(ErrEmptySelection, replyEmptySelection)
	}
	vote := &domain.Vote{
		PollID: v.poll.ID,
		UserID: v.user.ID,
		Votes:  vs.Votes(),
		Source: VoteSource,
	}
	return f.commit(ctx, req, v, vote)
}

// commit writes vote, ends the session and asks for a card refresh.
func (f *VoteFlow) commit(ctx context.Context, req *dispatch.Request, v *voter, vote *domain.Vote) error {
	if err := repo.UpsertVote(ctx, f.DB, vote); err != nil {
		return fmt.Errorf("write vote: %w", err)
	}
	logger := log.With().Str("poll_id", v.poll.ID).Str("user_id", v.user.ID).Logger()
	if err := f.Sessions.Delete(ctx, v.poll.ID, v.chatUserID); err != nil {
		logger.Warn().Err(err).Msg("delete vote session")
	}
	if f.Cards != nil {
		if err := f.Cards.Schedule(ctx, v.poll.ID); err != nil {
			logger.Warn().Err(err).Msg("schedule card sync")
		}
	}
	return req.Reply.Send(ctx, renderVoteSummary(v.poll, vote))
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
