package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/pollcord/internal/discord"
	"github.com/tbourn/pollcord/internal/dispatch"
	"github.com/tbourn/pollcord/internal/domain"
	"github.com/tbourn/pollcord/internal/repo"
	"github.com/tbourn/pollcord/internal/session"
)

type voteEnv struct {
	db       *gorm.DB
	sessions *session.RedisStore
	cards    *fakeScheduler
	editor   *fakeEditor
	svc      *InteractionService
}

func newVoteEnv(t *testing.T, slots int) *voteEnv {
	t.Helper()
	db := newSvcDB(t)
	env := &voteEnv{db: db, sessions: newSessionStore(t), cards: &fakeScheduler{}}

	router := dispatch.NewRouter()
	(&VoteFlow{DB: db, Sessions: env.sessions, Cards: env.cards}).Register(router)
	env.svc, env.editor = newInteractionService(t, db, router)

	start := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	p := &domain.Poll{
		ID:             "p1",
		CreatorID:      "u1",
		Title:          "Game night",
		Status:         domain.PollOpen,
		ParticipantIDs: []string{"u2"},
		Chat:           domain.ChatLink{ChannelID: "c1", GuildID: "g1"},
	}
	for i := 0; i < slots; i++ {
		at := start.Add(time.Duration(i) * 24 * time.Hour)
		p.Slots = append(p.Slots, domain.Slot{ID: slotName(i), Start: at, End: at.Add(2 * time.Hour)})
	}
	require.NoError(t, db.Create(p).Error)
	require.NoError(t, db.Create(&domain.User{ID: "u2", Email: "u2@example.com", DiscordUserID: "d2"}).Error)
	require.NoError(t, db.Create(&domain.User{ID: "u9", Email: "u9@example.com", DiscordUserID: "d9"}).Error)
	return env
}

// slotName maps 0,1,2… to a,b,c… and s26, s27… past z.
func slotName(i int) string {
	if i < 26 {
		return string(rune('a' + i))
	}
	return fmt.Sprintf("s%d", i)
}

// click processes a component interaction from chat user d2.
func (e *voteEnv) click(t *testing.T, verb dispatch.Verb, values ...string) {
	t.Helper()
	e.clickAs(t, "d2", verb, values...)
}

func (e *voteEnv) clickAs(t *testing.T, chatUser string, verb dispatch.Verb, values ...string) {
	t.Helper()
	in := discord.Interaction{
		ID:            snowflakeAt(time.Now()),
		ApplicationID: testAppID,
		Type:          discord.InteractionMessageComponent,
		Token:         "tok",
		ChannelID:     "c1",
		GuildID:       "g1",
		Member:        &discord.Member{User: &discord.User{ID: chatUser}},
		Data:          &discord.InteractionData{CustomID: dispatch.CustomID(verb, "p1"), Values: values},
	}
	require.NoError(t, e.svc.Process(context.Background(), mustJSON(t, in)))
}

func (e *voteEnv) session(t *testing.T) *session.VoteSession {
	t.Helper()
	vs, err := e.sessions.Get(context.Background(), "p1", "d2")
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	return vs
}

func (e *voteEnv) vote(t *testing.T) *domain.Vote {
	t.Helper()
	v, err := repo.GetVote(context.Background(), e.db, "p1", "u2")
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	return v
}

func TestVoteFlow_SubmitRoundTrip(t *testing.T) {
	env := newVoteEnv(t, 3)

	env.click(t, dispatch.VerbVoteButton)
	env.click(t, dispatch.VerbVoteFeasible, "a", "b")
	env.click(t, dispatch.VerbVotePreferred, "a")
	env.click(t, dispatch.VerbSubmitVote)

	v := env.vote(t)
	require.NotNil(t, v)
	assert.Equal(t, map[string]string{"a": domain.VotePreferred, "b": domain.VoteFeasible}, v.Votes)
	assert.Equal(t, VoteSource, v.Source)
	assert.False(t, v.NoTimesWork)
	assert.Nil(t, env.session(t), "session should be deleted on submit")
	assert.Equal(t, []string{"p1"}, env.cards.polls)
	assert.Contains(t, env.editor.last().Content, "was saved")
}

func TestVoteFlow_PreferredAlwaysFeasible(t *testing.T) {
	env := newVoteEnv(t, 3)
	env.click(t, dispatch.VerbVoteButton)

	env.click(t, dispatch.VerbVotePreferred, "c")
	vs := env.session(t)
	require.NotNil(t, vs)
	assert.Equal(t, []string{"c"}, vs.Preferred)
	assert.Equal(t, []string{"c"}, vs.Feasible)

	env.click(t, dispatch.VerbVoteFeasible, "a")
	vs = env.session(t)
	assert.Empty(t, vs.Preferred)
	assert.Equal(t, []string{"a"}, vs.Feasible)
}

func TestVoteFlow_StaleSlotsRejected(t *testing.T) {
	env := newVoteEnv(t, 3)
	env.click(t, dispatch.VerbVoteButton)
	env.click(t, dispatch.VerbVoteFeasible, "a", "b")

	// Slot b is removed while the user is voting.
	var p domain.Poll
	require.NoError(t, env.db.First(&p, "id = ?", "p1").Error)
	p.Slots = p.Slots[:1]
	require.NoError(t, env.db.Save(&p).Error)

	env.click(t, dispatch.VerbSubmitVote)
	assert.Equal(t, replyStaleSlots, env.editor.last().Content)
	assert.Nil(t, env.vote(t))
	assert.Empty(t, env.cards.polls)
}

func TestVoteFlow_PaginationClamps(t *testing.T) {
	env := newVoteEnv(t, 30)
	env.click(t, dispatch.VerbVoteButton)

	env.click(t, dispatch.VerbPageNext)
	env.click(t, dispatch.VerbPageNext)
	env.click(t, dispatch.VerbPageNext)
	assert.Equal(t, 1, env.session(t).PageIndex)
	assert.Contains(t, env.editor.last().Content, "Page 2 of 2")

	// Selections on page 2 only touch page 2 slots.
	env.click(t, dispatch.VerbVoteFeasible, "s26", "s29")
	assert.Equal(t, []string{"s26", "s29"}, env.session(t).Feasible)

	for i := 0; i < 4; i++ {
		env.click(t, dispatch.VerbPagePrev)
	}
	assert.Equal(t, 0, env.session(t).PageIndex)
	env.click(t, dispatch.VerbVoteFeasible, "a")
	assert.Equal(t, []string{"a", "s26", "s29"}, env.session(t).Feasible)
}

func TestVoteFlow_NoneWorkAndClear(t *testing.T) {
	env := newVoteEnv(t, 3)
	env.click(t, dispatch.VerbVoteButton)
	env.click(t, dispatch.VerbVoteFeasible, "a")

	env.click(t, dispatch.VerbClearVotes)
	vs := env.session(t)
	require.NotNil(t, vs)
	assert.True(t, vs.Empty())

	env.click(t, dispatch.VerbSubmitVote)
	assert.Equal(t, replyEmptySelection, env.editor.last().Content)
	assert.Nil(t, env.vote(t))

	env.click(t, dispatch.VerbNoneWork)
	v := env.vote(t)
	require.NotNil(t, v)
	assert.True(t, v.NoTimesWork)
	assert.Empty(t, v.Votes)
	assert.Nil(t, env.session(t))
	assert.Equal(t, []string{"p1"}, env.cards.polls)
}

func TestVoteFlow_SeedsFromPreviousVote(t *testing.T) {
	env := newVoteEnv(t, 3)
	require.NoError(t, repo.UpsertVote(context.Background(), env.db, &domain.Vote{
		PollID: "p1", UserID: "u2",
		Votes: map[string]string{"a": domain.VotePreferred, "b": domain.VoteFeasible, "gone": domain.VoteFeasible},
	}))

	env.click(t, dispatch.VerbVoteButton)
	vs := env.session(t)
	require.NotNil(t, vs)
	assert.Equal(t, []string{"a"}, vs.Preferred)
	assert.Equal(t, []string{"a", "b"}, vs.Feasible)
}

func TestVoteFlow_RevalidatesEveryStep(t *testing.T) {
	t.Run("closed", func(t *testing.T) {
		env := newVoteEnv(t, 3)
		env.click(t, dispatch.VerbVoteButton)
		require.NoError(t, env.db.Model(&domain.Poll{}).Where("id = ?", "p1").Update("status", domain.PollFinalized).Error)
		env.click(t, dispatch.VerbVoteFeasible, "a")
		assert.Equal(t, replyPollClosed, env.editor.last().Content)
	})
	t.Run("not_participant", func(t *testing.T) {
		env := newVoteEnv(t, 3)
		env.clickAs(t, "d9", dispatch.VerbVoteButton)
		assert.Equal(t, replyNotParticipant, env.editor.last().Content)
	})
	t.Run("unlinked_account", func(t *testing.T) {
		env := newVoteEnv(t, 3)
		env.clickAs(t, "stranger", dispatch.VerbVoteButton)
		assert.Equal(t, replyAccountNotLinked, env.editor.last().Content)
	})
	t.Run("other_channel", func(t *testing.T) {
		env := newVoteEnv(t, 3)
		require.NoError(t, env.db.Model(&domain.Poll{}).Where("id = ?", "p1").Update("discord_channel_id", "c2").Error)
		env.click(t, dispatch.VerbVoteButton)
		assert.Equal(t, replyChannelMismatch, env.editor.last().Content)
	})
	t.Run("session_expired", func(t *testing.T) {
		env := newVoteEnv(t, 3)
		env.click(t, dispatch.VerbVotePreferred, "a")
		assert.Equal(t, replySessionExpired, env.editor.last().Content)
	})
	t.Run("poll_gone", func(t *testing.T) {
		env := newVoteEnv(t, 3)
		require.NoError(t, env.db.Where("id = ?", "p1").Delete(&domain.Poll{}).Error)
		env.click(t, dispatch.VerbVoteButton)
		assert.Equal(t, replyPollNotFound, env.editor.last().Content)
	})
}
