package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/pollcord/internal/discord"
	"github.com/tbourn/pollcord/internal/dispatch"
	"github.com/tbourn/pollcord/internal/domain"
	"github.com/tbourn/pollcord/internal/repo"
)

// Link flow replies.
const (
	replyGuildOnly         = "This command can only be used in a server channel."
	replyMissingPermission = "You need the Administrator or Manage Channels permission to do this."
	replyLinkUsage         = "Usage: /link-group group:<group id> code:<link code>"
	replyGroupNotFound     = "That group does not exist."
	replyInvalidLinkCode   = "That link code is not valid."
	replyLinkCodeExpired   = "That link code has expired. Generate a new one in the app."
	replyLinkCodeExhausted = "Too many invalid attempts. Generate a new link code in the app."
	replyNotLinked         = "This channel is not linked to a group."
)

// linkCodeAlphabet omits look-alike characters.
const linkCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// LinkFlow binds groups to chat channels with one-time codes.
type LinkFlow struct {
	DB *gorm.DB
	// MaxAttempts is how many wrong codes invalidate a live code.
	MaxAttempts int
	// CodeTTL is the lifetime of an issued code.
	CodeTTL time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Register installs the link commands on r.
func (f *LinkFlow) Register(r *dispatch.Router) {
	r.Command(dispatch.CommandLinkGroup, f.link)
	r.Command(dispatch.CommandUnlinkGroup, f.unlink)
}

func (f *LinkFlow) now() time.Time {
	if f.Now != nil {
		return f.Now().UTC()
	}
	return time.Now().UTC()
}

func (f *LinkFlow) maxAttempts() int {
	if f.MaxAttempts < 1 {
		return 5
	}
	return f.MaxAttempts
}

// IssueCode creates a fresh code for groupID on behalf of userID, replacing
// any live one.
func (f *LinkFlow) IssueCode(ctx context.Context, groupID, userID string) (*domain.LinkCode, error) {
	if _, err := repo.GetGroup(ctx, f.DB, groupID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	code, err := randomCode(8)
	if err != nil {
		return nil, err
	}
	ttl := f.CodeTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return repo.IssueLinkCode(ctx, f.DB, domain.LinkTargetGroup, groupID, code, userID, ttl)
}

// requireManager rejects DMs and members without admin or manage channels.
func requireManager(in *discord.Interaction) error {
	if in.GuildID == "" || in.Member == nil {
		return userError(ErrGuildOnly, replyGuildOnly)
	}
	if !in.Member.HasAny(discord.PermissionAdministrator, discord.PermissionManageChannels) {
		return userError(ErrMissingPermission, replyMissingPermission)
	}
	return nil
}

func (f *LinkFlow) link(ctx context.Context, req *dispatch.Request) error {
	in := req.Interaction
	if err := requireManager(in); err != nil {
		return err
	}
	groupID, _ := in.Option("group")
	code, _ := in.Option("code")
	if groupID == "" || code == "" {
		return userError(ErrLinkUsage, replyLinkUsage)
	}

	g, err := repo.GetGroup(ctx, f.DB, groupID)
	if errors.Is(err, repo.ErrNotFound) {
		return userError(ErrGroupNotFound, replyGroupNotFound)
	}
	if err != nil {
		return fmt.Errorf("load group: %w", err)
	}

	lc, err := repo.GetLinkCode(ctx, f.DB, domain.LinkTargetGroup, g.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return userError(ErrInvalidLinkCode, replyInvalidLinkCode)
	}
	if err != nil {
		return fmt.Errorf("load link code: %w", err)
	}

	now := f.now()
	if !now.Before(lc.ExpiresAt) {
		if err := repo.DeleteLinkCode(ctx, f.DB, lc.ID); err != nil {
			return fmt.Errorf("delete expired link code: %w", err)
		}
		return userError(ErrLinkCodeExpired, replyLinkCodeExpired)
	}

	given := strings.ToUpper(strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(given), []byte(lc.Code)) != 1 {
		invalidated, err := repo.RecordFailedLinkAttempt(ctx, f.DB, lc.ID, f.maxAttempts())
		if err != nil {
			return fmt.Errorf("record link attempt: %w", err)
		}
		log.Info().Str("group_id", g.ID).Bool("invalidated", invalidated).Msg("invalid link code")
		if invalidated {
			return userError(ErrLinkCodeExhausted, replyLinkCodeExhausted)
		}
		return userError(ErrInvalidLinkCode, replyInvalidLinkCode)
	}

	binding := domain.ChannelBinding{
		ChannelID: in.ChannelID,
		GuildID:   in.GuildID,
		LinkedBy:  in.UserID(),
		LinkedAt:  &now,
	}
	if err := repo.RedeemGroupLink(ctx, f.DB, lc.ID, g.ID, binding); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Another redemption consumed the code first.
			return userError(ErrInvalidLinkCode, replyInvalidLinkCode)
		}
		return fmt.Errorf("redeem link code: %w", err)
	}
	log.Info().Str("group_id", g.ID).Str("channel_id", in.ChannelID).Msg("group linked")
	return req.Reply.SendText(ctx, fmt.Sprintf("Linked **%s** to this channel.", g.Name))
}

func (f *LinkFlow) unlink(ctx context.Context, req *dispatch.Request) error {
	in := req.Interaction
	if err := requireManager(in); err != nil {
		return err
	}
	n, err := repo.UnbindGroupChannel(ctx, f.DB, in.ChannelID)
	if err != nil {
		return fmt.Errorf("unbind channel: %w", err)
	}
	if n == 0 {
		return req.Reply.SendText(ctx, replyNotLinked)
	}
	log.Info().Str("channel_id", in.ChannelID).Int64("groups", n).Msg("channel unlinked")
	return req.Reply.SendText(ctx, "This channel is no longer linked.")
}

func randomCode(n int) (string, error) {
	limit := big.NewInt(int64(len(linkCodeAlphabet)))
	var b strings.Builder
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate link code: %w", err)
		}
		b.WriteByte(linkCodeAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
