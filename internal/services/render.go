package services

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/pollcord/internal/discord"
	"github.com/tbourn/pollcord/internal/dispatch"
	"github.com/tbourn/pollcord/internal/domain"
	"github.com/tbourn/pollcord/internal/session"
	"github.com/tbourn/pollcord/internal/utils"
)

// VotePageSize is the number of slots per vote page; a select menu holds at
// most 25 options.
const VotePageSize = 25

// Embed colors by poll status.
const (
	colorOpen      = 0x5865F2
	colorFinalized = 0x57F287
	colorCancelled = 0x95A5A6
)

// maxCardSlots caps the slot lines listed on a card.
const maxCardSlots = 10

var statusTitle = cases.Title(language.English)

// formatSlot renders a slot as "Fri May 1, 18:00–20:00 UTC".
func formatSlot(s domain.Slot) string {
	start, end := s.Start.UTC(), s.End.UTC()
	if start.YearDay() == end.YearDay() && start.Year() == end.Year() {
		return fmt.Sprintf("%s, %s–%s UTC", start.Format("Mon Jan 2"), start.Format("15:04"), end.Format("15:04"))
	}
	return fmt.Sprintf("%s – %s UTC", start.Format("Mon Jan 2, 15:04"), end.Format("Mon Jan 2, 15:04"))
}

// pollURL links to the poll in the web app, or "" when no base is set.
func pollURL(base, pollID string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/polls/" + pollID
}

// renderVotePage builds the private vote UI for the session's current page.
func renderVotePage(p *domain.Poll, vs *session.VoteSession) discord.MessageParams {
	total := len(p.Slots)
	pg := utils.Paginate(vs.PageIndex, total, VotePageSize)
	pages, page := pg.Count, pg.Index
	slots := p.Slots[pg.Start:pg.End]

	feasible := make([]discord.SelectOption, 0, len(slots))
	preferred := make([]discord.SelectOption, 0, len(slots))
	for _, s := range slots {
		label := formatSlot(s)
		feasible = append(feasible, discord.SelectOption{Label: label, Value: s.ID, Default: vs.IsFeasible(s.ID)})
		preferred = append(preferred, discord.SelectOption{Label: label, Value: s.ID, Default: vs.IsPreferred(s.ID)})
	}
	zero, n := 0, len(slots)

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", p.Title)
	b.WriteString("Pick every time that works, then mark the ones you prefer.")
	if pages > 1 {
		fmt.Fprintf(&b, "\nPage %d of %d", page+1, pages)
	}
	fmt.Fprintf(&b, "\nSelected: %d works, %d preferred", len(vs.Feasible), len(vs.Preferred))

	var components []discord.Component
	if n > 0 {
		components = append(components,
			discord.ActionRow(discord.Component{
				Type:        discord.ComponentStringSelect,
				CustomID:    dispatch.CustomID(dispatch.VerbVoteFeasible, p.ID),
				Placeholder: "Times that work",
				MinValues:   &zero,
				MaxValues:   &n,
				Options:     feasible,
			}),
			discord.ActionRow(discord.Component{
				Type:        discord.ComponentStringSelect,
				CustomID:    dispatch.CustomID(dispatch.VerbVotePreferred, p.ID),
				Placeholder: "Preferred times",
				MinValues:   &zero,
				MaxValues:   &n,
				Options:     preferred,
			}),
		)
	}
	if pages > 1 {
		components = append(components, discord.ActionRow(
			discord.Component{Type: discord.ComponentButton, Style: discord.ButtonSecondary, Label: "Previous",
				CustomID: dispatch.CustomID(dispatch.VerbPagePrev, p.ID), Disabled: page == 0},
			discord.Component{Type: discord.ComponentButton, Style: discord.ButtonSecondary, Label: "Next",
				CustomID: dispatch.CustomID(dispatch.VerbPageNext, p.ID), Disabled: page >= pages-1},
		))
	}
	components = append(components, discord.ActionRow(
		discord.Component{Type: discord.ComponentButton, Style: discord.ButtonSuccess, Label: "Submit",
			CustomID: dispatch.CustomID(dispatch.VerbSubmitVote, p.ID)},
		discord.Component{Type: discord.ComponentButton, Style: discord.ButtonSecondary, Label: "Clear",
			CustomID: dispatch.CustomID(dispatch.VerbClearVotes, p.ID)},
		discord.Component{Type: discord.ComponentButton, Style: discord.ButtonDanger, Label: "None work",
			CustomID: dispatch.CustomID(dispatch.VerbNoneWork, p.ID)},
	))

	return discord.MessageParams{
		Content:         b.String(),
		Components:      components,
		AllowedMentions: discord.NoMentions(),
	}
}

// renderVoteSummary confirms a submitted vote.
func renderVoteSummary(p *domain.Poll, v *domain.Vote) discord.MessageParams {
	var b strings.Builder
	fmt.Fprintf(&b, "Your vote on **%s** was saved.", p.Title)
	if v.NoTimesWork {
		b.WriteString("\nYou marked that none of the times work.")
	} else {
		var preferred, feasible int
		for _, val := range v.Votes {
			if val == domain.VotePreferred {
				preferred++
			} else {
				feasible++
			}
		}
		fmt.Fprintf(&b, "\n%d preferred, %d also work.", preferred, feasible)
	}
	return discord.MessageParams{Content: b.String(), AllowedMentions: discord.NoMentions()}
}

// renderPollCard builds the public card for p.
func renderPollCard(p *domain.Poll, voteCount, total int64, appBaseURL string) discord.MessageParams {
	color := colorOpen
	switch p.Status {
	case domain.PollFinalized:
		color = colorFinalized
	case domain.PollCancelled:
		color = colorCancelled
	}

	embed := discord.Embed{
		Title:       p.Title,
		Description: p.Description,
		URL:         pollURL(appBaseURL, p.ID),
		Color:       color,
		Fields: []discord.EmbedField{
			{Name: "Status", Value: statusTitle.String(p.Status), Inline: true},
			{Name: "Responses", Value: fmt.Sprintf("%d / %d", voteCount, total), Inline: true},
		},
		Footer: &discord.EmbedFooter{Text: "Poll " + p.ID},
	}

	if final := finalizedSlot(p); final != nil {
		embed.Fields = append(embed.Fields, discord.EmbedField{Name: "Chosen time", Value: formatSlot(*final)})
	} else if len(p.Slots) > 0 {
		lines := make([]string, 0, maxCardSlots+1)
		for i, s := range p.Slots {
			if i == maxCardSlots {
				lines = append(lines, fmt.Sprintf("…and %d more", len(p.Slots)-maxCardSlots))
				break
			}
			lines = append(lines, "• "+formatSlot(s))
		}
		embed.Fields = append(embed.Fields, discord.EmbedField{Name: "Times", Value: strings.Join(lines, "\n")})
	}

	var buttons []discord.Component
	if p.IsOpen() {
		buttons = append(buttons, discord.Component{Type: discord.ComponentButton, Style: discord.ButtonPrimary,
			Label: "Vote", CustomID: dispatch.CustomID(dispatch.VerbVoteButton, p.ID)})
	}
	if u := pollURL(appBaseURL, p.ID); u != "" {
		buttons = append(buttons, discord.Component{Type: discord.ComponentButton, Style: discord.ButtonLink,
			Label: "Open poll", URL: u})
	}
	msg := discord.MessageParams{Embeds: []discord.Embed{embed}, AllowedMentions: discord.NoMentions()}
	if len(buttons) > 0 {
		msg.Components = []discord.Component{discord.ActionRow(buttons...)}
	}
	return msg
}

func finalizedSlot(p *domain.Poll) *domain.Slot {
	if p.FinalizedSlotID == "" {
		return nil
	}
	for i := range p.Slots {
		if p.Slots[i].ID == p.FinalizedSlotID {
			return &p.Slots[i]
		}
	}
	return nil
}

// renderChatNotification builds the channel post for a notification.
func renderChatNotification(title, body, link string, at time.Time) discord.MessageParams {
	embed := discord.Embed{
		Title:       title,
		Description: body,
		URL:         link,
		Color:       colorOpen,
		Timestamp:   at.UTC().Format(time.RFC3339),
	}
	return discord.MessageParams{Embeds: []discord.Embed{embed}, AllowedMentions: discord.NoMentions()}
}
