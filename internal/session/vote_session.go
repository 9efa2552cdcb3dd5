// Package session stores the ephemeral state of in-progress multi-step
// votes. A VoteSession is keyed by (poll id, chat user id) and only ever
// touched by consecutive clicks of the same user.
package session

import (
	"sort"
	"time"

	"github.com/tbourn/pollcord/internal/domain"
)

// VoteSession is the selection a chat user is building before submitting.
// Every preferred slot is also feasible; the mutators below keep that true.
type VoteSession struct {
	PollID    string    `json:"poll_id"`
	UserID    string    `json:"user_id"`
	Preferred []string  `json:"preferred"`
	Feasible  []string  `json:"feasible"`
	PageIndex int       `json:"page_index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an empty session for (pollID, userID).
func New(pollID, userID string) *VoteSession {
	return &VoteSession{PollID: pollID, UserID: userID}
}

// FromVote seeds a session from a previously submitted vote.
func FromVote(pollID, userID string, v *domain.Vote) *VoteSession {
	s := New(pollID, userID)
	if v == nil || v.NoTimesWork {
		return s
	}
	for slotID, val := range v.Votes {
		switch val {
		case domain.VotePreferred:
			s.Preferred = append(s.Preferred, slotID)
			s.Feasible = append(s.Feasible, slotID)
		case domain.VoteFeasible:
			s.Feasible = append(s.Feasible, slotID)
		}
	}
	s.normalize()
	return s
}

// SelectPreferred replaces the preferred selection among pageSlots with
// selected. Newly preferred slots become feasible as well.
func (s *VoteSession) SelectPreferred(pageSlots, selected []string) {
	s.Preferred = replaceWithin(s.Preferred, pageSlots, selected)
	s.Feasible = union(s.Feasible, intersect(selected, pageSlots))
	s.normalize()
}

// SelectFeasible replaces the feasible selection among pageSlots with
// selected. A slot dropped from feasible is dropped from preferred too.
func (s *VoteSession) SelectFeasible(pageSlots, selected []string) {
	s.Feasible = replaceWithin(s.Feasible, pageSlots, selected)
	s.Preferred = intersect(s.Preferred, s.Feasible)
	s.normalize()
}

// Clear drops every selection and returns to the first page.
func (s *VoteSession) Clear() {
	s.Preferred = nil
	s.Feasible = nil
	s.PageIndex = 0
}

// IsPreferred reports whether slotID is in the preferred set.
func (s *VoteSession) IsPreferred(slotID string) bool { return contains(s.Preferred, slotID) }

// IsFeasible reports whether slotID is in the feasible set.
func (s *VoteSession) IsFeasible(slotID string) bool { return contains(s.Feasible, slotID) }

// Empty reports whether nothing is selected.
func (s *VoteSession) Empty() bool { return len(s.Feasible) == 0 && len(s.Preferred) == 0 }

// Votes renders the selection in the persisted vote shape.
func (s *VoteSession) Votes() map[string]string {
	out := make(map[string]string, len(s.Feasible))
	for _, id := range s.Feasible {
		out[id] = domain.VoteFeasible
	}
	for _, id := range s.Preferred {
		out[id] = domain.VotePreferred
	}
	return out
}

// UnknownSlots returns the selected slot ids that are not in current.
func (s *VoteSession) UnknownSlots(current []string) []string {
	var stale []string
	for _, id := range union(s.Preferred, s.Feasible) {
		if !contains(current, id) {
			stale = append(stale, id)
		}
	}
	return stale
}

// normalize dedupes and sorts both sets and restores preferred ⊆ feasible.
func (s *VoteSession) normalize() {
	s.Preferred = union(nil, s.Preferred)
	s.Feasible = union(s.Feasible, s.Preferred)
}

func contains(set []string, v string) bool {
	for _, x := range set {
		if x == v {
			return true
		}
	}
	return false
}

// union returns the sorted, deduplicated union of a and b.
func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// intersect keeps the elements of a that are also in b.
func intersect(a, b []string) []string {
	keep := make(map[string]struct{}, len(b))
	for _, v := range b {
		keep[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := keep[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// replaceWithin drops every element of set that is on the page, then adds
// the selected elements that are on the page.
func replaceWithin(set, page, selected []string) []string {
	onPage := make(map[string]struct{}, len(page))
	for _, v := range page {
		onPage[v] = struct{}{}
	}
	var out []string
	for _, v := range set {
		if _, ok := onPage[v]; !ok {
			out = append(out, v)
		}
	}
	for _, v := range selected {
		if _, ok := onPage[v]; ok {
			out = append(out, v)
		}
	}
	return union(nil, out)
}
