package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/pollcord/internal/domain"
)

// Hash domains. The version suffix lets the card layout change without
// colliding with hashes stored by an older release.
const (
	domainPollCard = "pollcord/poll-card/v1"
	domainSlotSet  = "pollcord/slot-set/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

type cardSlot struct {
	ID    string `json:"id"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// cardContent is every input that changes how the card renders. Field order
// is fixed by the struct, which keeps the JSON encoding canonical.
type cardContent struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Status          string     `json:"status"`
	Slots           []cardSlot `json:"slots"`
	FinalizedSlotID string     `json:"finalized_slot_id"`
	VoteCount       int64      `json:"vote_count"`
	Total           int64      `json:"total"`
}

// ComputeSyncHash digests the parts of p that affect its card plus the vote
// counters shown on it. Timestamps, the chat link itself and individual vote
// contents do not contribute.
func ComputeSyncHash(p *domain.Poll, voteCount, total int64) string {
	c := cardContent{
		Title:           norm.NFC.String(p.Title),
		Description:     norm.NFC.String(p.Description),
		Status:          p.Status,
		Slots:           make([]cardSlot, 0, len(p.Slots)),
		FinalizedSlotID: p.FinalizedSlotID,
		VoteCount:       voteCount,
		Total:           total,
	}
	for _, s := range p.Slots {
		c.Slots = append(c.Slots, cardSlot{
			ID:    s.ID,
			Start: s.Start.UTC().Format(time.RFC3339),
			End:   s.End.UTC().Format(time.RFC3339),
		})
	}
	// Marshal of plain strings, ints and slices cannot fail.
	data, _ := json.Marshal(c)
	return hashWithDomain(domainPollCard, data)
}

// SlotSetHash digests the ordered slot ids of p.
func SlotSetHash(p *domain.Poll) string {
	data, _ := json.Marshal(p.SlotIDs())
	return hashWithDomain(domainSlotSet, data)
}
