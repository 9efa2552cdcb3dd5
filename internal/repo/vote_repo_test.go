package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/pollcord/internal/domain"
)

func TestUpsertVote_InsertThenReplace(t *testing.T) {
	db := newTestDB(t, &domain.Vote{})
	ctx := context.Background()

	v := &domain.Vote{PollID: "p1", UserID: "u1", Votes: map[string]string{"a": domain.VotePreferred}, Source: "discord"}
	if err := UpsertVote(ctx, db, v); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if v.ID != "p1:u1" {
		t.Fatalf("vote id=%q; want p1:u1", v.ID)
	}

	v2 := &domain.Vote{PollID: "p1", UserID: "u1", Votes: map[string]string{"b": domain.VoteFeasible}, Source: "discord"}
	if err := UpsertVote(ctx, db, v2); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var n int64
	db.Model(&domain.Vote{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected a single vote row, got %d", n)
	}
	got, err := GetVote(ctx, db, "p1", "u1")
	if err != nil {
		t.Fatalf("GetVote: %v", err)
	}
	if len(got.Votes) != 1 || got.Votes["b"] != domain.VoteFeasible {
		t.Fatalf("selections not replaced: %v", got.Votes)
	}
}

func TestGetVote_NotFound(t *testing.T) {
	db := newTestDB(t, &domain.Vote{})
	if _, err := GetVote(context.Background(), db, "p", "u"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
