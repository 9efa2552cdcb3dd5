package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/pollcord/internal/domain"
)

func TestMailOutbox_SendAndRetry(t *testing.T) {
	db := newTestDB(t, &domain.MailMessage{})
	ctx := context.Background()

	a := &domain.MailMessage{To: "a@example.com", Subject: "A"}
	b := &domain.MailMessage{To: "b@example.com", Subject: "B"}
	for _, m := range []*domain.MailMessage{a, b} {
		if created, err := EnqueueMail(ctx, db, m); err != nil || !created {
			t.Fatalf("EnqueueMail: created=%v err=%v", created, err)
		}
	}

	pending, err := ListPendingMail(ctx, db, 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending=%d err=%v", len(pending), err)
	}

	if err := MarkMailSent(ctx, db, a.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkMailSent: %v", err)
	}
	if err := MarkMailFailed(ctx, db, b.ID, "smtp down", 2); err != nil {
		t.Fatalf("MarkMailFailed 1: %v", err)
	}

	pending, _ = ListPendingMail(ctx, db, 10)
	if len(pending) != 1 || pending[0].ID != b.ID || pending[0].Attempts != 1 {
		t.Fatalf("expected b pending with 1 attempt, got %+v", pending)
	}

	if err := MarkMailFailed(ctx, db, b.ID, "smtp down", 2); err != nil {
		t.Fatalf("MarkMailFailed 2: %v", err)
	}
	pending, _ = ListPendingMail(ctx, db, 10)
	if len(pending) != 0 {
		t.Fatalf("expected no pending mail, got %d", len(pending))
	}

	var got domain.MailMessage
	db.First(&got, "id = ?", b.ID)
	if got.Status != domain.MailError || got.Error != "smtp down" {
		t.Fatalf("unexpected final state: %+v", got)
	}
}

func TestEnqueueMail_SameIDIsWrittenOnce(t *testing.T) {
	db := newTestDB(t, &domain.MailMessage{})
	ctx := context.Background()

	first := &domain.MailMessage{ID: "7d0c2f4e-0000-5000-8000-000000000001", To: "a@example.com", Subject: "A"}
	if created, err := EnqueueMail(ctx, db, first); err != nil || !created {
		t.Fatalf("first enqueue: created=%v err=%v", created, err)
	}
	again := &domain.MailMessage{ID: first.ID, To: "a@example.com", Subject: "A again"}
	created, err := EnqueueMail(ctx, db, again)
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if created {
		t.Fatalf("second enqueue must not write a row")
	}

	pending, _ := ListPendingMail(ctx, db, 10)
	if len(pending) != 1 || pending[0].Subject != "A" {
		t.Fatalf("expected the first message only, got %+v", pending)
	}
}
