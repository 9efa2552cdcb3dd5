package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pollcord/internal/domain"
	"github.com/tbourn/pollcord/internal/repo"
	"github.com/tbourn/pollcord/internal/services"
)

// ---------- fakes ----------

type stubCards struct {
	synced    []string
	deleted   []DeleteCardRequest
	limit     int
	reconcile int
	err       error
}

func (s *stubCards) Schedule(_ context.Context, pollID string) error {
	s.synced = append(s.synced, pollID)
	return s.err
}

func (s *stubCards) ScheduleDelete(_ context.Context, pollID, channelID, messageID string) error {
	s.deleted = append(s.deleted, DeleteCardRequest{ChannelID: channelID, MessageID: messageID})
	return s.err
}

func (s *stubCards) ReconcilePending(_ context.Context, limit int) (int, error) {
	s.limit = limit
	return s.reconcile, s.err
}

type stubEvents struct {
	got []*domain.NotificationEvent
	err error
}

func (s *stubEvents) Enqueue(_ context.Context, ev *domain.NotificationEvent) error {
	if s.err != nil {
		return s.err
	}
	if ev.ID == "" {
		ev.ID = "generated"
	}
	s.got = append(s.got, ev)
	return nil
}

type stubLinks struct{ err error }

func (s stubLinks) IssueCode(_ context.Context, groupID, userID string) (*domain.LinkCode, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.LinkCode{TargetID: groupID, RequestingUserID: userID, Code: "K7QX2M9D",
		ExpiresAt: time.Date(2026, 5, 1, 18, 15, 0, 0, time.UTC)}, nil
}

func newInternalRouter(cards *stubCards, events *stubEvents, links stubLinks) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewInternal(cards, events, links)
	r := gin.New()
	r.POST("/events", h.PublishEvent)
	r.POST("/polls/:id/sync", h.SyncPoll)
	r.DELETE("/polls/:id/card", h.DeleteCard)
	r.POST("/cards/reconcile", h.ReconcileCards)
	r.POST("/groups/:id/link-code", h.IssueLinkCode)
	return r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v", err)
	}
	return er.Code
}

// ---------- tests ----------

func TestPublishEvent(t *testing.T) {
	events := &stubEvents{}
	r := newInternalRouter(&stubCards{}, events, stubLinks{})

	w := doJSON(r, http.MethodPost, "/events", `{
		"event_type": " POLL_FINALIZED ",
		"resource": {"type": "poll", "id": "p1", "title": "Game night"},
		"actor": {"user_id": "u1", "display_name": "Ada"},
		"recipients": {"user_ids": ["u2"], "emails": ["x@example.com"]},
		"dedupe_key": "poll-p1-finalized"
	}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp AcceptedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.ID != "generated" || resp.Status != domain.EventQueued {
		t.Fatalf("unexpected response %+v", resp)
	}
	ev := events.got[0]
	if ev.EventType != "POLL_FINALIZED" || ev.Resource.ID != "p1" || ev.Actor.DisplayName != "Ada" ||
		len(ev.Recipients.Emails) != 1 || ev.DedupeKey != "poll-p1-finalized" {
		t.Fatalf("event not mapped: %+v", ev)
	}
}

func TestPublishEvent_Errors(t *testing.T) {
	t.Run("missing event type", func(t *testing.T) {
		r := newInternalRouter(&stubCards{}, &stubEvents{}, stubLinks{})
		w := doJSON(r, http.MethodPost, "/events", `{"resource":{"type":"poll","id":"p1"}}`)
		if w.Code != http.StatusBadRequest || errorCode(t, w) != ErrCodeBadRequest {
			t.Fatalf("status=%d", w.Code)
		}
	})
	t.Run("duplicate id", func(t *testing.T) {
		r := newInternalRouter(&stubCards{}, &stubEvents{err: repo.ErrDuplicate}, stubLinks{})
		w := doJSON(r, http.MethodPost, "/events", `{"id":"e1","event_type":"POLL_CREATED"}`)
		if w.Code != http.StatusConflict || errorCode(t, w) != ErrCodeConflict {
			t.Fatalf("status=%d", w.Code)
		}
	})
	t.Run("store failure", func(t *testing.T) {
		r := newInternalRouter(&stubCards{}, &stubEvents{err: errors.New("db down")}, stubLinks{})
		w := doJSON(r, http.MethodPost, "/events", `{"event_type":"POLL_CREATED"}`)
		if w.Code != http.StatusInternalServerError || errorCode(t, w) != ErrCodeEnqueueFailed {
			t.Fatalf("status=%d", w.Code)
		}
	})
}

func TestSyncAndDeleteCard(t *testing.T) {
	cards := &stubCards{}
	r := newInternalRouter(cards, &stubEvents{}, stubLinks{})

	if w := doJSON(r, http.MethodPost, "/polls/p1/sync", ""); w.Code != http.StatusAccepted {
		t.Fatalf("sync status=%d", w.Code)
	}
	if len(cards.synced) != 1 || cards.synced[0] != "p1" {
		t.Fatalf("sync not scheduled: %v", cards.synced)
	}

	// Location from the body, for polls already gone.
	if w := doJSON(r, http.MethodDelete, "/polls/p1/card", `{"channel_id":"c1","message_id":"m1"}`); w.Code != http.StatusAccepted {
		t.Fatalf("delete status=%d", w.Code)
	}
	// No body: location is read from the poll later.
	if w := doJSON(r, http.MethodDelete, "/polls/p2/card", ""); w.Code != http.StatusAccepted {
		t.Fatalf("delete without body status=%d", w.Code)
	}
	if len(cards.deleted) != 2 || cards.deleted[0].ChannelID != "c1" || cards.deleted[0].MessageID != "m1" || cards.deleted[1].ChannelID != "" {
		t.Fatalf("unexpected deletes: %+v", cards.deleted)
	}

	if w := doJSON(r, http.MethodDelete, "/polls/p3/card", `{"channel_id":`); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status=%d", w.Code)
	}

	failing := newInternalRouter(&stubCards{err: errors.New("redis down")}, &stubEvents{}, stubLinks{})
	if w := doJSON(failing, http.MethodPost, "/polls/p1/sync", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("failing sync status=%d", w.Code)
	}
}

func TestReconcileCards_LimitClamp(t *testing.T) {
	cards := &stubCards{reconcile: 3}
	r := newInternalRouter(cards, &stubEvents{}, stubLinks{})

	cases := map[string]int{
		"/cards/reconcile":             100,
		"/cards/reconcile?limit=7":     7,
		"/cards/reconcile?limit=0":     1,
		"/cards/reconcile?limit=99999": 1000,
		"/cards/reconcile?limit=abc":   100,
	}
	for path, want := range cases {
		w := doJSON(r, http.MethodPost, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, w.Code)
		}
		if cards.limit != want {
			t.Fatalf("%s limit=%d; want %d", path, cards.limit, want)
		}
		var resp ReconcileResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Scheduled != 3 {
			t.Fatalf("%s unexpected body %s", path, w.Body.String())
		}
	}
}

func TestIssueLinkCode(t *testing.T) {
	r := newInternalRouter(&stubCards{}, &stubEvents{}, stubLinks{})
	w := doJSON(r, http.MethodPost, "/groups/g1/link-code", `{"user_id":"u1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp LinkCodeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Code != "K7QX2M9D" || resp.ExpiresAt.IsZero() {
		t.Fatalf("unexpected response %+v", resp)
	}

	if w := doJSON(r, http.MethodPost, "/groups/g1/link-code", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing user status=%d", w.Code)
	}

	missing := newInternalRouter(&stubCards{}, &stubEvents{}, stubLinks{err: services.ErrGroupNotFound})
	if w := doJSON(missing, http.MethodPost, "/groups/nope/link-code", `{"user_id":"u1"}`); w.Code != http.StatusNotFound {
		t.Fatalf("unknown group status=%d", w.Code)
	}
}
