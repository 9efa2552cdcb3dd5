package handlers

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/tbourn/pollcord/internal/discord"
	"github.com/tbourn/pollcord/internal/queue"
)

type webhookEnv struct {
	router *gin.Engine
	priv   ed25519.PrivateKey
	queue  *queue.Queue
}

func newWebhookEnv(t *testing.T, q TaskEnqueuer) *webhookEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	v, err := discord.NewVerifier(hex.EncodeToString(pub))
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	env := &webhookEnv{priv: priv}
	if q == nil {
		s := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: s.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		env.queue = queue.New(client, queue.Interactions)
		q = env.queue
	}

	h := NewInteractionsHandler(v, q, "app-1")
	r := gin.New()
	r.Any("/interactions", h.Handle)
	env.router = r
	return env
}

func (e *webhookEnv) post(body string, sign bool) *httptest.ResponseRecorder {
	ts := "1700000000"
	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewBufferString(body))
	req.Header.Set(HeaderTimestamp, ts)
	if sign {
		sig := ed25519.Sign(e.priv, append([]byte(ts), body...))
		req.Header.Set(HeaderSignature, hex.EncodeToString(sig))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) discord.InteractionResponse {
	t.Helper()
	var resp discord.InteractionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestInteractions_Ping(t *testing.T) {
	env := newWebhookEnv(t, nil)
	w := env.post(`{"type":1,"application_id":"app-1"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if resp := decodeResponse(t, w); resp.Type != discord.ResponsePong || resp.Data != nil {
		t.Fatalf("unexpected pong %+v", resp)
	}
	if n, _ := env.queue.Pending(context.Background()); n != 0 {
		t.Fatalf("ping must not be queued, pending=%d", n)
	}
}

func TestInteractions_QueuesAndDefers(t *testing.T) {
	env := newWebhookEnv(t, nil)
	ctx := context.Background()

	t.Run("command opens an ephemeral deferred reply", func(t *testing.T) {
		w := env.post(`{"id":"100","type":2,"application_id":"app-1","token":"tok","data":{"name":"link-group"}}`, true)
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
		}
		resp := decodeResponse(t, w)
		if resp.Type != discord.ResponseDeferredChannelMessage || resp.Data == nil || resp.Data.Flags != discord.MessageFlagEphemeral {
			t.Fatalf("unexpected ack %+v", resp)
		}
	})

	t.Run("in-reply click updates in place", func(t *testing.T) {
		w := env.post(`{"id":"101","type":3,"application_id":"app-1","token":"tok","data":{"custom_id":"page_next:p1"}}`, true)
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d", w.Code)
		}
		if resp := decodeResponse(t, w); resp.Type != discord.ResponseDeferredUpdateMessage {
			t.Fatalf("unexpected ack %+v", resp)
		}
	})

	// The queued payload is the raw body, keyed by interaction id.
	task, err := env.queue.Claim(ctx, time.Now().Add(time.Second))
	if err != nil || task == nil {
		t.Fatalf("claim: %v %v", task, err)
	}
	if task.Key != "100" {
		t.Fatalf("expected key 100, got %q", task.Key)
	}
	var in discord.Interaction
	if err := json.Unmarshal(task.Payload, &in); err != nil || in.Token != "tok" || in.CommandName() != "link-group" {
		t.Fatalf("payload not preserved: %+v %v", in, err)
	}
}

func TestInteractions_Rejections(t *testing.T) {
	env := newWebhookEnv(t, nil)

	cases := []struct {
		name string
		body string
		sign bool
		want int
	}{
		{"unsigned", `{"type":1,"application_id":"app-1"}`, false, http.StatusUnauthorized},
		{"not json", `{"type":`, true, http.StatusBadRequest},
		{"missing type", `{"id":"1","application_id":"app-1"}`, true, http.StatusBadRequest},
		{"foreign application", `{"id":"1","type":2,"application_id":"app-2"}`, true, http.StatusUnauthorized},
		{"missing id", `{"type":2,"application_id":"app-1"}`, true, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.post(tc.body, tc.sign)
			if w.Code != tc.want {
				t.Fatalf("status=%d; want %d (%s)", w.Code, tc.want, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); !bytes.HasPrefix([]byte(ct), []byte("text/plain")) {
				t.Fatalf("errors must be plain text, got %q", ct)
			}
		})
	}

	// Tampered body: signature was computed over something else.
	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewBufferString(`{"type":1}`))
	req.Header.Set(HeaderTimestamp, "1700000000")
	req.Header.Set(HeaderSignature, hex.EncodeToString(ed25519.Sign(env.priv, []byte("1700000000{\"type\":2}"))))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("tampered body status=%d", w.Code)
	}

	if n, _ := env.queue.Pending(context.Background()); n != 0 {
		t.Fatalf("rejected requests must not be queued, pending=%d", n)
	}
}

func TestInteractions_MethodNotAllowed(t *testing.T) {
	env := newWebhookEnv(t, nil)
	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, httptest.NewRequest(m, "/interactions", nil))
		if w.Code != http.StatusMethodNotAllowed || w.Header().Get("Allow") != http.MethodPost {
			t.Fatalf("%s: status=%d allow=%q", m, w.Code, w.Header().Get("Allow"))
		}
	}
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, string, []byte, time.Duration) (string, error) {
	return "", errors.New("redis unavailable")
}

func TestInteractions_EnqueueFailure(t *testing.T) {
	env := newWebhookEnv(t, failingQueue{})
	w := env.post(`{"id":"1","type":2,"application_id":"app-1","token":"t"}`, true)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d; want 500", w.Code)
	}
}
