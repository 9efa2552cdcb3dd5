// Interactions webhook.
//
// The platform posts every slash command and component click to a single
// endpoint and expects an answer within three seconds. The handler only
// authenticates the request, answers pings, and hands the raw body to the
// interactions queue before acknowledging; all real work happens in the
// queue worker.
//
// Errors are answered in plain text. The platform only looks at the status.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pollcord/internal/discord"
	"github.com/tbourn/pollcord/internal/dispatch"
	"github.com/tbourn/pollcord/internal/http/middleware"
	"github.com/tbourn/pollcord/internal/observability"
)

// Signature headers set by the platform on every webhook request.
const (
	HeaderSignature = "X-Signature-Ed25519"
	HeaderTimestamp = "X-Signature-Timestamp"
)

// SignatureVerifier checks a request signature over timestamp+body.
type SignatureVerifier interface {
	Verify(signatureHex, timestamp string, body []byte) bool
}

// TaskEnqueuer schedules a payload on a work queue.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, key string, payload []byte, delay time.Duration) (string, error)
}

// InteractionsHandler serves the interactions webhook.
type InteractionsHandler struct {
	verifier      SignatureVerifier
	queue         TaskEnqueuer
	applicationID string
}

// NewInteractionsHandler returns a webhook handler that verifies with v and
// queues accepted interactions on q. Interactions addressed to an application
// other than applicationID are rejected.
func NewInteractionsHandler(v SignatureVerifier, q TaskEnqueuer, applicationID string) *InteractionsHandler {
	return &InteractionsHandler{verifier: v, queue: q, applicationID: applicationID}
}

// Handle godoc
// @ID          postInteraction
// @Summary     Receive a platform interaction
// @Description Verifies the Ed25519 signature, answers pings, and queues every other interaction before returning a deferred acknowledgement.
// @Tags        Interactions
// @Accept      json
// @Produce     json
//
// @Param       X-Signature-Ed25519    header  string  true  "Request signature (hex)"
// @Param       X-Signature-Timestamp  header  string  true  "Signature timestamp"
//
// @Success     200  {object}  discord.InteractionResponse
// @Failure     400  {string}  string  "Malformed interaction"
// @Failure     401  {string}  string  "Invalid signature"
// @Failure     405  {string}  string  "Method not allowed"
// @Failure     500  {string}  string  "Queueing failed"
// @Router      /interactions [post]
func (h *InteractionsHandler) Handle(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.Header("Allow", http.MethodPost)
		c.String(http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "unreadable body")
		return
	}

	sig, ts := c.GetHeader(HeaderSignature), c.GetHeader(HeaderTimestamp)
	if sig == "" || ts == "" || !h.verifier.Verify(sig, ts, body) {
		observability.WebhookRequests.WithLabelValues("unauthorized").Inc()
		c.String(http.StatusUnauthorized, "invalid request signature")
		return
	}

	var in discord.Interaction
	if err := json.Unmarshal(body, &in); err != nil || in.Type == 0 {
		observability.WebhookRequests.WithLabelValues("bad_request").Inc()
		c.String(http.StatusBadRequest, "invalid interaction body")
		return
	}
	if h.applicationID != "" && in.ApplicationID != h.applicationID {
		observability.WebhookRequests.WithLabelValues("unauthorized").Inc()
		c.String(http.StatusUnauthorized, "unknown application")
		return
	}

	if in.Type == discord.InteractionPing {
		observability.WebhookRequests.WithLabelValues("ping").Inc()
		c.JSON(http.StatusOK, discord.InteractionResponse{Type: discord.ResponsePong})
		return
	}
	if in.ID == "" {
		observability.WebhookRequests.WithLabelValues("bad_request").Inc()
		c.String(http.StatusBadRequest, "interaction id is required")
		return
	}

	if _, err := h.queue.Enqueue(c.Request.Context(), in.ID, body, 0); err != nil {
		observability.WebhookRequests.WithLabelValues("error").Inc()
		lg := middleware.LoggerFrom(c)
		lg.Error().Err(err).Str("interaction_id", in.ID).Msg("queue interaction failed")
		c.String(http.StatusInternalServerError, "failed to queue interaction")
		return
	}

	observability.WebhookRequests.WithLabelValues("queued").Inc()
	c.JSON(http.StatusOK, dispatch.DeferredAck(&in))
}
