package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// APIError is a non-2xx answer from the platform API.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord api: status %d code %d: %s", e.Status, e.Code, e.Message)
}

// NotFound reports whether the target resource no longer exists.
func (e *APIError) NotFound() bool { return e.Status == http.StatusNotFound }

// Client is a thin REST client for the outbound calls the bridge makes.
// All calls share a token bucket so bursts stay under the global limit.
type Client struct {
	base       string
	botToken   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ OriginalResponseEditor = (*Client)(nil)

// NewClient creates a client for apiBase (e.g. "https://discord.com/api/v10").
func NewClient(apiBase, botToken string, rps float64) *Client {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		base:       apiBase,
		botToken:   botToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// CreateMessage posts a new message in channelID.
func (c *Client) CreateMessage(ctx context.Context, channelID string, msg MessageParams) (*Message, error) {
	var out Message
	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	if err := c.do(ctx, "CreateMessage", http.MethodPost, path, true, normalize(msg), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EditMessage replaces the content of a message the bot posted.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, msg MessageParams) (*Message, error) {
	var out Message
	path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
	if err := c.do(ctx, "EditMessage", http.MethodPatch, path, true, normalize(msg), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMessage removes a message. A message that is already gone is not an error.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
	err := c.do(ctx, "DeleteMessage", http.MethodDelete, path, true, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.NotFound() {
		return nil
	}
	return err
}

// GetChannel fetches a channel.
func (c *Client) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	var out Channel
	if err := c.do(ctx, "GetChannel", http.MethodGet, "/channels/"+url.PathEscape(channelID), true, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetGuildRoles lists the roles of a guild.
func (c *Client) GetGuildRoles(ctx context.Context, guildID string) ([]Role, error) {
	var out []Role
	if err := c.do(ctx, "GetGuildRoles", http.MethodGet, "/guilds/"+url.PathEscape(guildID)+"/roles", true, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EditOriginalResponse patches the deferred response of an interaction.
// The interaction token authorizes the call; the bot token is not sent.
func (c *Client) EditOriginalResponse(ctx context.Context, applicationID, token string, msg MessageParams) (*Message, error) {
	var out Message
	path := "/webhooks/" + url.PathEscape(applicationID) + "/" + url.PathEscape(token) + "/messages/@original"
	if err := c.do(ctx, "EditOriginalResponse", http.MethodPatch, path, false, normalize(msg), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do executes one API call with rate limiting. A 429 is retried once after
// the advertised delay; a 5xx or transport error is retried once after 500ms.
func (c *Client) do(ctx context.Context, op, method, path string, auth bool, body, out any) error {
	tr := otel.Tracer("discord/Client")
	ctx, span := tr.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method)),
	)
	defer span.End()

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", op, err)
		}
		payload = b
	}

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; attempt < 2; attempt++ {
		if err = c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err = c.send(ctx, method, path, auth, payload)
		if err == nil && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		if attempt == 1 {
			break
		}

		wait := 500 * time.Millisecond
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests {
				wait = retryAfter(resp, wait)
			}
			resp.Body.Close()
		}
		log.Warn().Str("op", op).Dur("wait", wait).Err(err).Msg("discord call retrying")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return fmt.Errorf("discord %s: %w", op, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", op, err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		span.SetStatus(codes.Error, apiErr.Message)
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, auth bool, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.botToken != "" {
		req.Header.Set("Authorization", "Bot "+c.botToken)
	}
	req.Header.Set("User-Agent", "DiscordBot (https://github.com/tbourn/pollcord, 1.0)")
	return c.httpClient.Do(req)
}

// retryAfter reads the Retry-After header (seconds, possibly fractional).
func retryAfter(resp *http.Response, def time.Duration) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return def
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return def
	}
	d := time.Duration(secs * float64(time.Second))
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

// normalize sends empty arrays instead of null so an edit clears old
// embeds and components.
func normalize(m MessageParams) MessageParams {
	if m.Embeds == nil {
		m.Embeds = []Embed{}
	}
	if m.Components == nil {
		m.Components = []Component{}
	}
	return m
}
