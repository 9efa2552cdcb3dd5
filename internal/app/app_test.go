package app

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/pollcord/internal/config"
	"github.com/tbourn/pollcord/internal/domain"
	httpapi "github.com/tbourn/pollcord/internal/http"
	"github.com/tbourn/pollcord/internal/repo"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return config.Config{
		APIBasePath:      "/internal",
		InternalAPIToken: "s3cret",
		RateRPS:          100,
		RateBurst:        10,
		AppBaseURL:       "https://app.example.com",
		LockTTL:          5 * time.Minute,
		VoteSessionTTL:   time.Hour,
		LinkCodeTTL:      20 * time.Minute,
		CardSyncDebounce: 2 * time.Second,
		Discord: config.DiscordConfig{
			ApplicationID: "app-1",
			PublicKey:     hex.EncodeToString(pub),
			APIBase:       "http://127.0.0.1:1",
			APIRPS:        10,
			TokenTTL:      15 * time.Minute,
		},
		Queue: config.QueueConfig{
			Region:        "europe-west1",
			PrimaryRegion: "us-central1",
			MaxAttempts:   3,
			BackoffMin:    time.Second,
			BackoffMax:    time.Minute,
			Concurrency:   1,
			PollInterval:  10 * time.Millisecond,
			Lease:         2 * time.Minute,
		},
		OTEL: config.OTELConfig{ServiceName: "pollcord-test"},
	}
}

func newTestApp(t *testing.T) (*App, *miniredis.Miniredis) {
	t.Helper()
	dsn := fmt.Sprintf("file:app_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	a, err := New(testConfig(t), db, rdb)
	require.NoError(t, err)
	return a, mr
}

func TestNew_Validation(t *testing.T) {
	cfg := testConfig(t)
	_, err := New(cfg, nil, nil)
	assert.Error(t, err)

	a, _ := newTestApp(t)
	cfg.Discord.PublicKey = "abcd"
	_, err = New(cfg, a.DB, a.Redis)
	assert.Error(t, err)
}

func TestNew_WiresRegionalQueuesAndOptionalMail(t *testing.T) {
	a, _ := newTestApp(t)
	assert.Equal(t, "locations/europe-west1/functions/discord-interactions", a.Queues.Interactions.Name())
	assert.Equal(t, "locations/europe-west1/functions/poll-card-sync", a.Queues.Cards.Name())
	assert.Equal(t, "locations/europe-west1/functions/notification-events", a.Queues.Notifications.Name())
	assert.Nil(t, a.Mail, "mail dispatcher needs SMTP settings")
	assert.Equal(t, 15*time.Minute, a.Interactions.TokenTTL)
	assert.Equal(t, 20*time.Minute, a.Links.CodeTTL)
	assert.Equal(t, 5*time.Minute, a.Queues.Interactions.Lease(), "interaction lease covers the lock TTL")
	assert.Equal(t, 2*time.Minute, a.Queues.Cards.Lease())
	assert.Equal(t, 2*time.Minute, a.Queues.Notifications.Lease())

	cfg := testConfig(t)
	cfg.SMTP = config.SMTPConfig{Host: "smtp.example.com", Port: "587", From: "polls@example.com"}
	withMail, err := New(cfg, a.DB, a.Redis)
	require.NoError(t, err)
	assert.NotNil(t, withMail.Mail)
}

func TestReady(t *testing.T) {
	a, mr := newTestApp(t)
	require.NoError(t, a.Ready(context.Background()))

	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, a.Ready(ctx))
}

func TestDeps_SyncRouteSchedulesOnCardQueue(t *testing.T) {
	a, _ := newTestApp(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, a.Deps(), a.Config)

	req := httptest.NewRequest(http.MethodPost, "/internal/polls/p1/sync", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	n, err := a.Queues.Cards.Pending(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSweepLocks_DropsDoneLocksPastTokenWindow(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	now := time.Now().UTC()

	locks := []domain.InteractionLock{
		{InteractionID: "old-done", Status: domain.LockDone, AcquiredAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour)},
		{InteractionID: "new-done", Status: domain.LockDone, AcquiredAt: now, UpdatedAt: now},
		{InteractionID: "old-busy", Status: domain.LockProcessing, AcquiredAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour)},
	}
	require.NoError(t, a.DB.Create(&locks).Error)

	a.sweepLocks(ctx)

	var left []string
	require.NoError(t, a.DB.Model(&domain.InteractionLock{}).Order("interaction_id").Pluck("interaction_id", &left).Error)
	assert.Equal(t, []string{"new-done", "old-busy"}, left)
}

func TestRun_StopsOnCancel(t *testing.T) {
	a, _ := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBuildVersion(t *testing.T) {
	assert.Contains(t, BuildVersion(), Version)
}
