package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/pollcord/internal/discord"
	"github.com/tbourn/pollcord/internal/repo"
	"github.com/tbourn/pollcord/internal/session"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newSessionStore(t *testing.T) *session.RedisStore {
	t.Helper()
	_, client := newRedis(t)
	return session.NewRedisStoreWithClient(client, time.Hour)
}

var idSeq atomic.Int64

// snowflakeAt returns a fresh interaction id created at at.
func snowflakeAt(at time.Time) string {
	return strconv.FormatInt((at.UnixMilli()-discord.Epoch)<<22|idSeq.Add(1)&0x3FFFFF, 10)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

// fakeEditor records edits of the original response.
type fakeEditor struct {
	mu   sync.Mutex
	sent []discord.MessageParams
	err  error
}

func (f *fakeEditor) EditOriginalResponse(_ context.Context, _, _ string, msg discord.MessageParams) (*discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return &discord.Message{ID: "orig"}, f.err
}

func (f *fakeEditor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeEditor) last() discord.MessageParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return discord.MessageParams{}
	}
	return f.sent[len(f.sent)-1]
}

// fakeChat records channel message calls.
type fakeChat struct {
	mu       sync.Mutex
	creates  []string // channel ids
	edits    []string // message ids
	deletes  []string // message ids
	posted   []discord.MessageParams
	nextID   int
	failAll  error
	editErr  error
	deleteEr error
}

func (f *fakeChat) CreateMessage(_ context.Context, channelID string, msg discord.MessageParams) (*discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	f.nextID++
	f.creates = append(f.creates, channelID)
	f.posted = append(f.posted, msg)
	return &discord.Message{ID: fmt.Sprintf("m%d", f.nextID), ChannelID: channelID}, nil
}

func (f *fakeChat) EditMessage(_ context.Context, channelID, messageID string, msg discord.MessageParams) (*discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edits = append(f.edits, messageID)
	f.posted = append(f.posted, msg)
	return &discord.Message{ID: messageID, ChannelID: channelID}, nil
}

func (f *fakeChat) DeleteMessage(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteEr != nil {
		return f.deleteEr
	}
	f.deletes = append(f.deletes, messageID)
	return nil
}

// fakeScheduler records scheduled card syncs.
type fakeScheduler struct {
	mu    sync.Mutex
	polls []string
}

func (f *fakeScheduler) Schedule(_ context.Context, pollID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls = append(f.polls, pollID)
	return nil
}

// fakeQueue records enqueued tasks.
type fakeQueue struct {
	mu     sync.Mutex
	keys   []string
	bodies [][]byte
	delays []time.Duration
}

func (f *fakeQueue) Enqueue(_ context.Context, key string, payload []byte, delay time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.bodies = append(f.bodies, payload)
	f.delays = append(f.delays, delay)
	return key, nil
}
