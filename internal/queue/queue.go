// Package queue is a small delayed task queue on Redis. Tasks live in a hash
// keyed by task key; a sorted set orders them by due time. Enqueueing an
// existing key replaces its payload and pushes its due time, which is how
// bursts of card-sync requests coalesce into one run.
//
// Delivery is at-least-once. Claim leases a task instead of removing it: the
// task moves to an in-flight set scored by lease expiry and leaves it only
// through Ack, Retry or Bury. A lease that runs out, because the worker died
// or hung, puts the task back on the due set at the next Claim. A task
// enqueued again while it runs is run again after the running copy settles.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Queue names.
const (
	Interactions  = "discord-interactions"
	CardSync      = "poll-card-sync"
	Notifications = "notification-events"
)

// QualifiedName returns the region-qualified name of a queue: the bare name
// in the primary region, "locations/{region}/functions/{name}" elsewhere.
func QualifiedName(region, primary, name string) string {
	if region == "" || region == primary {
		return name
	}
	return "locations/" + region + "/functions/" + name
}

// Task is one unit of work.
type Task struct {
	Key        string          `json:"key"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	DueAt      time.Time       `json:"due_at"`
}

// DefaultLease is how long a claimed task stays hidden from other workers.
const DefaultLease = 5 * time.Minute

// claimScan bounds how many due tasks one Claim looks at while skipping keys
// that are already in flight.
const claimScan = 16

// Queue is one named queue.
type Queue struct {
	client *redis.Client
	name   string
	lease  time.Duration
}

// New returns the queue called name on client.
func New(client *redis.Client, name string) *Queue {
	return &Queue{client: client, name: name, lease: DefaultLease}
}

// WithLease sets how long a claimed task may run before it is handed to
// another worker. Non-positive values keep the current lease.
func (q *Queue) WithLease(d time.Duration) *Queue {
	if d > 0 {
		q.lease = d
	}
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Lease returns how long a claimed task stays hidden.
func (q *Queue) Lease() time.Duration { return q.lease }

func (q *Queue) dueKey() string      { return "queue:" + q.name + ":due" }
func (q *Queue) tasksKey() string    { return "queue:" + q.name + ":tasks" }
func (q *Queue) inflightKey() string { return "queue:" + q.name + ":inflight" }
func (q *Queue) leasedKey() string   { return "queue:" + q.name + ":leased" }
func (q *Queue) deadKey() string     { return "queue:" + q.name + ":dead" }

// Enqueue schedules payload under key to run after delay. An empty key gets
// a random one. Re-enqueueing a pending key replaces it.
func (q *Queue) Enqueue(ctx context.Context, key string, payload []byte, delay time.Duration) (string, error) {
	if key == "" {
		key = uuid.NewString()
	}
	now := time.Now().UTC()
	t := Task{Key: key, Payload: payload, EnqueuedAt: now, DueAt: now.Add(delay)}
	return key, q.put(ctx, &t, false)
}

// put writes t. With keep set, a task already pending under the same key
// wins over t, and any lease on t's key is dropped in the same transaction.
func (q *Queue) put(ctx context.Context, t *Task, keep bool) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	score := float64(t.DueAt.UnixMilli())
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if keep {
			p.HSetNX(ctx, q.tasksKey(), t.Key, data)
			p.ZAddNX(ctx, q.dueKey(), redis.Z{Score: score, Member: t.Key})
			q.release(ctx, p, t.Key)
			return nil
		}
		p.HSet(ctx, q.tasksKey(), t.Key, data)
		p.ZAdd(ctx, q.dueKey(), redis.Z{Score: score, Member: t.Key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", q.name, err)
	}
	return nil
}

// claimScript first returns expired leases to the due set, unless a newer
// task already waits under the same key, then leases the earliest due task
// whose key is not in flight.
//
// KEYS: due, tasks, inflight, leased. ARGV: now, lease expiry, scan limit.
var claimScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', ARGV[1])
for _, id in ipairs(expired) do
  local body = redis.call('HGET', KEYS[4], id)
  redis.call('ZREM', KEYS[3], id)
  redis.call('HDEL', KEYS[4], id)
  if body and redis.call('HEXISTS', KEYS[2], id) == 0 then
    redis.call('HSET', KEYS[2], id, body)
    redis.call('ZADD', KEYS[1], ARGV[1], id)
  end
end
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
for _, id in ipairs(ids) do
  if not redis.call('ZSCORE', KEYS[3], id) then
    redis.call('ZREM', KEYS[1], id)
    local body = redis.call('HGET', KEYS[2], id)
    redis.call('HDEL', KEYS[2], id)
    if body then
      redis.call('HSET', KEYS[4], id, body)
      redis.call('ZADD', KEYS[3], ARGV[2], id)
      return body
    end
  end
end
return false
`)

// Claim leases the earliest task due at now, or returns nil when none is
// due. The caller settles the task with Ack, Retry or Bury before the lease
// runs out.
func (q *Queue) Claim(ctx context.Context, now time.Time) (*Task, error) {
	keys := []string{q.dueKey(), q.tasksKey(), q.inflightKey(), q.leasedKey()}
	raw, err := claimScript.Run(ctx, q.client, keys,
		now.UnixMilli(), now.Add(q.lease).UnixMilli(), claimScan).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", q.name, err)
	}
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &t, nil
}

// Ack drops the lease on t after it ran.
func (q *Queue) Ack(ctx context.Context, t *Task) error {
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		q.release(ctx, p, t.Key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ack %s: %w", q.name, err)
	}
	return nil
}

func (q *Queue) release(ctx context.Context, p redis.Pipeliner, key string) {
	p.ZRem(ctx, q.inflightKey(), key)
	p.HDel(ctx, q.leasedKey(), key)
}

// Retry puts t back with one more attempt recorded, due after delay. A newer
// task enqueued under the same key in the meantime takes precedence.
func (q *Queue) Retry(ctx context.Context, t *Task, delay time.Duration) error {
	next := *t
	next.Attempts++
	next.DueAt = time.Now().UTC().Add(delay)
	return q.put(ctx, &next, true)
}

// Bury records t on the dead letter list, keeping the newest 1000 entries,
// and drops its lease.
func (q *Queue) Bury(ctx context.Context, t *Task, reason string) error {
	entry, err := json.Marshal(struct {
		Task   *Task     `json:"task"`
		Reason string    `json:"reason"`
		At     time.Time `json:"at"`
	}{t, reason, time.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, q.deadKey(), entry)
		p.LTrim(ctx, q.deadKey(), 0, 999)
		q.release(ctx, p, t.Key)
		return nil
	})
	return err
}

// Pending returns how many tasks wait in the queue.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.dueKey()).Result()
}

// InFlight returns how many claimed tasks hold a lease.
func (q *Queue) InFlight(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.inflightKey()).Result()
}

// Dead returns how many tasks were buried.
func (q *Queue) Dead(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.deadKey()).Result()
}
