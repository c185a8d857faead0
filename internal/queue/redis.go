package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
)

// Settle a delivery only while its payload is still in the processing list. A
// reaped job was re-encoded with a new attempt count, so a stale holder finds
// nothing to remove and leaves the dedupe marker alone.
var ackScript = redis.NewScript(`
if redis.call("LREM", KEYS[1], 1, ARGV[1]) == 0 then
	return 0
end
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("DEL", KEYS[3])
return 1
`)

var failScript = redis.NewScript(`
if redis.call("LREM", KEYS[1], 1, ARGV[1]) == 0 then
	return 0
end
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("LPUSH", KEYS[4], ARGV[2])
redis.call("DEL", KEYS[3])
return 1
`)

// Redis keeps jobs in Redis lists so several worker processes can share them.
//
//	<prefix>pending      LPUSH / BLMOVE source (FIFO)
//	<prefix>processing   jobs currently leased to a worker
//	<prefix>leases       ZSET payload -> lease deadline (unix ms)
//	<prefix>dead         dead-letter list
//	<prefix>queued:<id>  dedupe marker per monitor
type Redis struct {
	client redis.UniversalClient
	prefix string
	opts   Options
	Now    func() time.Time
}

func NewRedis(client redis.UniversalClient, prefix string, opts Options) *Redis {
	if prefix == "" {
		prefix = "sentrypulse:queue:"
	}
	return &Redis{client: client, prefix: prefix, opts: opts.withDefaults(), Now: time.Now}
}

func (q *Redis) key(name string) string { return q.prefix + name }

func (q *Redis) queuedKey(id domain.MonitorID) string { return q.prefix + "queued:" + string(id) }

func (q *Redis) Enqueue(ctx context.Context, id domain.MonitorID) (bool, error) {
	// The marker outlives a lost job by at most a few leases.
	ttl := q.opts.Visibility * time.Duration(q.opts.MaxAttempts+1)
	ok, err := q.client.SetNX(ctx, q.queuedKey(id), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}
	raw, err := encode(&Job{ID: uuid.NewString(), MonitorID: id, EnqueuedAt: q.Now().UTC()})
	if err != nil {
		return false, err
	}
	if err := q.client.LPush(ctx, q.key("pending"), raw).Err(); err != nil {
		_ = q.client.Del(ctx, q.queuedKey(id)).Err()
		return false, fmt.Errorf("enqueue %s: %w", id, err)
	}
	return true, nil
}

func (q *Redis) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	raw, err := q.client.BLMove(ctx, q.key("pending"), q.key("processing"), "RIGHT", "LEFT", wait).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	deadline := q.Now().Add(q.opts.Visibility).UnixMilli()
	if err := q.client.ZAdd(ctx, q.key("leases"), redis.Z{Score: float64(deadline), Member: raw}).Err(); err != nil {
		return nil, fmt.Errorf("lease job: %w", err)
	}
	j, err := decode(raw)
	if err != nil {
		// Unreadable payloads can never succeed.
		_ = q.dropRaw(ctx, raw, q.key("dead"))
		return nil, err
	}
	return j, nil
}

func (q *Redis) settleKeys(job *Job) []string {
	return []string{q.key("processing"), q.key("leases"), q.queuedKey(job.MonitorID), q.key("dead")}
}

func (q *Redis) Ack(ctx context.Context, job *Job) error {
	n, err := ackScript.Run(ctx, q.client, q.settleKeys(job)[:3], job.raw).Int()
	if err != nil {
		return fmt.Errorf("ack job %s: %w", job.ID, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (q *Redis) MarkFailed(ctx context.Context, job *Job, reason string) error {
	d := *job
	d.LastError = reason
	deadRaw, err := encode(&d)
	if err != nil {
		return err
	}
	n, err := failScript.Run(ctx, q.client, q.settleKeys(job), job.raw, deadRaw).Int()
	if err != nil {
		return fmt.Errorf("dead-letter job %s: %w", job.ID, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Reap walks the processing list. Entries without a lease (a worker died
// between BLMOVE and ZADD) are treated as expired.
func (q *Redis) Reap(ctx context.Context) (int, error) {
	raws, err := q.client.LRange(ctx, q.key("processing"), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("reap: %w", err)
	}
	now := q.Now().UnixMilli()
	moved := 0
	for _, raw := range raws {
		score, err := q.client.ZScore(ctx, q.key("leases"), raw).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return moved, fmt.Errorf("reap: %w", err)
		}
		if err == nil && int64(score) > now {
			continue
		}

		j, derr := decode(raw)
		if derr != nil {
			if err := q.dropRaw(ctx, raw, q.key("dead")); err != nil {
				return moved, err
			}
			moved++
			continue
		}
		next := redeliver(j, "lease expired after "+strconv.FormatInt(q.opts.Visibility.Milliseconds(), 10)+"ms")
		nextRaw, err := encode(next)
		if err != nil {
			return moved, err
		}
		dest := q.key("pending")
		if next.Attempts >= q.opts.MaxAttempts {
			dest = q.key("dead")
		}
		_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.LRem(ctx, q.key("processing"), 1, raw)
			p.ZRem(ctx, q.key("leases"), raw)
			if dest == q.key("pending") {
				p.RPush(ctx, dest, nextRaw)
			} else {
				p.LPush(ctx, dest, nextRaw)
				p.Del(ctx, q.queuedKey(next.MonitorID))
			}
			return nil
		})
		if err != nil {
			return moved, fmt.Errorf("reap job %s: %w", j.ID, err)
		}
		moved++
	}
	return moved, nil
}

func (q *Redis) DeadLetters(ctx context.Context, limit int) ([]Job, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raws, err := q.client.LRange(ctx, q.key("dead"), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	out := make([]Job, 0, len(raws))
	for _, raw := range raws {
		j, err := decode(raw)
		if err != nil {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

func (q *Redis) dropRaw(ctx context.Context, raw, dest string) error {
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.key("processing"), 1, raw)
		p.ZRem(ctx, q.key("leases"), raw)
		p.LPush(ctx, dest, raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("drop job: %w", err)
	}
	return nil
}
