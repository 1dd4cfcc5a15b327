package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/logging"
)

const deadLetterTTL = 24 * time.Hour

// FailedOperation is an operation that exhausted its retries.
type FailedOperation struct {
	ID             string                 `json:"id"`
	Operation      string                 `json:"operation"`
	Code           failure.Code           `json:"code,omitempty"`
	Message        string                 `json:"message"`
	Classification failure.Classification `json:"classification"`
	RetryCount     int                    `json:"retry_count"`
	FailedAt       time.Time              `json:"failed_at"`
	LastAttempt    time.Time              `json:"last_attempt"`
}

// NewFailedOperation captures err for later inspection or replay.
func NewFailedOperation(operation string, err error) *FailedOperation {
	now := time.Now().UTC()
	fo := &FailedOperation{
		ID:             uuid.NewString(),
		Operation:      operation,
		Classification: failure.Classify(err),
		FailedAt:       now,
		LastAttempt:    now,
	}
	if err != nil {
		fo.Message = err.Error()
	}
	if code, ok := failure.CodeOf(err); ok {
		fo.Code = code
	}
	return fo
}

// DeadLetterQueue keeps failed operations in Redis, ordered by retry count.
type DeadLetterQueue struct {
	rdb       *redis.Client
	namespace string
	log       *logging.Logger
}

// NewDeadLetterQueue creates a queue stored under namespace.
func NewDeadLetterQueue(client *Client, namespace string, log *logging.Logger) *DeadLetterQueue {
	if log == nil {
		log = logging.New(nil)
	}
	return &DeadLetterQueue{
		rdb:       client.rdb,
		namespace: namespace,
		log:       log,
	}
}

func (q *DeadLetterQueue) queueKey() string {
	return fmt.Sprintf("dead_letters:%s", q.namespace)
}

func (q *DeadLetterQueue) itemKey(id string) string {
	return fmt.Sprintf("dead_letter:%s:%s", q.namespace, id)
}

// Hook returns a callback for retry.Policy.OnExhausted that records the
// final error under operation. Storage failures are logged, not returned.
func (q *DeadLetterQueue) Hook(ctx context.Context, operation string) func(err error) {
	return func(err error) {
		if addErr := q.Add(ctx, NewFailedOperation(operation, err)); addErr != nil {
			q.log.LogFailure(ctx, addErr, "failed to record dead letter", map[string]any{
				"operation": operation,
			})
		}
	}
}

// Add stores a failed operation.
func (q *DeadLetterQueue) Add(ctx context.Context, fo *FailedOperation) error {
	data, err := json.Marshal(fo)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	if err := q.rdb.Set(ctx, q.itemKey(fo.ID), data, deadLetterTTL).Err(); err != nil {
		return TranslateError(err)
	}

	// Lower retry count sorts first.
	if err := q.rdb.ZAdd(ctx, q.queueKey(), redis.Z{
		Score:  float64(fo.RetryCount),
		Member: fo.ID,
	}).Err(); err != nil {
		return TranslateError(err)
	}
	return nil
}

// Next returns the entry with the lowest retry count, or nil when empty.
func (q *DeadLetterQueue) Next(ctx context.Context) (*FailedOperation, error) {
	for {
		ids, err := q.rdb.ZRange(ctx, q.queueKey(), 0, 0).Result()
		if err != nil {
			return nil, TranslateError(err)
		}
		if len(ids) == 0 {
			return nil, nil
		}

		fo, err := q.get(ctx, ids[0])
		if errors.Is(err, redis.Nil) {
			// Payload expired; drop the dangling id.
			if err := q.rdb.ZRem(ctx, q.queueKey(), ids[0]).Err(); err != nil {
				return nil, TranslateError(err)
			}
			continue
		}
		if err != nil {
			return nil, TranslateError(err)
		}
		return fo, nil
	}
}

// IncrementRetry bumps the retry count of an entry.
func (q *DeadLetterQueue) IncrementRetry(ctx context.Context, id string) error {
	fo, err := q.get(ctx, id)
	if err != nil {
		return TranslateError(err)
	}
	fo.RetryCount++
	fo.LastAttempt = time.Now().UTC()
	return q.Add(ctx, fo)
}

// Resolve removes an entry.
func (q *DeadLetterQueue) Resolve(ctx context.Context, id string) error {
	if err := q.rdb.ZRem(ctx, q.queueKey(), id).Err(); err != nil {
		return TranslateError(err)
	}
	if err := q.rdb.Del(ctx, q.itemKey(id)).Err(); err != nil {
		return TranslateError(err)
	}
	return nil
}

// List returns every live entry, lowest retry count first. Ids whose payload
// expired are removed from the queue.
func (q *DeadLetterQueue) List(ctx context.Context) ([]*FailedOperation, error) {
	ids, err := q.rdb.ZRange(ctx, q.queueKey(), 0, -1).Result()
	if err != nil {
		return nil, TranslateError(err)
	}

	out := make([]*FailedOperation, 0, len(ids))
	for _, id := range ids {
		fo, err := q.get(ctx, id)
		if errors.Is(err, redis.Nil) {
			if err := q.rdb.ZRem(ctx, q.queueKey(), id).Err(); err != nil {
				return nil, TranslateError(err)
			}
			continue
		}
		if err != nil {
			return nil, TranslateError(err)
		}
		out = append(out, fo)
	}
	return out, nil
}

// Count returns the number of queued ids. Ids with an expired payload are
// counted until Next or List prunes them.
func (q *DeadLetterQueue) Count(ctx context.Context) (int, error) {
	n, err := q.rdb.ZCard(ctx, q.queueKey()).Result()
	if err != nil {
		return 0, TranslateError(err)
	}
	return int(n), nil
}

// get returns redis.Nil unchanged so callers can skip expired payloads.
func (q *DeadLetterQueue) get(ctx context.Context, id string) (*FailedOperation, error) {
	data, err := q.rdb.Get(ctx, q.itemKey(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var fo FailedOperation
	if err := json.Unmarshal(data, &fo); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dead letter %s: %w", id, err)
	}
	return &fo, nil
}
