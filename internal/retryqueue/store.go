package retryqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var ErrNotClaimed = errors.New("request was not claimed from this queue")

// Store is a Redis-backed durable queue. Each gateway instance owns its own
// processing list, so Recover only touches items this instance claimed.
type Store struct {
	rdb        *redis.Client
	pending    string
	processing string
	dead       string
}

func NewStore(rdb *redis.Client, keyPrefix, instance string) *Store {
	prefix := keyPrefix + ":" + instance
	return &Store{
		rdb:        rdb,
		pending:    prefix + ":pending",
		processing: prefix + ":processing",
		dead:       prefix + ":dead",
	}
}

// Enqueue appends req to the pending list. The request is durable once
// Enqueue returns nil.
func (s *Store) Enqueue(ctx context.Context, req QueuedRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode queued request %s: %w", req.ID, err)
	}

	if err := s.rdb.RPush(ctx, s.pending, payload).Err(); err != nil {
		return fmt.Errorf("enqueue request %s: %w", req.ID, err)
	}
	return nil
}

// Claim moves the oldest pending request to processing. It returns nil
// when the queue is empty.
func (s *Store) Claim(ctx context.Context) (*QueuedRequest, error) {
	raw, err := s.rdb.LMove(ctx, s.pending, s.processing, "LEFT", "RIGHT").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim request: %w", err)
	}

	var req QueuedRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		// Park undecodable payloads so they cannot block the queue.
		if moveErr := s.rdb.LMove(ctx, s.processing, s.dead, "RIGHT", "RIGHT").Err(); moveErr != nil {
			return nil, fmt.Errorf("park undecodable request: %w", moveErr)
		}
		return nil, fmt.Errorf("decode claimed request: %w", err)
	}
	req.raw = raw

	return &req, nil
}

// Ack removes a successfully replayed request.
func (s *Store) Ack(ctx context.Context, req *QueuedRequest) error {
	if req.raw == "" {
		return ErrNotClaimed
	}

	if err := s.rdb.LRem(ctx, s.processing, 1, req.raw).Err(); err != nil {
		return fmt.Errorf("ack request %s: %w", req.ID, err)
	}
	return nil
}

// Requeue moves req from processing to the tail of pending, storing its
// updated attempt count and last error.
func (s *Store) Requeue(ctx context.Context, req *QueuedRequest) error {
	return s.move(ctx, req, s.pending)
}

// DeadLetter moves req from processing to the dead-letter list.
func (s *Store) DeadLetter(ctx context.Context, req *QueuedRequest) error {
	return s.move(ctx, req, s.dead)
}

func (s *Store) move(ctx context.Context, req *QueuedRequest, dst string) error {
	if req.raw == "" {
		return ErrNotClaimed
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode queued request %s: %w", req.ID, err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, s.processing, 1, req.raw)
		pipe.RPush(ctx, dst, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("move request %s to %s: %w", req.ID, dst, err)
	}

	req.raw = ""
	return nil
}

// Recover returns requests left in processing by a previous run to the
// head of pending, keeping their order. It reports how many were moved.
func (s *Store) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := s.rdb.LMove(ctx, s.processing, s.pending, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover processing requests: %w", err)
		}
		moved++
	}
}

// Len is the number of pending requests.
func (s *Store) Len(ctx context.Context) (int64, error) {
	return s.rdb.LLen(ctx, s.pending).Result()
}

func (s *Store) DeadLen(ctx context.Context) (int64, error) {
	return s.rdb.LLen(ctx, s.dead).Result()
}

// DeadLetters lists the dead-letter list, oldest first.
func (s *Store) DeadLetters(ctx context.Context) ([]QueuedRequest, error) {
	raws, err := s.rdb.LRange(ctx, s.dead, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	requests := make([]QueuedRequest, 0, len(raws))
	for _, raw := range raws {
		var req QueuedRequest
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			continue
		}
		requests = append(requests, req)
	}
	return requests, nil
}
