package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/themobileprof/lambdachat/pkg/llm"
)

const keyPrefix = "lambdachat:session:"

// RedisStore keeps sessions in Redis. Each session uses a metadata hash and
// a message list sharing the session TTL, plus a busy flag that exists only
// while input is disabled. The busy flag has its own, shorter TTL so a turn
// abandoned by a crashed process does not lock the session for long.
type RedisStore struct {
	rdb     *redis.Client
	ttl     time.Duration
	busyTTL time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store. busyTTL bounds how long input
// stays disabled without SetInputEnabled; zero means the session TTL.
func NewRedisStore(rdb *redis.Client, ttl, busyTTL time.Duration) *RedisStore {
	if busyTTL <= 0 || (ttl > 0 && busyTTL > ttl) {
		busyTTL = ttl
	}
	return &RedisStore{rdb: rdb, ttl: ttl, busyTTL: busyTTL}
}

func metaKey(id string) string     { return keyPrefix + id }
func messagesKey(id string) string { return keyPrefix + id + ":messages" }
func busyKey(id string) string     { return keyPrefix + id + ":busy" }

// Create implements Store.Create
func (s *RedisStore) Create(ctx context.Context, greeting string) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:           uuid.NewString(),
		Messages:     []llm.Message{{Role: llm.RoleAssistant, Content: greeting}},
		InputEnabled: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	encoded, err := json.Marshal(sess.Messages[0])
	if err != nil {
		return nil, fmt.Errorf("failed to encode greeting: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, metaKey(sess.ID),
			"created_at", now.Format(time.RFC3339Nano),
			"updated_at", now.Format(time.RFC3339Nano),
		)
		pipe.RPush(ctx, messagesKey(sess.ID), encoded)
		s.expire(ctx, pipe, sess.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return sess, nil
}

// Get implements Store.Get
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		metaCmd *redis.MapStringStringCmd
		msgsCmd *redis.StringSliceCmd
		busyCmd *redis.IntCmd
	)
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		metaCmd = pipe.HGetAll(ctx, metaKey(id))
		msgsCmd = pipe.LRange(ctx, messagesKey(id), 0, -1)
		busyCmd = pipe.Exists(ctx, busyKey(id))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return nil, ErrNotFound
	}

	sess := &Session{
		ID:           id,
		InputEnabled: busyCmd.Val() == 0,
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, meta["created_at"])
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, meta["updated_at"])

	raw := msgsCmd.Val()
	sess.Messages = make([]llm.Message, 0, len(raw))
	for i, item := range raw {
		var msg llm.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message %d: %w", i, err)
		}
		sess.Messages = append(sess.Messages, msg)
	}

	return sess, nil
}

// Append implements Store.Append
func (s *RedisStore) Append(ctx context.Context, id string, msg llm.Message) error {
	if err := s.mustExist(ctx, id); err != nil {
		return err
	}

	encoded, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, messagesKey(id), encoded)
		pipe.HSet(ctx, metaKey(id), "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
		s.expire(ctx, pipe, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// SetInputEnabled implements Store.SetInputEnabled
func (s *RedisStore) SetInputEnabled(ctx context.Context, id string, enabled bool) error {
	if err := s.mustExist(ctx, id); err != nil {
		return err
	}

	var err error
	if enabled {
		err = s.rdb.Del(ctx, busyKey(id)).Err()
	} else {
		err = s.rdb.Set(ctx, busyKey(id), "1", s.busyTTL).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to set input flag: %w", err)
	}
	return nil
}

// DisableInput implements Store.DisableInput
func (s *RedisStore) DisableInput(ctx context.Context, id string) (bool, error) {
	if err := s.mustExist(ctx, id); err != nil {
		return false, err
	}

	ok, err := s.rdb.SetNX(ctx, busyKey(id), "1", s.busyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to disable input: %w", err)
	}
	return ok, nil
}

// Delete implements Store.Delete
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, metaKey(id), messagesKey(id), busyKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) mustExist(ctx context.Context, id string) error {
	n, err := s.rdb.Exists(ctx, metaKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// expire refreshes the session TTL. The busy flag keeps its own expiry.
func (s *RedisStore) expire(ctx context.Context, pipe redis.Pipeliner, id string) {
	if s.ttl <= 0 {
		return
	}
	pipe.Expire(ctx, metaKey(id), s.ttl)
	pipe.Expire(ctx, messagesKey(id), s.ttl)
}
