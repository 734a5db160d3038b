package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "zenith:session:"
	maxUpdateRetries = 5
)

// RedisStore хранит состояния как JSON с TTL, переживает рестарт бота.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

func decodeState(raw []byte, ttl time.Duration) (State, error) {
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("decode session: %w", err)
	}
	return expirePending(state, ttl, time.Now()).normalized(), nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) read(ctx context.Context, cmd getter, key string) (State, error) {
	raw, err := cmd.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}.normalized(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("get session: %w", err)
	}
	return decodeState(raw, r.ttl)
}

func (r *RedisStore) Get(ctx context.Context, userID int64) (State, error) {
	return r.read(ctx, r.client, sessionKey(userID))
}

func (r *RedisStore) Set(ctx context.Context, userID int64, state State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(userID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, sessionKey(userID)).Err()
}

// Update выполняет read-modify-write под WATCH, повторяя при конфликте.
func (r *RedisStore) Update(ctx context.Context, userID int64, fn func(*State) error) (State, error) {
	key := sessionKey(userID)
	var result State

	txf := func(tx *redis.Tx) error {
		state, err := r.read(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := fn(&state); err != nil {
			result = state
			return err
		}
		payload, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		result = state
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return result, err
	}
	return result, fmt.Errorf("update session %d: too many conflicts", userID)
}
