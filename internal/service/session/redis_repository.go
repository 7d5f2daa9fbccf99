package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"livechat-backend/internal/model"

	"github.com/go-redis/redis/v8"
)

// RedisRepository stores each session as a JSON string with a sliding TTL and
// keeps listings in sets. A record and its set memberships change in one
// MULTI guarded by WATCH on the record key.
type RedisRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisRepository(client *redis.Client, prefix string, ttl time.Duration) *RedisRepository {
	if prefix == "" {
		prefix = "livechat"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisRepository{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisRepository) sessionKey(chatID string) string {
	return r.prefix + ":session:" + chatID
}

func (r *RedisRepository) indexKey(idx Index) string {
	return r.prefix + ":idx:" + string(idx)
}

func (r *RedisRepository) employeeKey(employeeID string) string {
	return r.prefix + ":idx:employee:" + employeeID
}

func (r *RedisRepository) CreateSession(ctx context.Context, s model.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.ID, err)
	}

	var created *redis.BoolCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, r.sessionKey(s.ID), payload, r.ttl)
		r.queueIndexChanges(ctx, pipe, nil, &s)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create session %s: %w", s.ID, err)
	}
	if !created.Val() {
		return ErrExists
	}
	return nil
}

func (r *RedisRepository) GetSession(ctx context.Context, chatID string) (model.Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("get session %s: %w", chatID, err)
	}
	return decodeSession(chatID, data)
}

func (r *RedisRepository) UpdateSession(ctx context.Context, chatID string, mutate func(*model.Session) error) (model.Session, error) {
	key := r.sessionKey(chatID)
	var result model.Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get session %s: %w", chatID, err)
		}
		current, err := decodeSession(chatID, data)
		if err != nil {
			return err
		}

		next := current.Clone()
		if err := mutate(&next); err != nil {
			return err
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal session %s: %w", chatID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			r.queueIndexChanges(ctx, pipe, &current, &next)
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	err := defaultContention.run(ctx, chatID, func() (bool, error) {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			return false, nil
		}
		return err == nil, err
	})
	if err != nil {
		return model.Session{}, err
	}
	return result, nil
}

// queueIndexChanges moves the session between sets so that they reflect
// next. prev is nil on create. Adds are repeated on every write.
func (r *RedisRepository) queueIndexChanges(ctx context.Context, pipe redis.Pipeliner, prev, next *model.Session) {
	id := next.ID
	for _, idx := range allIndexes {
		was := prev != nil && idx.Matches(*prev)
		is := idx.Matches(*next)
		switch {
		case is:
			pipe.SAdd(ctx, r.indexKey(idx), id)
		case was:
			pipe.SRem(ctx, r.indexKey(idx), id)
		}
	}

	var prevOwner string
	if prev != nil {
		prevOwner = employeeIndexOwner(*prev)
	}
	nextOwner := employeeIndexOwner(*next)
	if prevOwner != "" && prevOwner != nextOwner {
		pipe.SRem(ctx, r.employeeKey(prevOwner), id)
	}
	if nextOwner != "" {
		pipe.SAdd(ctx, r.employeeKey(nextOwner), id)
	}
}

func (r *RedisRepository) ListSessions(ctx context.Context, index Index) ([]model.Session, error) {
	return r.listSet(ctx, r.indexKey(index), index.Matches)
}

func (r *RedisRepository) ListEmployeeSessions(ctx context.Context, employeeID string) ([]model.Session, error) {
	return r.listSet(ctx, r.employeeKey(employeeID), func(s model.Session) bool {
		return ownedBy(employeeID, s)
	})
}

func (r *RedisRepository) listSet(ctx context.Context, setKey string, keep func(model.Session) bool) ([]model.Session, error) {
	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", setKey, err)
	}
	if len(ids) == 0 {
		return []model.Session{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.sessionKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", setKey, err)
	}

	out := make([]model.Session, 0, len(ids))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			r.prune(ctx, setKey, ids[i], keep)
			continue
		}
		s, err := decodeSession(ids[i], []byte(raw))
		if err != nil {
			log.Printf("[session] skipping unreadable session %s: %v", ids[i], err)
			continue
		}
		if !keep(s) {
			r.prune(ctx, setKey, ids[i], keep)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// prune drops a stale set member. The record key is watched so a concurrent
// update that makes the entry valid again wins over the removal.
func (r *RedisRepository) prune(ctx context.Context, setKey, chatID string, keep func(model.Session) bool) {
	key := r.sessionKey(chatID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			s, err := decodeSession(chatID, data)
			if err != nil || keep(s) {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, setKey, chatID)
			return nil
		})
		return err
	}, key)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		log.Printf("[session] prune %s from %s: %v", chatID, setKey, err)
	}
}

func decodeSession(chatID string, data []byte) (model.Session, error) {
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return model.Session{}, fmt.Errorf("%w: session %s: %v", ErrCorrupt, chatID, err)
	}
	if s.Messages == nil {
		s.Messages = []model.Message{}
	}
	return s, nil
}
