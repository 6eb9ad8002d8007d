package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "crabalign:result:"
	redisIndexKey  = "crabalign:results"
)

// RedisStore keeps records as JSON values, with a set holding every ID.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to the server at url (redis://host:port/db) and pings it.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) key(id string) string { return redisKeyPrefix + id }

// SaveResult stores rec and indexes its ID in one transaction.
func (s *RedisStore) SaveResult(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(rec.ID), data, 0)
		pipe.SAdd(ctx, redisIndexKey, rec.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	slog.Debug("Result saved", "id", rec.ID, "backend", BackendRedis)
	return nil
}

// LoadResult fetches the record stored under id.
func (s *RedisStore) LoadResult(ctx context.Context, id string) (*Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &NotFoundError{ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to deserialize result: %w", err)
	}
	return &rec, nil
}

// ListResults loads every indexed record. IDs whose value has gone are skipped.
func (s *RedisStore) ListResults(ctx context.Context) ([]RecordInfo, error) {
	ids, err := s.rdb.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	infos := []RecordInfo{}
	if len(ids) == 0 {
		return infos, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			slog.Warn("Failed to decode result for listing", "id", ids[i], "error", err)
			continue
		}
		infos = append(infos, rec.ToInfo())
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos, nil
}

// DeleteResult removes the record and its index entry.
func (s *RedisStore) DeleteResult(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(id))
		pipe.SRem(ctx, redisIndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if del.Val() == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// Close releases the client's connections.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
