package routewindow

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/mohammed-shakir/route-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/route-cache/internal/core/model"
)

// RedisBackend is the subset of redisstore.Client the Redis store needs.
type RedisBackend interface {
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	PushFront(ctx context.Context, p redisstore.ListPush) error
	Del(ctx context.Context, keys ...string) error
}

// Redis stores each window as a list of route IDs with route payloads kept
// under sibling keys, so windows can be shared across instances.
type Redis struct {
	rdb RedisBackend
	ttl time.Duration
}

var _ Store = (*Redis)(nil)

func NewRedis(rdb RedisBackend, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func payloadKey(key, id string) string { return key + ":r:" + id }

func (s *Redis) Recent(ctx context.Context, key string, n int) ([]model.Route, error) {
	if n <= 0 {
		return nil, nil
	}
	ids, err := s.rdb.LRange(ctx, key, 0, int64(n-1))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pks := make([]string, len(ids))
	for i, id := range ids {
		pks[i] = payloadKey(key, id)
	}
	vals, err := s.rdb.MGet(ctx, pks)
	if err != nil {
		return nil, err
	}

	out := make([]model.Route, 0, len(ids))
	for _, pk := range pks {
		b, ok := vals[pk]
		if !ok {
			continue // payload expired before the list
		}
		var r model.Route
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("decode route %q: %w", pk, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Redis) Push(ctx context.Context, key string, r model.Route, size int) error {
	if r.ID == "" {
		return ErrInvalidRoute
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode route %q: %w", r.ID, err)
	}
	return s.rdb.PushFront(ctx, redisstore.ListPush{
		Key:         key,
		Member:      r.ID,
		Limit:       clampSize(size),
		TTL:         s.ttl,
		Values:      map[string][]byte{payloadKey(key, r.ID): b},
		EvictPrefix: payloadKey(key, ""),
	})
}

// Purge removes each window list together with the payloads it references.
func (s *Redis) Purge(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	del := make([]string, 0, len(keys))
	for _, key := range keys {
		ids, err := s.rdb.LRange(ctx, key, 0, -1)
		if err != nil {
			return err
		}
		del = append(del, key)
		for _, id := range ids {
			del = append(del, payloadKey(key, id))
		}
	}
	return s.rdb.Del(ctx, del...)
}
