package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	domrepo "TradePilot/internal/domain/repository"
	pkgcache "TradePilot/pkg/cache"
)

// RedisObjectStore implements ObjectStore on Redis. Object bytes live under
// data keys; content type and caller metadata under a companion hash so Get
// stays a single round trip.
type RedisObjectStore struct {
	client *redis.Client
	prefix string
}

// NewRedisObjectStore creates an object store over an existing Redis client.
func NewRedisObjectStore(client *redis.Client, prefix string) *RedisObjectStore {
	if prefix == "" {
		prefix = "tradepilot:objects"
	}
	return &RedisObjectStore{client: client, prefix: prefix}
}

var _ domrepo.ObjectStore = (*RedisObjectStore)(nil)

func (s *RedisObjectStore) Put(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) error {
	fields := map[string]interface{}{"content_type": contentType}
	for k, v := range metadata {
		fields["meta:"+k] = v
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(path), data, 0)
	pipe.Del(ctx, s.metaKey(path))
	pipe.HSet(ctx, s.metaKey(path), fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put object %s: %w", path, err)
	}
	return nil
}

func (s *RedisObjectStore) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.dataKey(path)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domrepo.ErrObjectNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", path, err)
	}
	return data, nil
}

func (s *RedisObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.client.Keys(ctx, pkgcache.BuildPattern(s.dataKey(prefix))).Result()
	if err != nil {
		return nil, fmt.Errorf("list objects %s: %w", prefix, err)
	}

	lead := s.dataKey("")
	paths := make([]string, 0, len(keys))
	for _, k := range keys {
		paths = append(paths, strings.TrimPrefix(k, lead))
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *RedisObjectStore) Delete(ctx context.Context, path string) error {
	if err := s.client.Del(ctx, s.dataKey(path), s.metaKey(path)).Err(); err != nil {
		return fmt.Errorf("delete object %s: %w", path, err)
	}
	return nil
}

func (s *RedisObjectStore) dataKey(path string) string {
	return fmt.Sprintf("%s:data:%s", s.prefix, path)
}

func (s *RedisObjectStore) metaKey(path string) string {
	return fmt.Sprintf("%s:meta:%s", s.prefix, path)
}
