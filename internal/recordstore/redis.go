package recordstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis stores each collection as a hash under a shared key prefix so
// Collections(prefix) can enumerate a profile's namespace with SCAN.
type Redis struct {
	client *redis.Client
	prefix string
}

const defaultKeyPrefix = "pv:collection:"

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: defaultKeyPrefix}
}

func (s *Redis) key(collection string) string {
	return s.prefix + collection
}

func (s *Redis) Get(ctx context.Context, collection, id string) ([]byte, error) {
	record, err := s.client.HGet(ctx, s.key(collection), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s/%s: %w", collection, id, err)
	}
	return record, nil
}

func (s *Redis) Set(ctx context.Context, collection, id string, record []byte) error {
	if err := s.client.HSet(ctx, s.key(collection), id, record).Err(); err != nil {
		return fmt.Errorf("redis set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, collection, id string) error {
	removed, err := s.client.HDel(ctx, s.key(collection), id).Result()
	if err != nil {
		return fmt.Errorf("redis delete %s/%s: %w", collection, id, err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Redis) Query(ctx context.Context, collection string, filters []Filter) ([]Entry, error) {
	all, err := s.client.HGetAll(ctx, s.key(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis query %s: %w", collection, err)
	}
	var entries []Entry
	for id, record := range all {
		data := []byte(record)
		if matchesFilters(data, filters) {
			entries = append(entries, Entry{ID: id, Data: data})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (s *Redis) Collections(ctx context.Context, prefix string) ([]string, error) {
	var (
		names  []string
		cursor uint64
	)
	pattern := s.prefix + prefix + "*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan collections: %w", err)
		}
		for _, key := range keys {
			names = append(names, strings.TrimPrefix(key, s.prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Redis) DropCollection(ctx context.Context, collection string) error {
	if err := s.client.Del(ctx, s.key(collection)).Err(); err != nil {
		return fmt.Errorf("redis drop %s: %w", collection, err)
	}
	return nil
}
