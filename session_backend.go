package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// NewSnapshotBackend builds the backend named by config.Session.Backend.
func NewSnapshotBackend(config *Config) (SnapshotBackend, error) {
	switch config.Session.Backend {
	case "", "file":
		return &fileBackend{path: config.Session.Path}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     config.Session.RedisAddr,
			Password: config.Session.RedisPassword,
			DB:       config.Session.RedisDB,
		})
		return newRedisBackend(client, config.Session.RedisKeyPrefix, config.Session.RedisTTL), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", config.Session.Backend)
	}
}

type fileBackend struct {
	path string
}

func (b *fileBackend) Describe() string { return b.path }

func (b *fileBackend) Exists(ctx context.Context) (bool, error) {
	_, err := os.Stat(b.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (b *fileBackend) Read(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, b.path)
		}
		return nil, err
	}
	return decodeSnapshot(data, b.path)
}

func (b *fileBackend) Write(ctx context.Context, s *Snapshot) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0700); err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0600)
}

type redisBackend struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func newRedisBackend(client *redis.Client, prefix string, ttl time.Duration) *redisBackend {
	return &redisBackend{client: client, key: prefix + "session", ttl: ttl}
}

func (b *redisBackend) Describe() string {
	return fmt.Sprintf("redis://%s/%s", b.client.Options().Addr, b.key)
}

func (b *redisBackend) Exists(ctx context.Context) (bool, error) {
	n, err := b.client.Exists(ctx, b.key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *redisBackend) Read(ctx context.Context) (*Snapshot, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, b.Describe())
		}
		return nil, err
	}
	return decodeSnapshot(data, b.Describe())
}

func (b *redisBackend) Write(ctx context.Context, s *Snapshot) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	// A zero ttl keeps the key forever.
	return b.client.Set(ctx, b.key, data, b.ttl).Err()
}

func decodeSnapshot(data []byte, source string) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSessionCorrupt, source, err)
	}
	if s.Storage == nil {
		s.Storage = map[string]map[string]string{}
	}
	return &s, nil
}
