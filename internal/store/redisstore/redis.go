// Package redisstore implements store.Store on top of Redis so sessions and
// token revocations are shared between proxy replicas.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authplug/internal/store"

	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// DefaultKeyPrefix namespaces every key written by the proxy
const DefaultKeyPrefix = "authplug:"

// Config holds Redis connection configuration
type Config struct {
	// URL is a redis:// or rediss:// connection URL
	URL string

	// KeyPrefix is prepended to every key
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Store implements store.Store with a Redis backend
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis URL is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = cfg.DialTimeout
	if opts.DialTimeout == 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	opts.ReadTimeout = cfg.ReadTimeout
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	opts.WriteTimeout = cfg.WriteTimeout
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Store{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get returns the value for key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return val, nil
}

// Set stores value under key
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// Delete removes key
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}
