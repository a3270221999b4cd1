package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vidfriends/genbridge/internal/models"
)

// DefaultRedisKey is the key holding the credential document.
const DefaultRedisKey = "genbridge:credential"

// RedisClient is the subset of the go-redis client used by RedisStore.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisOptions configures the connection opened by OpenRedisStore.
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	Key         string
	DialTimeout time.Duration
}

// RedisStore keeps the credential as one JSON value under a single key, so
// every write is one SET.
type RedisStore struct {
	client RedisClient
	key    string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client RedisClient, key string) *RedisStore {
	if strings.TrimSpace(key) == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// OpenRedisStore connects to Redis and verifies the connection with PING.
// The returned close function releases the connection pool.
func OpenRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, func() error, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, nil, errors.New("redis store: address is required")
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis store: connect %s: %w", opts.Addr, err)
	}

	return NewRedisStore(client, opts.Key), client.Close, nil
}

// Get loads the credential, returning nil when the key is missing.
func (s *RedisStore) Get(ctx context.Context) (*models.Credential, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis store: get: %w", err)
	}

	var credential models.Credential
	if err := json.Unmarshal(data, &credential); err != nil {
		return nil, fmt.Errorf("redis store: decode: %w", err)
	}
	if !credential.Complete() {
		return nil, nil
	}
	return &credential, nil
}

// Set stores the credential without expiry; staleness is judged from IssuedAt.
func (s *RedisStore) Set(ctx context.Context, credential models.Credential) error {
	if err := validate(credential); err != nil {
		return err
	}
	data, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("redis store: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis store: set: %w", err)
	}
	return nil
}

// Clear deletes the credential key.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis store: delete: %w", err)
	}
	return nil
}
