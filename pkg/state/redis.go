package state

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

// RedisStore keeps the checkpoint under a single Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ Store = (*RedisStore)(nil)

// RedisOptions configures a RedisStore
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to redis").
			WithDetail("addr", opts.Addr)
	}
	return NewRedisStoreWithClient(client, opts.Key), nil
}

// NewRedisStoreWithClient reuses an existing client
func NewRedisStoreWithClient(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "emarsys-tap:state"
	}
	return &RedisStore{client: client, key: key}
}

// Read loads the checkpoint. A missing key is an empty document.
func (r *RedisStore) Read(ctx context.Context) (*Document, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return New(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to read state from redis").
			WithDetail("key", r.key)
	}
	return Decode(data)
}

// Write stores the checkpoint. Durability follows the server's persistence settings.
func (r *RedisStore) Write(ctx context.Context, doc *Document) error {
	data, err := Encode(doc)
	if err == nil {
		err = r.client.Set(ctx, r.key, data, 0).Err()
		if err != nil {
			err = errors.Wrap(err, errors.ErrorTypeState, "failed to write state to redis").
				WithDetail("key", r.key)
		}
	}
	recordWrite("redis", err)
	return err
}

// Close closes the client
func (r *RedisStore) Close() error {
	return r.client.Close()
}
