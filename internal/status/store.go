// internal/status/store.go
package status

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cmatc13/p2pservice/pkg/errors"
)

// Store receives status snapshots.
type Store interface {
	// Publish stores snapshot, replacing the previous one.
	Publish(ctx context.Context, snapshot Snapshot) error
	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
	// Close releases the store's connections.
	Close() error
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// Key is the hash holding the latest snapshot. Every publish is also
	// announced on the channel Key + ":updates".
	Key string
	// TTL expires the hash when the node stops publishing.
	TTL time.Duration
}

// RedisStore keeps the latest snapshot in a Redis hash.
type RedisStore struct {
	Client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore creates a store. The connection is established lazily; use
// Ping to check it.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisStore{
		Client: client,
		key:    cfg.Key,
		ttl:    cfg.TTL,
	}
}

// Channel returns the pub/sub channel publishes are announced on.
func (s *RedisStore) Channel() string {
	return s.key + ":updates"
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.Client.Ping(ctx).Err(); err != nil {
		return errors.StorageWrapWithCode(err, errors.OpConnect, errors.StorageErrConnection,
			"failed to connect to Redis")
	}
	return nil
}

// Publish writes the snapshot hash, refreshes its TTL and announces it, all in
// one transaction.
func (s *RedisStore) Publish(ctx context.Context, snapshot Snapshot) error {
	fields, payload, err := encode(snapshot)
	if err != nil {
		return err
	}

	_, err = s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		pipe.HSet(ctx, s.key, fields)
		pipe.Expire(ctx, s.key, s.ttl)
		pipe.Publish(ctx, s.Channel(), payload)
		return nil
	})
	var netErr net.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &netErr):
		return errors.StorageWrapWithCode(err, errors.OpPublish, errors.StorageErrConnection,
			"status store unreachable")
	default:
		return errors.StorageWrapWithCode(err, errors.OpPublish, errors.StorageErrWrite,
			"failed to publish status snapshot")
	}
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.Client.Close()
}

// encode flattens a snapshot into hash fields: the identity fields, one
// "service:<name>" field per service, and "snapshot" with the full JSON.
func encode(snapshot Snapshot) (map[string]interface{}, []byte, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, nil, errors.StorageWrapWithCode(err, errors.OpSerialize, errors.StorageErrSerialization,
			"failed to encode status snapshot")
	}

	fields := map[string]interface{}{
		"node_id":   snapshot.NodeID,
		"node_name": snapshot.NodeName,
		"timestamp": snapshot.Timestamp.UTC().Format(time.RFC3339Nano),
		"snapshot":  string(payload),
	}
	if snapshot.Signature != "" {
		fields["signature"] = snapshot.Signature
	}
	for name, status := range snapshot.Services {
		fields["service:"+name] = string(status)
	}
	return fields, payload, nil
}
