package flowstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	flowKeyPrefix = "specializer:flow:"
	flowListKey   = "specializer:flows"
)

// RedisStore implements FlowStore using Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed flow store from a redis:// URL
// or a bare host:port address.
func NewRedisStore(addr string) (*RedisStore, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient creates a store using an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) flowKey(agentID string) string {
	return flowKeyPrefix + agentID
}

// Create saves a new flow.
func (s *RedisStore) Create(ctx context.Context, flow *Flow) (*Flow, error) {
	if err := flow.Validate(); err != nil {
		return nil, err
	}

	stored := flow.Clone()
	if stored.AgentID == "" {
		stored.AgentID = uuid.New().String()
	}
	now := time.Now().UTC()
	stored.Revision = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal flow: %w", err)
	}

	// Only one create per agent succeeds.
	ok, err := s.client.SetNX(ctx, s.flowKey(stored.AgentID), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("save flow: %w", err)
	}
	if !ok {
		return nil, ErrFlowExists
	}
	if err := s.client.SAdd(ctx, flowListKey, stored.AgentID).Err(); err != nil {
		return nil, fmt.Errorf("index flow: %w", err)
	}

	return stored, nil
}

// Get retrieves a flow by agent id.
func (s *RedisStore) Get(ctx context.Context, agentID string) (*Flow, error) {
	data, err := s.client.Get(ctx, s.flowKey(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flow: %w", err)
	}

	var flow Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("unmarshal flow: %w", err)
	}
	return &flow, nil
}

// Update replaces an existing flow. The read-modify-write runs under WATCH so
// a concurrent update fails instead of being lost.
func (s *RedisStore) Update(ctx context.Context, agentID string, flow *Flow) (*Flow, error) {
	if err := flow.Validate(); err != nil {
		return nil, err
	}

	key := s.flowKey(agentID)
	var updated *Flow
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrFlowNotFound
		}
		if err != nil {
			return fmt.Errorf("get flow: %w", err)
		}

		var stored Flow
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("unmarshal flow: %w", err)
		}
		replaceContent(&stored, flow)

		out, err := json.Marshal(&stored)
		if err != nil {
			return fmt.Errorf("marshal flow: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err != nil {
			return fmt.Errorf("save flow: %w", err)
		}
		updated = &stored
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a flow.
func (s *RedisStore) Delete(ctx context.Context, agentID string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.flowKey(agentID))
	pipe.SRem(ctx, flowListKey, agentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	if del.Val() == 0 {
		return ErrFlowNotFound
	}
	return nil
}

// List returns all flows matching the options.
func (s *RedisStore) List(ctx context.Context, opts *ListOptions) ([]*Flow, error) {
	ids, err := s.client.SMembers(ctx, flowListKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list flow ids: %w", err)
	}

	flows := make([]*Flow, 0, len(ids))
	for _, id := range ids {
		flow, err := s.Get(ctx, id)
		if errors.Is(err, ErrFlowNotFound) {
			// Stale reference, clean up
			s.client.SRem(ctx, flowListKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}

	return filterPage(flows, opts), nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
