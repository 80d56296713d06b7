package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client provides deployment-scoped Redis operations for the connection
// mailbox. All keys and channels are automatically namespaced with the
// deployment name. The client is safe for concurrent use.
type Client struct {
	rdb            *redis.Client
	deploymentName string
}

// NewClient creates a mailbox client for the specified deployment.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - deploymentName: deployment identifier (must not be empty)
//
// Returns an error if deploymentName is empty.
func NewClient(redisOpts *redis.Options, deploymentName string) (*Client, error) {
	if deploymentName == "" {
		return nil, fmt.Errorf("deployment name cannot be empty")
	}

	return &Client{
		rdb:            redis.NewClient(redisOpts),
		deploymentName: deploymentName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// DeploymentName returns the deployment this client is scoped to.
func (c *Client) DeploymentName() string {
	return c.deploymentName
}

// PublishUpdate writes an update into the deployment's mailbox and announces
// it on the Pub/Sub channel. The mailbox keeps the newest MaxMailboxUpdates
// entries; older ones are evicted in the same call.
//
// The update is stored in a ZSET at comb:{deployment}:updates scored by its
// timestamp, then its full JSON is published to comb:{deployment}:announce.
func (c *Client) PublishUpdate(ctx context.Context, u *ConnectionUpdate) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("invalid update: %w", err)
	}

	updateJSON, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	key := UpdatesKey(c.deploymentName)
	z := redis.Z{
		Score:  float64(u.TimestampMs),
		Member: string(updateJSON),
	}
	if err := c.rdb.ZAdd(ctx, key, z).Err(); err != nil {
		return fmt.Errorf("failed to write update to Redis: %w", err)
	}

	// Keep only the newest entries by rank.
	if err := c.rdb.ZRemRangeByRank(ctx, key, 0, int64(-(MaxMailboxUpdates + 1))).Err(); err != nil {
		return fmt.Errorf("failed to trim mailbox: %w", err)
	}

	channel := AnnounceChannel(c.deploymentName)
	if err := c.rdb.Publish(ctx, channel, updateJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish update announcement: %w", err)
	}

	return nil
}

// Updates retrieves the mailbox's updates, newest first.
// Returns an empty slice if the mailbox is empty (not an error).
func (c *Client) Updates(ctx context.Context) ([]*ConnectionUpdate, error) {
	key := UpdatesKey(c.deploymentName)

	members, err := c.rdb.ZRevRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read updates from Redis: %w", err)
	}

	updates := make([]*ConnectionUpdate, 0, len(members))
	for _, m := range members {
		var u ConnectionUpdate
		if err := json.Unmarshal([]byte(m), &u); err != nil {
			return nil, fmt.Errorf("failed to unmarshal update: %w", err)
		}
		updates = append(updates, &u)
	}

	return updates, nil
}

// LatestUpdate retrieves the newest update in the mailbox.
// Returns (nil, redis.Nil) if the mailbox is empty.
// Use IsNotFound() to check for not-found errors.
func (c *Client) LatestUpdate(ctx context.Context) (*ConnectionUpdate, error) {
	key := UpdatesKey(c.deploymentName)

	members, err := c.rdb.ZRevRange(ctx, key, 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read latest update from Redis: %w", err)
	}
	if len(members) == 0 {
		return nil, redis.Nil
	}

	var u ConnectionUpdate
	if err := json.Unmarshal([]byte(members[0]), &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal update: %w", err)
	}

	return &u, nil
}

// PutValues writes resolved connection values into the deployment's values
// hash. Each value lands at field {element_id}:{input_path}; writing the same
// field twice overwrites the previous value.
func (c *Client) PutValues(ctx context.Context, values ...*ConnectionValue) error {
	if len(values) == 0 {
		return nil
	}

	pairs := make([]interface{}, 0, len(values)*2)
	for _, v := range values {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid value: %w", err)
		}
		valueJSON, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal value: %w", err)
		}
		pairs = append(pairs, ValueField(v.ElementID, v.InputPath), string(valueJSON))
	}

	key := ValuesKey(c.deploymentName)
	if err := c.rdb.HSet(ctx, key, pairs...).Err(); err != nil {
		return fmt.Errorf("failed to write values to Redis: %w", err)
	}

	return nil
}

// Values retrieves all resolved connection values for the deployment.
// Returns an empty slice if none exist (not an error).
func (c *Client) Values(ctx context.Context) ([]*ConnectionValue, error) {
	key := ValuesKey(c.deploymentName)

	raw, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read values from Redis: %w", err)
	}

	values := make([]*ConnectionValue, 0, len(raw))
	for field, valueJSON := range raw {
		var v ConnectionValue
		if err := json.Unmarshal([]byte(valueJSON), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal value at field %q: %w", field, err)
		}
		values = append(values, &v)
	}

	return values, nil
}

// Value retrieves one resolved value by element ID and input path.
// Returns (nil, redis.Nil) if no value exists for that input.
func (c *Client) Value(ctx context.Context, elementID, inputPath string) (*ConnectionValue, error) {
	key := ValuesKey(c.deploymentName)

	valueJSON, err := c.rdb.HGet(ctx, key, ValueField(elementID, inputPath)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read value from Redis: %w", err)
	}

	var v ConnectionValue
	if err := json.Unmarshal([]byte(valueJSON), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return &v, nil
}

// ClearValues deletes every resolved value for the deployment.
// Used when a connection is removed and stale values must not linger.
func (c *Client) ClearValues(ctx context.Context) error {
	key := ValuesKey(c.deploymentName)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to clear values: %w", err)
	}
	return nil
}

// SaveInstanceState writes an element instance's state record.
// This is a full replacement of all fields; the record is created if absent.
func (c *Client) SaveInstanceState(ctx context.Context, s *InstanceState) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid instance state: %w", err)
	}

	hash, err := InstanceStateToHash(s)
	if err != nil {
		return fmt.Errorf("failed to serialize instance state: %w", err)
	}

	key := InstanceKey(c.deploymentName, s.InstanceID)
	if err := c.rdb.HSet(ctx, key, hash).Err(); err != nil {
		return fmt.Errorf("failed to write instance state to Redis: %w", err)
	}

	return nil
}

// GetInstanceState retrieves an element instance's state record.
// Returns (nil, redis.Nil) if the instance doesn't exist.
func (c *Client) GetInstanceState(ctx context.Context, instanceID string) (*InstanceState, error) {
	key := InstanceKey(c.deploymentName, instanceID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read instance state from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys.
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	state, err := HashToInstanceState(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize instance state: %w", err)
	}

	return state, nil
}

// InstanceExists checks whether an instance state record exists without
// fetching it.
func (c *Client) InstanceExists(ctx context.Context, instanceID string) (bool, error) {
	key := InstanceKey(c.deploymentName, instanceID)
	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check instance existence: %w", err)
	}
	return exists > 0, nil
}

// Subscription represents an active Pub/Sub subscription to update
// announcements. Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *ConnectionUpdate
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of announced updates.
// The channel is closed when the subscription closes or the context ends.
func (s *Subscription) Events() <-chan *ConnectionUpdate {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors; bad messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeUpdates subscribes to update announcements for this deployment.
// Caller must call subscription.Close() when done. Context cancellation also
// stops the subscription.
//
// Events are delivered on a buffered channel (size 10). Redis Pub/Sub is
// at-most-once: a slow subscriber can miss announcements, which is why
// consumers re-read the mailbox rather than trusting the stream alone.
func (c *Client) SubscribeUpdates(ctx context.Context) (*Subscription, error) {
	channel := AnnounceChannel(c.deploymentName)
	pubsub := c.rdb.Subscribe(ctx, channel)

	eventsChan := make(chan *ConnectionUpdate, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var update ConnectionUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal update announcement: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &update:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error.
// Use this to check if LatestUpdate, Value, or GetInstanceState returned
// "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
