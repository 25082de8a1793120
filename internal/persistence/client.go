// Package persistence is the best-effort Redis collaborator of the pipeline.
// It stores viewer preferences, emitted-message history, feedback and daily
// counters, and carries the raw-event ingress and message egress channels.
// Nothing in the pipeline depends on it being reachable.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/hark/pkg/blackboard"
)

const (
	historyLimit  = 200
	feedbackLimit = 1000
	metricsTTL    = 30 * 24 * time.Hour
)

// ErrUnavailable wraps failures to reach Redis at startup.
var ErrUnavailable = errors.New("persistence unavailable")

// Store is the persistence contract the core depends on.
type Store interface {
	LoadPreferences(ctx context.Context, userID string) (blackboard.Preferences, error)
	SavePreferences(ctx context.Context, userID string, p blackboard.Preferences) error
	AppendHistory(ctx context.Context, userID string, msgs []blackboard.OutputMessage) error
	LoadFeedback(ctx context.Context, userID string) ([]blackboard.FeedbackEntry, error)
	AppendFeedback(ctx context.Context, userID string, entries []blackboard.FeedbackEntry) error
	IncrementMetrics(ctx context.Context, userID string, day time.Time, counts map[string]int64) error
}

// Client provides instance-scoped Redis operations.
// All keys and channels are namespaced with the instance name.
// The client is safe for concurrent use.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

var _ Store = (*Client)(nil)

// NewClient creates a client for the specified instance.
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Connect parses a redis:// URL, creates a client and verifies connectivity.
// Connection failures wrap ErrUnavailable.
func Connect(ctx context.Context, url, instanceName string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	c, err := NewClient(opts, instanceName)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return c, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// InstanceName returns the key namespace.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// LoadPreferences reads a viewer's preferences.
// Returns redis.Nil if none are stored; use IsNotFound to check.
func (c *Client) LoadPreferences(ctx context.Context, userID string) (blackboard.Preferences, error) {
	hash, err := c.rdb.HGetAll(ctx, blackboard.PreferencesKey(c.instanceName, userID)).Result()
	if err != nil {
		return blackboard.Preferences{}, fmt.Errorf("failed to read preferences from Redis: %w", err)
	}

	// HGetAll returns an empty map for missing keys
	if len(hash) == 0 {
		return blackboard.Preferences{}, redis.Nil
	}

	prefs, err := blackboard.HashToPreferences(hash)
	if err != nil {
		return blackboard.Preferences{}, fmt.Errorf("failed to deserialize preferences: %w", err)
	}
	return prefs, nil
}

// SavePreferences replaces a viewer's stored preferences.
func (c *Client) SavePreferences(ctx context.Context, userID string, p blackboard.Preferences) error {
	hash, err := blackboard.PreferencesToHash(p)
	if err != nil {
		return fmt.Errorf("failed to serialize preferences: %w", err)
	}
	if err := c.rdb.HSet(ctx, blackboard.PreferencesKey(c.instanceName, userID), hash).Err(); err != nil {
		return fmt.Errorf("failed to write preferences to Redis: %w", err)
	}
	return nil
}

// AppendHistory pushes emitted messages onto the head of the history list,
// keeping the newest 200.
func (c *Client) AppendHistory(ctx context.Context, userID string, msgs []blackboard.OutputMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	values, err := marshalAll(msgs)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	key := blackboard.HistoryKey(c.instanceName, userID)
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, values...)
	pipe.LTrim(ctx, key, 0, historyLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// History returns up to n stored messages, newest first.
func (c *Client) History(ctx context.Context, userID string, n int) ([]blackboard.OutputMessage, error) {
	if n <= 0 {
		n = historyLimit
	}
	raw, err := c.rdb.LRange(ctx, blackboard.HistoryKey(c.instanceName, userID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	out := make([]blackboard.OutputMessage, 0, len(raw))
	for _, r := range raw {
		var msg blackboard.OutputMessage
		if err := json.Unmarshal([]byte(r), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history entry: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// LoadFeedback returns stored feedback entries, oldest first.
func (c *Client) LoadFeedback(ctx context.Context, userID string) ([]blackboard.FeedbackEntry, error) {
	raw, err := c.rdb.LRange(ctx, blackboard.FeedbackKey(c.instanceName, userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read feedback: %w", err)
	}
	out := make([]blackboard.FeedbackEntry, 0, len(raw))
	for _, r := range raw {
		var e blackboard.FeedbackEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal feedback entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// AppendFeedback appends entries to the tail of the feedback list, keeping the newest 1000.
func (c *Client) AppendFeedback(ctx context.Context, userID string, entries []blackboard.FeedbackEntry) error {
	if len(entries) == 0 {
		return nil
	}
	values, err := marshalAll(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}

	key := blackboard.FeedbackKey(c.instanceName, userID)
	pipe := c.rdb.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, -feedbackLimit, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append feedback: %w", err)
	}
	return nil
}

// IncrementMetrics adds counts to the viewer's daily metrics hash. The hash
// expires 30 days after its last update.
func (c *Client) IncrementMetrics(ctx context.Context, userID string, day time.Time, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}
	key := blackboard.MetricsKey(c.instanceName, userID, day)
	pipe := c.rdb.TxPipeline()
	for field, delta := range counts {
		pipe.HIncrBy(ctx, key, field, delta)
	}
	pipe.Expire(ctx, key, metricsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment metrics: %w", err)
	}
	return nil
}

// Metrics reads the viewer's counters for one day.
func (c *Client) Metrics(ctx context.Context, userID string, day time.Time) (map[string]int64, error) {
	hash, err := c.rdb.HGetAll(ctx, blackboard.MetricsKey(c.instanceName, userID, day)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}
	out := make(map[string]int64, len(hash))
	for field, v := range hash {
		var n int64
		if _, err := fmt.Sscan(v, &n); err != nil {
			return nil, fmt.Errorf("invalid metric %s: %w", field, err)
		}
		out[field] = n
	}
	return out, nil
}

// PublishMessage publishes an emitted message on the messages channel for the UI layer.
func (c *Client) PublishMessage(ctx context.Context, msg blackboard.OutputMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := c.rdb.Publish(ctx, blackboard.MessagesChannel(c.instanceName), data).Err(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// PublishEvent publishes a raw event on the ingress channel.
func (c *Client) PublishEvent(ctx context.Context, ev blackboard.RawEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := c.rdb.Publish(ctx, blackboard.EventsChannel(c.instanceName), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

func marshalAll[T any](items []T) ([]interface{}, error) {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		out = append(out, string(data))
	}
	return out, nil
}
