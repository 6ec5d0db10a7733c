// Package stream moves station results over a Redis stream between the
// analyze job and the store consumer.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"streamevents/internal/models"
)

const (
	dataField = "data"

	// DefaultGroup is the consumer group used by the store service
	DefaultGroup = "station_consumers"
)

// Encode builds the XAdd values for a result
func Encode(result models.StationResult) (map[string]interface{}, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize result for %s: %w", result.SiteNo, err)
	}
	return map[string]interface{}{dataField: string(data)}, nil
}

// Decode reads a result back from a stream message
func Decode(msg redis.XMessage) (models.StationResult, error) {
	var result models.StationResult
	raw, ok := msg.Values[dataField].(string)
	if !ok {
		return result, fmt.Errorf("message %s has no %s field", msg.ID, dataField)
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal message %s: %w", msg.ID, err)
	}
	return result, nil
}

// Publisher appends station results to a stream
type Publisher struct {
	client *redis.Client
	stream string
}

// NewPublisher creates a publisher writing to stream
func NewPublisher(client *redis.Client, stream string) *Publisher {
	return &Publisher{client: client, stream: stream}
}

// Publish appends one result
func (p *Publisher) Publish(ctx context.Context, result models.StationResult) error {
	values, err := Encode(result)
	if err != nil {
		return err
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", result.SiteNo, p.stream, err)
	}
	return nil
}

// Consumer reads station results as a member of a consumer group
type Consumer struct {
	client *redis.Client
	stream string
	group  string
	name   string
}

// NewConsumer creates the group if needed
func NewConsumer(ctx context.Context, client *redis.Client, stream, group, name string) (*Consumer, error) {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return &Consumer{client: client, stream: stream, group: group, name: name}, nil
}

// Read blocks up to block for at most count new messages
func (c *Consumer) Read(ctx context.Context, count int64, block time.Duration) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []redis.XMessage
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

// Ack acknowledges a processed message
func (c *Consumer) Ack(ctx context.Context, id string) error {
	return c.client.XAck(ctx, c.stream, c.group, id).Err()
}

// Reclaim claims up to count messages that have been pending in the group
// for at least minIdle, so results whose store failed are retried.
func (c *Consumer) Reclaim(ctx context.Context, count int64, minIdle time.Duration) ([]redis.XMessage, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}

	ids := staleIDs(pending, minIdle)
	if len(ids) == 0 {
		return nil, nil
	}

	msgs, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending messages: %w", err)
	}
	return msgs, nil
}

// staleIDs returns the ids of pending entries idle for at least minIdle
func staleIDs(pending []redis.XPendingExt, minIdle time.Duration) []string {
	var ids []string
	for _, p := range pending {
		if p.Idle >= minIdle {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
