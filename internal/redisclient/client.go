package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"shop-service/internal/models"

	"github.com/go-redis/redis/v8"
)

// cartTTL keeps abandoned carts around long enough to survive a
// returning shopper, without accumulating forever.
const cartTTL = 30 * 24 * time.Hour

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func cartKey(cartID string) string {
	return fmt.Sprintf("cart:%s", cartID)
}

// Lines returns all cart lines for a cart, ordered by the position
// recorded when each line was first added.
func (c *Client) Lines(ctx context.Context, cartID string) ([]models.CartLine, error) {
	fields, err := c.rdb.HGetAll(ctx, cartKey(cartID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cart %s: %w", cartID, err)
	}

	lines := make([]models.CartLine, 0, len(fields))
	for _, raw := range fields {
		var line models.CartLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			return nil, fmt.Errorf("corrupt cart line in cart %s: %w", cartID, err)
		}
		lines = append(lines, line)
	}

	sort.Slice(lines, func(i, j int) bool {
		return lines[i].Position < lines[j].Position
	})
	return lines, nil
}

// PutLine writes a cart line keyed by its variant id and refreshes the
// cart's TTL.
func (c *Client) PutLine(ctx context.Context, cartID string, line models.CartLine) error {
	raw, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("failed to marshal cart line: %w", err)
	}

	key := cartKey(cartID)
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, line.Variant.ID, raw)
	pipe.Expire(ctx, key, cartTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// RemoveLine deletes the line for a variant from a cart
func (c *Client) RemoveLine(ctx context.Context, cartID, variantID string) error {
	return c.rdb.HDel(ctx, cartKey(cartID), variantID).Err()
}

// Clear deletes a cart entirely
func (c *Client) Clear(ctx context.Context, cartID string) error {
	return c.rdb.Del(ctx, cartKey(cartID)).Err()
}
