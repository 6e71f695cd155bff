// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The filtermap Authors

// Package redis provides observables of Redis Stream entries.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joamaki/filtermap/stream"
)

const (
	// DefaultBlock is how long a single XREAD waits for new entries. The
	// context is checked between reads.
	DefaultBlock = time.Second

	DefaultCount = 100

	// LatestID starts reading from entries added after observing starts.
	LatestID = "$"

	emptyStreamID = "0-0"
)

// Reader is the subset of the go-redis client used by Stream.
type Reader interface {
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
}

type Config struct {
	// Key is the name of the stream.
	Key string

	// StartID is the entry ID after which to start reading. Defaults to LatestID.
	StartID string

	// Block is the per-read blocking timeout. Defaults to DefaultBlock.
	Block time.Duration

	// Count is the maximum number of entries per read. Defaults to DefaultCount.
	Count int64
}

func (c Config) withDefaults() Config {
	if c.StartID == "" {
		c.StartID = LatestID
	}
	if c.Block <= 0 {
		c.Block = DefaultBlock
	}
	if c.Count <= 0 {
		c.Count = DefaultCount
	}
	return c
}

// NewClient creates a go-redis client for 'addr'.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// resolveStartID turns LatestID into the ID of the newest entry at the time
// of the call, so that entries added between two reads are not skipped.
func resolveStartID(ctx context.Context, client Reader, key, id string) (string, error) {
	if id != LatestID {
		return id, nil
	}
	msgs, err := client.XRevRangeN(ctx, key, "+", "-", 1).Result()
	if err != nil {
		return "", fmt.Errorf("XREVRANGE %s: %w", key, err)
	}
	if len(msgs) == 0 {
		return emptyStreamID, nil
	}
	return msgs[0].ID, nil
}

// Stream emits the entries of a Redis stream in order. Each observer reads
// independently starting from cfg.StartID. The observable only completes
// on error or cancellation.
func Stream(client Reader, cfg Config) stream.Observable[redis.XMessage] {
	cfg = cfg.withDefaults()
	return stream.FuncObservable[redis.XMessage](
		func(ctx context.Context, next func(redis.XMessage) error) error {
			lastID, err := resolveStartID(ctx, client, cfg.Key, cfg.StartID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				res, err := client.XRead(ctx, &redis.XReadArgs{
					Streams: []string{cfg.Key, lastID},
					Count:   cfg.Count,
					Block:   cfg.Block,
				}).Result()
				if errors.Is(err, redis.Nil) {
					continue
				}
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return fmt.Errorf("XREAD %s: %w", cfg.Key, err)
				}
				for _, s := range res {
					for _, msg := range s.Messages {
						lastID = msg.ID
						if err := next(msg); err != nil {
							return err
						}
					}
				}
			}
		})
}

// Field returns a function for stream.FilterMapOK that extracts the string
// value of 'field' from an entry. Entries without the field are dropped.
func Field(field string) func(redis.XMessage) (string, bool) {
	return func(msg redis.XMessage) (string, bool) {
		v, ok := msg.Values[field]
		if !ok {
			return "", false
		}
		switch s := v.(type) {
		case string:
			return s, true
		case []byte:
			return string(s), true
		default:
			return fmt.Sprint(s), true
		}
	}
}

// Records streams the value of 'field' from each entry of the stream,
// dropping entries that lack it.
func Records(client Reader, cfg Config, field string) stream.Observable[string] {
	return stream.FilterMapOK(Stream(client, cfg), Field(field))
}
