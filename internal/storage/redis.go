package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"securestay-risk/internal/features"
)

const (
	attemptKeyPrefix = "securestay:attempt:"
	deviceKeyPrefix  = "securestay:device:"

	defaultDeviceTTL = 30 * 24 * time.Hour
)

// RedisTracker keeps guest attempt and device history in redis so that every
// scoring process sees the same history.
type RedisTracker struct {
	client    redis.UniversalClient
	deviceTTL time.Duration
}

// NewRedisTracker wraps an existing client. A zero deviceTTL uses 30 days.
func NewRedisTracker(client redis.UniversalClient, deviceTTL time.Duration) *RedisTracker {
	if deviceTTL <= 0 {
		deviceTTL = defaultDeviceTTL
	}
	return &RedisTracker{client: client, deviceTTL: deviceTTL}
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// RecordAttempt stores at as the guest's latest attempt and reports whether the
// previous one is still inside window. Keys expire after window.
func (r *RedisTracker) RecordAttempt(ctx context.Context, guestID string, at time.Time, window time.Duration) (bool, error) {
	prev, err := r.client.SetArgs(ctx, attemptKeyPrefix+guestID, at.UnixNano(), redis.SetArgs{
		TTL: window,
		Get: true,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	nanos, err := strconv.ParseInt(prev, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse attempt time %q: %w", prev, err)
	}
	return features.WithinWindow(time.Unix(0, nanos), at, window), nil
}

// SwapDevice stores deviceID as the guest's device and reports whether it differs
// from the previous one.
func (r *RedisTracker) SwapDevice(ctx context.Context, guestID, deviceID string) (bool, error) {
	prev, err := r.client.SetArgs(ctx, deviceKeyPrefix+guestID, deviceID, redis.SetArgs{
		TTL: r.deviceTTL,
		Get: true,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return prev != deviceID, nil
}
