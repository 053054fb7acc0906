// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tidwall/buntdb"
)

// sendThrottle enforces a cooldown between OTP sends to one recipient.
type sendThrottle interface {
	// reserve claims the recipient's send slot. When the slot is taken
	// ok is false and wait tells how long until it frees up.
	reserve(ctx context.Context, recipient string) (ok bool, wait time.Duration, err error)

	close() error
}

func throttleKey(recipient string) string {
	return "otp:cooldown:" + recipient
}

// noThrottle allows every send.
type noThrottle struct{}

func (noThrottle) reserve(context.Context, string) (bool, time.Duration, error) {
	return true, 0, nil
}

func (noThrottle) close() error { return nil }

// buntdbThrottle keeps cooldowns in process, backed by expiring BuntDB keys.
type buntdbThrottle struct {
	db       *buntdb.DB
	cooldown time.Duration
}

func newBuntdbThrottle(cooldown time.Duration) (*buntdbThrottle, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("problem opening throttle store: %v", err)
	}
	return &buntdbThrottle{db: db, cooldown: cooldown}, nil
}

func (t *buntdbThrottle) reserve(_ context.Context, recipient string) (bool, time.Duration, error) {
	key := throttleKey(recipient)
	var wait time.Duration
	err := t.db.Update(func(tx *buntdb.Tx) error {
		ttl, err := tx.TTL(key)
		switch {
		case err == nil && ttl > 0:
			wait = ttl
			return nil
		case err != nil && err != buntdb.ErrNotFound:
			return err
		}
		_, _, err = tx.Set(key, "1", &buntdb.SetOptions{Expires: true, TTL: t.cooldown})
		return err
	})
	if err != nil {
		return false, 0, fmt.Errorf("problem reserving otp send for %s: %v", recipient, err)
	}
	return wait == 0, wait, nil
}

func (t *buntdbThrottle) close() error {
	return t.db.Close()
}

// redisThrottle shares cooldowns between server instances.
type redisThrottle struct {
	client   redis.UniversalClient
	cooldown time.Duration
}

func newRedisThrottle(addr, password string, cooldown time.Duration) *redisThrottle {
	return &redisThrottle{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		cooldown: cooldown,
	}
}

func (t *redisThrottle) reserve(ctx context.Context, recipient string) (bool, time.Duration, error) {
	key := throttleKey(recipient)
	ok, err := t.client.SetNX(ctx, key, "1", t.cooldown).Result()
	if err != nil {
		return false, 0, fmt.Errorf("problem reserving otp send for %s: %v", recipient, err)
	}
	if ok {
		return true, 0, nil
	}
	wait, err := t.client.PTTL(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("problem reading otp cooldown for %s: %v", recipient, err)
	}
	if wait < 0 {
		// key vanished or has no expiry
		wait = t.cooldown
	}
	return false, wait, nil
}

func (t *redisThrottle) close() error {
	return t.client.Close()
}

func (t *redisThrottle) ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func setupThrottle(cfg OTPConfig) (sendThrottle, error) {
	switch {
	case cfg.ResendCooldown <= 0:
		return noThrottle{}, nil
	case cfg.RedisAddr != "":
		return newRedisThrottle(cfg.RedisAddr, cfg.RedisPassword, cfg.ResendCooldown), nil
	}
	return newBuntdbThrottle(cfg.ResendCooldown)
}
