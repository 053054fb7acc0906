// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"testing"
	"time"
)

func TestThrottle__buntdb(t *testing.T) {
	throttle, err := newBuntdbThrottle(time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer throttle.close()
	ctx := context.Background()

	ok, _, err := throttle.reserve(ctx, "email:a@x.com")
	if err != nil || !ok {
		t.Fatalf("first reserve: ok=%v err=%v", ok, err)
	}
	ok, wait, err := throttle.reserve(ctx, "email:a@x.com")
	if err != nil || ok {
		t.Fatalf("second reserve: ok=%v err=%v", ok, err)
	}
	if wait <= 0 || wait > time.Minute {
		t.Errorf("wait=%v", wait)
	}

	// other recipients are independent
	if ok, _, _ := throttle.reserve(ctx, "email:b@x.com"); !ok {
		t.Error("b@x.com throttled")
	}
}

func TestThrottle__buntdbExpires(t *testing.T) {
	throttle, err := newBuntdbThrottle(50 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer throttle.close()
	ctx := context.Background()

	if ok, _, _ := throttle.reserve(ctx, "phone:+254712345678"); !ok {
		t.Fatal("first reserve refused")
	}
	time.Sleep(100 * time.Millisecond)
	if ok, _, _ := throttle.reserve(ctx, "phone:+254712345678"); !ok {
		t.Error("cooldown didn't expire")
	}
}

func TestThrottle__setup(t *testing.T) {
	th, err := setupThrottle(OTPConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := th.(noThrottle); !ok {
		t.Errorf("got %T", th)
	}
	if ok, _, _ := th.reserve(context.Background(), "x"); !ok {
		t.Error("noThrottle refused")
	}

	th, err = setupThrottle(OTPConfig{ResendCooldown: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	defer th.close()
	if _, ok := th.(*buntdbThrottle); !ok {
		t.Errorf("got %T", th)
	}

	// the redis client connects lazily
	rt, err := setupThrottle(OTPConfig{ResendCooldown: time.Minute, RedisAddr: "localhost:6379"})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.close()
	if _, ok := rt.(*redisThrottle); !ok {
		t.Errorf("got %T", rt)
	}
}
