// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-kit/kit/log"
)

func TestOauth__issueAndLookup(t *testing.T) {
	o := testOauth(t)

	pair, err := o.issue(&Account{ID: 42})
	if err != nil {
		t.Fatal(err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatalf("unexpected pair: %#v", pair)
	}
	id, err := o.lookup(pair.Access)
	if err != nil {
		t.Fatal(err)
	}
	if id != 42 {
		t.Errorf("id=%d", id)
	}

	if _, err := o.lookup("garbage"); !errors.Is(err, errInvalidToken) {
		t.Errorf("expected invalid token, got %v", err)
	}
	if _, err := o.lookup(""); !errors.Is(err, errInvalidToken) {
		t.Errorf("expected invalid token, got %v", err)
	}
	// refresh tokens aren't access tokens
	if _, err := o.lookup(pair.Refresh); !errors.Is(err, errInvalidToken) {
		t.Errorf("expected invalid token, got %v", err)
	}
}

func TestOauth__sameSecond(t *testing.T) {
	o := testOauth(t)

	first, err := o.issue(&Account{ID: 1})
	if err != nil {
		t.Fatal(err)
	}
	second, err := o.issue(&Account{ID: 1})
	if err != nil {
		t.Fatal(err)
	}
	if first.Access == second.Access || first.Refresh == second.Refresh {
		t.Fatal("tokens collided")
	}
	for _, access := range []string{first.Access, second.Access} {
		if _, err := o.lookup(access); err != nil {
			t.Error(err)
		}
	}
}

func TestOauth__jwtClaims(t *testing.T) {
	o := testOauth(t)

	pair, err := o.issue(&Account{ID: 7})
	if err != nil {
		t.Fatal(err)
	}
	var claims accessClaims
	token, err := jwt.ParseWithClaims(pair.Access, &claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte("test-secret"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("token=%v err=%v", token, err)
	}
	if claims.Subject != "7" || claims.TokenType != "access" || claims.Id == "" {
		t.Errorf("unexpected claims: %#v", claims)
	}
	if claims.Audience != "forge" {
		t.Errorf("aud=%q", claims.Audience)
	}
	exp := time.Unix(claims.ExpiresAt, 0)
	if d := time.Until(exp); d <= 50*time.Minute || d > time.Hour+time.Minute {
		t.Errorf("expires in %v", d)
	}
}

func TestOauth__refresh(t *testing.T) {
	o := testOauth(t)

	pair, err := o.issue(&Account{ID: 3})
	if err != nil {
		t.Fatal(err)
	}
	next, err := o.refresh(pair.Refresh)
	if err != nil {
		t.Fatal(err)
	}
	if id, err := o.lookup(next.Access); err != nil || id != 3 {
		t.Errorf("id=%d err=%v", id, err)
	}
	// the old pair is gone
	if _, err := o.lookup(pair.Access); !errors.Is(err, errInvalidToken) {
		t.Errorf("old access still valid: %v", err)
	}
	if _, err := o.refresh(pair.Refresh); !errors.Is(err, errInvalidToken) {
		t.Errorf("old refresh still valid: %v", err)
	}
}

func TestOauth__revoke(t *testing.T) {
	o := testOauth(t)

	pair, err := o.issue(&Account{ID: 3})
	if err != nil {
		t.Fatal(err)
	}
	if err := o.revoke(pair.Access); err != nil {
		t.Fatal(err)
	}
	if _, err := o.lookup(pair.Access); !errors.Is(err, errInvalidToken) {
		t.Errorf("expected invalid token, got %v", err)
	}
	if err := o.revoke(pair.Access); !errors.Is(err, errInvalidToken) {
		t.Errorf("expected invalid token, got %v", err)
	}
}

func TestOauth__expired(t *testing.T) {
	o, err := setupOauthServer(log.NewNopLogger(), TokenConfig{
		Secret:       "test-secret",
		AccessTTL:    time.Nanosecond,
		RefreshTTL:   time.Hour,
		ClientID:     "forge",
		ClientSecret: "forge-secret",
		TokenDBPath:  ":memory:",
		ClientDBPath: ":memory:",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer o.close()

	pair, err := o.issue(&Account{ID: 3})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := o.lookup(pair.Access); !errors.Is(err, errInvalidToken) {
		t.Errorf("expected invalid token, got %v", err)
	}
}

func TestOauth__fileStores(t *testing.T) {
	dir := t.TempDir()
	o, err := setupOauthServer(log.NewNopLogger(), TokenConfig{
		Secret:       "test-secret",
		AccessTTL:    time.Hour,
		RefreshTTL:   time.Hour,
		ClientID:     "forge",
		ClientSecret: "forge-secret",
		TokenDBPath:  filepath.Join(dir, "tokens.db"),
		ClientDBPath: filepath.Join(dir, "clients.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer o.close()

	pair, err := o.issue(&Account{ID: 9})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(pair.Access, ".") {
		t.Errorf("expected a JWT, got %q", pair.Access)
	}
	cli, err := o.clientStore.GetByID("forge")
	if err != nil || cli.GetSecret() != "forge-secret" {
		t.Errorf("client=%v err=%v", cli, err)
	}
}
