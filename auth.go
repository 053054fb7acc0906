// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-kit/kit/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	msgNoCredentials   = "Authentication credentials were not provided."
	msgInvalidToken    = "Given token not valid for any token type"
	msgBadCredentials  = "Invalid username/password."
	msgInactiveAccount = "User inactive or deleted."
)

// bcryptCost is lowered in tests.
var bcryptCost = bcrypt.DefaultCost

func hashPassword(pass string) (string, error) {
	bs, err := bcrypt.GenerateFromPassword([]byte(pass), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("problem hashing password: %v", err)
	}
	return string(bs), nil
}

// comparePassword returns nil only when pass matches the account's stored
// hash. Accounts without a password never match.
func comparePassword(acct *Account, pass string) error {
	if !acct.hasPassword() {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword([]byte(acct.Password), []byte(pass))
}

type accountKey struct{}

// accountFromContext returns the authenticated caller, nil when the
// request wasn't authenticated.
func accountFromContext(ctx context.Context) *Account {
	acct, _ := ctx.Value(accountKey{}).(*Account)
	return acct
}

// authenticator resolves the caller of a request from either a bearer
// access token or basic (email, password) credentials.
type authenticator struct {
	repo   accountRepository
	tokens tokenIssuer
	logger log.Logger
}

func (a *authenticator) authenticate(r *http.Request) (*Account, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return nil, unauthorizedError(msgNoCredentials)
	}
	if email, pass, ok := r.BasicAuth(); ok {
		return a.basic(r.Context(), email, pass)
	}

	token := bearerToken(r)
	if token == "" {
		return nil, unauthorizedError(msgNoCredentials)
	}
	return a.bearer(r.Context(), token)
}

func (a *authenticator) bearer(ctx context.Context, token string) (*Account, error) {
	id, err := a.tokens.lookup(token)
	if err != nil {
		authFailures.With("method", "bearer").Add(1)
		if errors.Is(err, errInvalidToken) {
			return nil, unauthorizedError(msgInvalidToken)
		}
		return nil, err
	}
	acct, err := a.repo.lookupByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct == nil || !acct.IsActive {
		authFailures.With("method", "bearer").Add(1)
		return nil, unauthorizedError(msgInvalidToken)
	}
	authSuccesses.With("method", "bearer").Add(1)
	return acct, nil
}

func (a *authenticator) basic(ctx context.Context, email, pass string) (*Account, error) {
	acct, err := a.repo.lookupByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if acct == nil || comparePassword(acct, pass) != nil {
		authFailures.With("method", "basic").Add(1)
		return nil, unauthorizedError(msgBadCredentials)
	}
	if !acct.IsActive {
		authFailures.With("method", "basic").Add(1)
		return nil, unauthorizedError(msgInactiveAccount)
	}
	authSuccesses.With("method", "basic").Add(1)
	return acct, nil
}

// required only calls next for authenticated requests, the caller is
// available through accountFromContext.
func (a *authenticator) required(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, err := a.authenticate(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
			encodeError(w, r, a.logger, err, "auth")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), accountKey{}, acct)))
	}
}
