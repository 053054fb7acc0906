// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-kit/kit/log"
	"github.com/google/uuid"
	"github.com/moov-io/forge/pkg/buntdbclient"
	"gopkg.in/oauth2.v3"
	oauth2errors "gopkg.in/oauth2.v3/errors"
	"gopkg.in/oauth2.v3/manage"
	"gopkg.in/oauth2.v3/models"
	"gopkg.in/oauth2.v3/store"
)

// tokenPair is what clients receive after authenticating.
type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// tokenIssuer hands out access/refresh pairs for accounts and resolves
// bearer tokens back to an account id.
type tokenIssuer interface {
	issue(acct *Account) (*tokenPair, error)
	refresh(refreshToken string) (*tokenPair, error)

	// lookup returns the account id an access token was issued to.
	lookup(accessToken string) (uint, error)

	// revoke removes an access token (and its refresh token) so neither
	// can be used again.
	revoke(accessToken string) error
}

var errInvalidToken = errors.New("invalid token")

type oauth struct {
	manager     *manage.Manager
	tokenStore  oauth2.TokenStore
	clientStore *buntdbclient.ClientStore

	clientID, clientSecret string

	logger log.Logger
}

func setupOauthServer(logger log.Logger, cfg TokenConfig) (*oauth, error) {
	out := &oauth{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		logger:       logger,
	}

	var err error
	if cfg.TokenDBPath == "" || cfg.TokenDBPath == ":memory:" {
		out.tokenStore, err = store.NewMemoryTokenStore()
	} else {
		out.tokenStore, err = store.NewFileTokenStore(cfg.TokenDBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("problem creating token store: %v", err)
	}

	out.clientStore, err = buntdbclient.New(cfg.ClientDBPath)
	if err != nil {
		return nil, fmt.Errorf("problem creating client store: %v", err)
	}
	err = out.clientStore.Set(cfg.ClientID, &models.Client{
		ID:     cfg.ClientID,
		Secret: cfg.ClientSecret,
		Domain: "http://localhost",
	})
	if err != nil {
		return nil, fmt.Errorf("problem registering client %s: %v", cfg.ClientID, err)
	}

	out.manager = manage.NewDefaultManager()
	out.manager.SetPasswordTokenCfg(&manage.Config{
		AccessTokenExp:    cfg.AccessTTL,
		RefreshTokenExp:   cfg.RefreshTTL,
		IsGenerateRefresh: true,
	})
	out.manager.MapTokenStorage(out.tokenStore)
	out.manager.MapClientStorage(out.clientStore)
	out.manager.MapAccessGenerate(&jwtAccessGenerate{key: []byte(cfg.Secret), method: jwt.SigningMethodHS512})

	return out, nil
}

func (o *oauth) close() error {
	return o.clientStore.Close()
}

func (o *oauth) issue(acct *Account) (*tokenPair, error) {
	ti, err := o.manager.GenerateAccessToken(oauth2.PasswordCredentials, &oauth2.TokenGenerateRequest{
		ClientID:     o.clientID,
		ClientSecret: o.clientSecret,
		UserID:       strconv.FormatUint(uint64(acct.ID), 10),
	})
	if err != nil {
		return nil, fmt.Errorf("problem generating tokens for account %d: %v", acct.ID, err)
	}
	tokenGenerations.With("method", "password").Add(1)
	return &tokenPair{Access: ti.GetAccess(), Refresh: ti.GetRefresh()}, nil
}

// refresh trades a refresh token for a new pair, the old pair is removed.
func (o *oauth) refresh(refreshToken string) (*tokenPair, error) {
	ti, err := o.manager.RefreshAccessToken(&oauth2.TokenGenerateRequest{
		ClientID:     o.clientID,
		ClientSecret: o.clientSecret,
		Refresh:      refreshToken,
	})
	if err != nil {
		if isTokenError(err) {
			return nil, errInvalidToken
		}
		return nil, fmt.Errorf("problem refreshing token: %v", err)
	}
	tokenGenerations.With("method", "refresh").Add(1)
	return &tokenPair{Access: ti.GetAccess(), Refresh: ti.GetRefresh()}, nil
}

func (o *oauth) lookup(accessToken string) (uint, error) {
	ti, err := o.manager.LoadAccessToken(accessToken)
	if err != nil {
		if isTokenError(err) {
			return 0, errInvalidToken
		}
		return 0, err
	}
	if ti.GetClientID() != o.clientID {
		return 0, errInvalidToken
	}
	id, err := strconv.ParseUint(ti.GetUserID(), 10, 64)
	if err != nil {
		return 0, errInvalidToken
	}
	return uint(id), nil
}

func (o *oauth) revoke(accessToken string) error {
	ti, err := o.manager.LoadAccessToken(accessToken)
	if err != nil {
		if isTokenError(err) {
			return errInvalidToken
		}
		return err
	}
	if refresh := ti.GetRefresh(); refresh != "" {
		if err := o.manager.RemoveRefreshToken(refresh); err != nil {
			return err
		}
	}
	return o.manager.RemoveAccessToken(accessToken)
}

func isTokenError(err error) bool {
	switch err {
	case oauth2errors.ErrInvalidAccessToken, oauth2errors.ErrExpiredAccessToken,
		oauth2errors.ErrInvalidRefreshToken, oauth2errors.ErrExpiredRefreshToken:
		return true
	}
	return false
}

// jwtAccessGenerate signs access tokens as JWTs. Every token carries a
// unique id so two pairs issued within the same second never collide
// in the token store.
type jwtAccessGenerate struct {
	key    []byte
	method jwt.SigningMethod
}

type accessClaims struct {
	TokenType string `json:"token_type"`
	jwt.StandardClaims
}

func (g *jwtAccessGenerate) Token(data *oauth2.GenerateBasic, isGenRefresh bool) (string, string, error) {
	ti := data.TokenInfo
	claims := accessClaims{
		TokenType: "access",
		StandardClaims: jwt.StandardClaims{
			Audience:  data.Client.GetID(),
			Subject:   data.UserID,
			Id:        uuid.NewString(),
			IssuedAt:  data.CreateAt.Unix(),
			ExpiresAt: ti.GetAccessCreateAt().Add(ti.GetAccessExpiresIn()).Unix(),
		},
	}
	access, err := jwt.NewWithClaims(g.method, claims).SignedString(g.key)
	if err != nil {
		return "", "", err
	}

	var refresh string
	if isGenRefresh {
		bs := make([]byte, 32)
		if _, err := rand.Read(bs); err != nil {
			return "", "", err
		}
		refresh = base64.RawURLEncoding.EncodeToString(bs)
	}
	return access, refresh, nil
}
