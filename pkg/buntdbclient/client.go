// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// buntdbclient implements ClientStore from gopkg.in/oauth2.v3
// using BuntDB (https://github.com/tidwall/buntdb).
//
// The server keeps its own first-party client here: every access/refresh
// token pair it issues is bound to that client.
package buntdbclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/buntdb"
	"gopkg.in/oauth2.v3"
	"gopkg.in/oauth2.v3/models"
)

var (
	// DefaultTTL is the value used as TTL on buntdb.SetOptions,
	// zero keeps clients forever.
	DefaultTTL time.Duration = 0

	ErrNotFound = errors.New("client not found")
)

const keyPrefix = "client:"

// New opens (or creates) the BuntDB file at path, ":memory:" is accepted.
func New(path string) (*ClientStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &ClientStore{
		db: db,
	}, nil
}

type ClientStore struct {
	db *buntdb.DB
}

var _ oauth2.ClientStore = (*ClientStore)(nil)

func (cs *ClientStore) Close() error {
	return cs.db.Close()
}

type record struct {
	Secret string `json:"secret"`
	Domain string `json:"domain"`
	UserID string `json:"user_id"`
}

func decode(id, v string) (*models.Client, error) {
	var rec record
	if err := json.Unmarshal([]byte(v), &rec); err != nil {
		return nil, err
	}
	return &models.Client{
		ID:     id,
		Secret: rec.Secret,
		Domain: rec.Domain,
		UserID: rec.UserID,
	}, nil
}

func (cs *ClientStore) GetByID(id string) (oauth2.ClientInfo, error) {
	var cli *models.Client
	err := cs.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(keyPrefix + id)
		if err != nil {
			if err == buntdb.ErrNotFound {
				return ErrNotFound
			}
			return err
		}
		cli, err = decode(id, v)
		return err
	})
	if err != nil {
		return &models.Client{}, fmt.Errorf("problem reading %s: %v", id, err)
	}
	return cli, nil
}

func (cs *ClientStore) Set(id string, cli oauth2.ClientInfo) error {
	if inc := cli.GetID(); id != inc {
		return fmt.Errorf("ClientStore: id's don't match, id=%s and cli=%s", id, inc)
	}
	bs, err := json.Marshal(record{
		Secret: cli.GetSecret(),
		Domain: cli.GetDomain(),
		UserID: cli.GetUserID(),
	})
	if err != nil {
		return err
	}

	err = cs.db.Update(func(tx *buntdb.Tx) error {
		var opts *buntdb.SetOptions
		if DefaultTTL > 0 {
			opts = &buntdb.SetOptions{Expires: true, TTL: DefaultTTL}
		}
		_, _, err := tx.Set(keyPrefix+id, string(bs), opts)
		return err
	})
	if err != nil {
		return fmt.Errorf("problem updating %s: %v", id, err)
	}
	return nil
}
