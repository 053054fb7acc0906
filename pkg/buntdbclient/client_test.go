// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package buntdbclient

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/oauth2.v3/models"
)

var (
	flagDebug = flag.Bool("debug", false, "Create db inside project dir for tests")
)

func makeCS(t *testing.T) *ClientStore {
	t.Helper()

	filename := "client_test.db"
	if *flagDebug {
		os.Remove(filename)
	} else {
		filename = filepath.Join(t.TempDir(), filename)
	}
	cs, err := New(filename)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func TestClientStore(t *testing.T) {
	cs := makeCS(t)
	id := "forge"

	// get nothing
	cli, err := cs.GetByID(id)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("got %#v", err)
	}
	if cli.GetID() != "" {
		t.Errorf("got %#v", cli)
	}

	// set something
	err = cs.Set(id, &models.Client{
		ID:     id,
		Secret: "secret",
		Domain: "domain",
		UserID: "userId",
	})
	if err != nil {
		t.Errorf("got %v", err)
	}

	// get something
	cli, err = cs.GetByID(id)
	if err != nil {
		t.Fatalf("got %v", err)
	}
	if cli.GetID() != id {
		t.Errorf("got %s", cli.GetID())
	}
	if cli.GetSecret() != "secret" {
		t.Errorf("got %s", cli.GetSecret())
	}
	if cli.GetDomain() != "domain" {
		t.Errorf("got %s", cli.GetDomain())
	}
	if cli.GetUserID() != "userId" {
		t.Errorf("got %s", cli.GetUserID())
	}
}

func TestClientStore__mismatchedID(t *testing.T) {
	cs := makeCS(t)
	err := cs.Set("forge", &models.Client{ID: "other"})
	if err == nil || !strings.Contains(err.Error(), "don't match") {
		t.Errorf("got %v", err)
	}
}
