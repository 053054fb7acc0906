// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
)

func TestDatabase__sqliteDSN(t *testing.T) {
	cases := []struct {
		path, want string
	}{
		{"forge.db", "forge.db?_foreign_keys=on"},
		{"file:forge.db?cache=shared", "file:forge.db?cache=shared&_foreign_keys=on"},
	}
	for i := range cases {
		if got := sqliteDSN(cases[i].path); got != cases[i].want {
			t.Errorf("path=%q got %q", cases[i].path, got)
		}
	}
}

func TestDatabase__open(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forge.db")
	db, prom, err := openDatabase(log.NewNopLogger(), DatabaseConfig{Driver: "sqlite", SqlitePath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer prom.stop()
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	if err := migrate(log.NewNopLogger(), db); err != nil {
		t.Fatal(err)
	}
	// migrations are idempotent
	if err := migrate(log.NewNopLogger(), db); err != nil {
		t.Fatal(err)
	}
	for _, table := range []string{"accounts", "profiles"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("missing table %s", table)
		}
	}
	if !db.Migrator().HasIndex(&Account{}, "OTPCode") {
		t.Error("missing otp_code index")
	}
}

func TestDatabase__metricCollector(t *testing.T) {
	db := testDB(t)
	sqlDB, _ := db.DB()

	prom := &promMetricCollector{interval: time.Millisecond, done: make(chan struct{})}
	finished := make(chan struct{})
	go func() {
		prom.run(sqlDB)
		close(finished)
	}()
	time.Sleep(5 * time.Millisecond)
	prom.stop()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("collector didn't stop")
	}

	// nil collectors and databases are fine
	var nilProm *promMetricCollector
	nilProm.stop()
	prom.run(nil)
}
