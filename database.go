// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	kitprom "github.com/go-kit/kit/metrics/prometheus"
	stdprom "github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// migrations holds every model we auto-migrate (in order)
	migrations = []interface{}{
		&Account{},
		&Profile{},
	}

	// Metrics
	connections = kitprom.NewGaugeFrom(stdprom.GaugeOpts{
		Name: "database_connections",
		Help: "How many database connections and what status they're in.",
	}, []string{"state"})
)

type promMetricCollector struct {
	interval time.Duration
	done     chan struct{}
}

func (p *promMetricCollector) run(db *sql.DB) {
	if db == nil {
		return
	}
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		stats := db.Stats()
		connections.With("state", "idle").Set(float64(stats.Idle))
		connections.With("state", "inuse").Set(float64(stats.InUse))
		connections.With("state", "open").Set(float64(stats.OpenConnections))

		select {
		case <-t.C:
		case <-p.done:
			return
		}
	}
}

func (p *promMetricCollector) stop() {
	if p != nil && p.done != nil {
		close(p.done)
	}
}

// sqliteDSN enables foreign keys on every connection so profile rows
// cascade with their account.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&_foreign_keys=on"
	}
	return path + "?_foreign_keys=on"
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	}
}

// openDatabase connects to the configured driver. The returned collector
// publishes connection pool stats until stopped.
func openDatabase(logger log.Logger, cfg DatabaseConfig) (*gorm.DB, *promMetricCollector, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		dialector = sqlite.Open(sqliteDSN(cfg.SqlitePath))
	}

	db, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		err = fmt.Errorf("problem opening %s database: %v", cfg.Driver, err)
		logger.Log("database", err)
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("problem reading %s connection pool: %v", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		// sqlite only allows one writer at a time
		sqlDB.SetMaxOpenConns(1)
	}

	prom := &promMetricCollector{interval: 10 * time.Second, done: make(chan struct{})}
	go prom.run(sqlDB)

	logger.Log("database", fmt.Sprintf("connected to %s database", cfg.Driver))
	return db, prom, nil
}

// migrate runs our model migrations (defined at the top of this file).
func migrate(logger log.Logger, db *gorm.DB) error {
	for i := range migrations {
		name := fmt.Sprintf("%T", migrations[i])
		if err := db.AutoMigrate(migrations[i]); err != nil {
			return fmt.Errorf("migration #%d [%s] had problem: %v", i, name, err)
		}
		logger.Log("database", fmt.Sprintf("migration #%d [%s] applied", i, name))
	}
	logger.Log("database", "finished migrations")
	return nil
}
