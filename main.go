// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moov-io/forge/admin"
	"github.com/moov-io/forge/pkg/notify"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

var (
	httpAddr  = flag.String("http.addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	adminAddr = flag.String("admin.addr", "", "Admin HTTP listen address (overrides ADMIN_ADDR)")

	migrateOnly       = flag.Bool("migrate-only", false, "Run database migrations and exit")
	superuserEmail    = flag.String("superuser.email", "", "Create a superuser with this email and exit")
	superuserPassword = flag.String("superuser.password", "", "Password of the superuser created with -superuser.email")

	// Metrics
	authSuccesses = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_successes",
		Help: "Count of successful authorizations",
	}, []string{"method"})
	authFailures = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_failures",
		Help: "Count of failed authorizations",
	}, []string{"method"})
	authInactivations = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_inactivations",
		Help: "Count of revoked access tokens",
	}, []string{"method"})

	tokenGenerations = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_token_generations",
		Help: "Count of auth tokens created",
	}, []string{"method"})

	accountRegistrations = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "account_registrations",
		Help: "Count of accounts created",
	}, []string{"method"})
	otpDeliveries = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "otp_deliveries",
		Help: "Count of OTP codes sent and whether the transport accepted them",
	}, []string{"channel", "status"})

	internalServerErrors = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "http_internal_errors",
		Help: "Count of how many 5xx errors we send out",
	}, nil)
)

const Version = "0.1.0-dev"

func main() {
	flag.Parse()

	// Setup logging, default to stderr
	var logger log.Logger
	logger = log.NewLogfmtLogger(os.Stderr)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)
	logger.Log("startup", fmt.Sprintf("Starting forge server version %s", Version))

	cfg, err := loadConfig()
	if err != nil {
		logger.Log("config", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *adminAddr != "" {
		cfg.AdminAddr = *adminAddr
	}

	// Setup database
	db, dbMetrics, err := openDatabase(logger, cfg.Database)
	if err != nil {
		os.Exit(1)
	}
	defer dbMetrics.stop()
	if err := migrate(logger, db); err != nil {
		logger.Log("database", err)
		os.Exit(1)
	}
	if *migrateOnly {
		logger.Log("exit", "migrations applied")
		return
	}

	oauth, err := setupOauthServer(logger, cfg.Tokens)
	if err != nil {
		logger.Log("oauth", err)
		os.Exit(1)
	}
	defer oauth.close()

	throttle, err := setupThrottle(cfg.OTP)
	if err != nil {
		logger.Log("throttle", err)
		os.Exit(1)
	}
	defer throttle.close()

	svc, err := setupAccountService(logger, cfg, &gormAccountRepository{db: db}, oauth, throttle)
	if err != nil {
		logger.Log("startup", err)
		os.Exit(1)
	}

	if *superuserEmail != "" {
		if err := createSuperuser(logger, svc, *superuserEmail, *superuserPassword); err != nil {
			logger.Log("superuser", err)
			os.Exit(1)
		}
		return
	}

	// Listen for application termination.
	errs := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errs <- fmt.Errorf("%s", <-c)
	}()

	// Admin server (metrics, liveness, pprof)
	admin.Init()
	adminServer := admin.NewServer(cfg.AdminAddr)
	adminServer.AddLivenessCheck("database", databaseCheck(db))
	if rt, ok := throttle.(*redisThrottle); ok {
		adminServer.AddLivenessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return rt.ping(ctx)
		})
	}
	go func() {
		logger.Log("admin", fmt.Sprintf("Starting admin service on %s", adminServer.BindAddress()))
		if err := adminServer.Listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log("admin", "shutting down", "error", err)
		}
	}()

	auth := &authenticator{repo: svc.repo, tokens: oauth, logger: logger}
	router := newRouter(logger, auth, svc)

	readTimeout, _ := time.ParseDuration("30s")
	writTimeout, _ := time.ParseDuration("30s")
	idleTimeout, _ := time.ParseDuration("60s")

	serve := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: withRequestLogging(logger, router),
		TLSConfig: &tls.Config{
			InsecureSkipVerify: false,
			MinVersion:         tls.VersionTLS12,
		},
		ReadTimeout:  readTimeout,
		WriteTimeout: writTimeout,
		IdleTimeout:  idleTimeout,
	}
	shutdownServer := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := serve.Shutdown(ctx); err != nil {
			logger.Log("shutdown", err)
		}
		if err := adminServer.Shutdown(ctx); err != nil {
			logger.Log("shutdown", err)
		}
	}

	go func() {
		logger.Log("transport", "HTTP", "addr", cfg.HTTPAddr)
		if err := serve.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	if err := <-errs; err != nil {
		shutdownServer()
		logger.Log("exit", err)
	}
}

// setupAccountService builds the notification senders from cfg and the
// service every route calls.
func setupAccountService(logger log.Logger, cfg *Config, repo accountRepository, tokens tokenIssuer, throttle sendThrottle) (*accountService, error) {
	otp, err := newOTPGenerator(cfg.OTP.Length)
	if err != nil {
		return nil, err
	}

	var email notify.Sender
	switch cfg.Email.Backend {
	case "smtp":
		email = notify.NewSMTPSender(cfg.Email.Host, cfg.Email.Port, cfg.Email.Username, cfg.Email.Password, cfg.Email.From)
	default:
		email = &notify.ConsoleSender{Channel: "email", Logger: logger}
	}

	var sms notify.Sender
	switch cfg.SMS.Backend {
	case "africastalking":
		client := &http.Client{Timeout: 15 * time.Second}
		sms = notify.NewAfricasTalkingSender(client, cfg.SMS.Username, cfg.SMS.APIKey, cfg.SMS.Sender, cfg.SMS.URL)
	default:
		sms = &notify.ConsoleSender{Channel: "sms", Logger: logger}
	}
	logger.Log("notify", fmt.Sprintf("email backend %s, sms backend %s", cfg.Email.Backend, cfg.SMS.Backend))

	return &accountService{
		repo:             repo,
		otp:              otp,
		email:            email,
		sms:              sms,
		tokens:           tokens,
		throttle:         throttle,
		logger:           logger,
		phoneEmailDomain: cfg.PhoneEmailDomain,
	}, nil
}

func createSuperuser(logger log.Logger, svc *accountService, email, pass string) error {
	creds := struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,min=8,max=128"`
	}{Email: email, Password: pass}
	if err := validateRequest(&creds); err != nil {
		return fmt.Errorf("superuser: %v", err)
	}
	acct, err := svc.createSuperuser(context.Background(), creds.Email, creds.Password)
	if err != nil {
		return err
	}
	logger.Log("superuser", fmt.Sprintf("created superuser %s (id=%d)", acct.Email, acct.ID))
	return nil
}

func databaseCheck(db *gorm.DB) func() error {
	return func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return sqlDB.PingContext(ctx)
	}
}
