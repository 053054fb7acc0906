// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds everything the server reads from its environment.
//
// A .env file in the working directory is loaded first (if present), but
// variables already set in the environment always win.
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	AdminAddr string `env:"ADMIN_ADDR" envDefault:":9090"`

	Database DatabaseConfig
	Tokens   TokenConfig
	Email    EmailConfig
	SMS      SMSConfig
	OTP      OTPConfig

	// PhoneEmailDomain is appended to phone numbers to synthesize the
	// unique email of accounts registered by phone.
	PhoneEmailDomain string `env:"PHONE_EMAIL_DOMAIN" envDefault:"forge.com"`
}

type DatabaseConfig struct {
	Driver     string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	SqlitePath string `env:"SQLITE_DB_PATH" envDefault:"forge.db"`
	DSN        string `env:"DATABASE_DSN"`
}

type TokenConfig struct {
	Secret     string        `env:"JWT_SECRET"`
	AccessTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"168h"`
	RefreshTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"480h"`

	ClientID     string `env:"OAUTH2_CLIENT_ID" envDefault:"forge"`
	ClientSecret string `env:"OAUTH2_CLIENT_SECRET" envDefault:"forge-secret"`

	// BuntDB paths, ":memory:" keeps everything in process.
	TokenDBPath  string `env:"TOKEN_DB_PATH" envDefault:":memory:"`
	ClientDBPath string `env:"CLIENT_DB_PATH" envDefault:":memory:"`
}

type EmailConfig struct {
	Backend  string `env:"EMAIL_BACKEND" envDefault:"console"`
	Host     string `env:"EMAIL_HOST"`
	Port     int    `env:"EMAIL_PORT" envDefault:"587"`
	Username string `env:"EMAIL_HOST_USER"`
	Password string `env:"EMAIL_HOST_PASSWORD"`
	From     string `env:"DEFAULT_FROM_EMAIL" envDefault:"support@forge.com"`
}

type SMSConfig struct {
	Backend  string `env:"SMS_BACKEND" envDefault:"console"`
	Username string `env:"AFRICAS_TALKING_USERNAME" envDefault:"glitex"`
	APIKey   string `env:"AFRICAS_TALKING_API_KEY"`
	Sender   string `env:"AFRICAS_TALKING_SENDER" envDefault:"Glitex"`
	URL      string `env:"AFRICAS_TALKING_URL" envDefault:"https://api.africastalking.com/version1/messaging"`
}

type OTPConfig struct {
	Length         int           `env:"OTP_LENGTH" envDefault:"6"`
	ResendCooldown time.Duration `env:"OTP_RESEND_COOLDOWN" envDefault:"0s"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
}

const devTokenSecret = "forge-development-secret"

// loadConfig reads an optional .env file and parses the environment.
func loadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("problem reading .env: %w", err)
	}
	return parseConfig()
}

func parseConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("problem parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.SqlitePath == "" || strings.Contains(cfg.Database.SqlitePath, "..") {
			// set default if empty or trying to escape
			cfg.Database.SqlitePath = "forge.db"
		}
	case "postgres":
		if cfg.Database.DSN == "" {
			return errors.New("DATABASE_DSN is required with the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", cfg.Database.Driver)
	}

	switch cfg.Email.Backend {
	case "console":
	case "smtp":
		if cfg.Email.Host == "" {
			return errors.New("EMAIL_HOST is required with the smtp email backend")
		}
	default:
		return fmt.Errorf("unknown EMAIL_BACKEND %q", cfg.Email.Backend)
	}

	switch cfg.SMS.Backend {
	case "console":
	case "africastalking":
		if cfg.SMS.APIKey == "" {
			return errors.New("AFRICAS_TALKING_API_KEY is required with the africastalking sms backend")
		}
	default:
		return fmt.Errorf("unknown SMS_BACKEND %q", cfg.SMS.Backend)
	}

	if cfg.OTP.Length < minOTPLength || cfg.OTP.Length > maxOTPLength {
		return fmt.Errorf("OTP_LENGTH must be between %d and %d, got %d", minOTPLength, maxOTPLength, cfg.OTP.Length)
	}
	if cfg.OTP.ResendCooldown < 0 {
		return fmt.Errorf("OTP_RESEND_COOLDOWN can't be negative, got %v", cfg.OTP.ResendCooldown)
	}
	if cfg.Tokens.AccessTTL <= 0 || cfg.Tokens.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if cfg.Tokens.Secret == "" {
		cfg.Tokens.Secret = devTokenSecret
	}
	return nil
}
