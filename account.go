// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Gender string

const (
	GenderNone   Gender = "None"
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// Account is a registered user. Email is the login identifier, accounts
// registered by phone get a synthesized "<phone>@<domain>" email.
//
// OTPCode holds the outstanding one-time passcode, 0 means none is active.
type Account struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	Image    *string `gorm:"size:255" json:"image"`
	Email    string  `gorm:"uniqueIndex;size:254;not null" json:"email"`
	Password string  `gorm:"size:128" json:"-"`

	FullName    *string `gorm:"size:15" json:"full_name"`
	PhoneNumber *string `gorm:"uniqueIndex;size:16" json:"phone_number"`
	DeviceID    *string `gorm:"size:255" json:"device_id"`
	Gender      Gender  `gorm:"size:6;not null;default:None" json:"gender"`
	Age         int     `gorm:"not null;default:0" json:"age"`

	OTPCode              int  `gorm:"column:otp_code;index;not null;default:0" json:"otp_code"`
	PhoneOTPRegistration bool `gorm:"not null;default:false" json:"phone_otp_registration"`

	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	FormattedAddress *string  `gorm:"size:255" json:"formatted_address"`

	IsAdmin     bool `gorm:"not null;default:false" json:"is_admin"`
	IsSuperuser bool `gorm:"not null;default:false" json:"is_superuser"`
	IsActive    bool `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"column:creation_time;autoCreateTime" json:"creation_time"`
	UpdatedAt time.Time `gorm:"column:last_updated_time;autoUpdateTime" json:"last_updated_time"`
}

func (a *Account) hasPassword() bool {
	return a != nil && a.Password != ""
}

// Profile is the auxiliary record every Account owns exactly one of.
type Profile struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	AccountID uint     `gorm:"uniqueIndex;not null" json:"-"`
	Account   *Account `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Document  *string  `gorm:"size:255" json:"document"`

	CreatedAt time.Time `gorm:"column:creation_time;autoCreateTime" json:"creation_time"`
	UpdatedAt time.Time `gorm:"column:last_updated_time;autoUpdateTime" json:"last_updated_time"`
}

var (
	errDuplicateAccount = errors.New("account already exists")
	errAccountNotFound  = errors.New("account not found")
)

// accountRepository persists accounts and their profiles.
//
// Lookups return nil, nil when nothing matches.
type accountRepository interface {
	// create inserts the account and its profile together.
	// errDuplicateAccount is returned when the email or phone number is taken.
	create(ctx context.Context, acct *Account) error

	lookupByID(ctx context.Context, id uint) (*Account, error)
	lookupByEmail(ctx context.Context, email string) (*Account, error)
	lookupByPhone(ctx context.Context, phone string) (*Account, error)

	// lookupByOTP finds the account holding code as its outstanding OTP.
	// A code of 0 never matches.
	lookupByOTP(ctx context.Context, code int) (*Account, error)

	// otpInUse reports if any account currently holds code.
	otpInUse(ctx context.Context, code int) (bool, error)

	// update writes only the named columns of acct, the rest of the
	// stored row is left as is. errAccountNotFound is returned when the
	// account no longer exists.
	update(ctx context.Context, acct *Account, columns ...string) error
	setOTP(ctx context.Context, acct *Account, code int) error

	// delete removes the account along with its profile.
	delete(ctx context.Context, id uint) error

	profileByAccount(ctx context.Context, accountID uint) (*Profile, error)
	profileByID(ctx context.Context, id uint) (*Profile, error)
	// updateProfile writes the profile's document.
	updateProfile(ctx context.Context, p *Profile) error
}

type gormAccountRepository struct {
	db *gorm.DB
}

func (r *gormAccountRepository) create(ctx context.Context, acct *Account) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(acct).Error; err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(&Profile{AccountID: acct.ID}).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errDuplicateAccount
	}
	if err != nil {
		return fmt.Errorf("problem creating account %s: %w", acct.Email, err)
	}
	return nil
}

func (r *gormAccountRepository) lookup(ctx context.Context, query string, args ...interface{}) (*Account, error) {
	var acct Account
	err := r.db.WithContext(ctx).Where(query, args...).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (r *gormAccountRepository) lookupByID(ctx context.Context, id uint) (*Account, error) {
	return r.lookup(ctx, "id = ?", id)
}

func (r *gormAccountRepository) lookupByEmail(ctx context.Context, email string) (*Account, error) {
	return r.lookup(ctx, "email = ?", email)
}

func (r *gormAccountRepository) lookupByPhone(ctx context.Context, phone string) (*Account, error) {
	return r.lookup(ctx, "phone_number = ?", phone)
}

func (r *gormAccountRepository) lookupByOTP(ctx context.Context, code int) (*Account, error) {
	if code == 0 {
		return nil, nil
	}
	return r.lookup(ctx, "otp_code = ?", code)
}

func (r *gormAccountRepository) otpInUse(ctx context.Context, code int) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Account{}).Where("otp_code = ?", code).Count(&n).Error
	return n > 0, err
}

func (r *gormAccountRepository) update(ctx context.Context, acct *Account, columns ...string) error {
	if len(columns) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(acct).Select(columns).Updates(acct)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return errDuplicateAccount
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errAccountNotFound
	}
	return nil
}

func (r *gormAccountRepository) setOTP(ctx context.Context, acct *Account, code int) error {
	if err := r.db.WithContext(ctx).Model(acct).Update("otp_code", code).Error; err != nil {
		return fmt.Errorf("problem setting otp for account %d: %w", acct.ID, err)
	}
	acct.OTPCode = code
	return nil
}

func (r *gormAccountRepository) delete(ctx context.Context, id uint) error {
	// The foreign key cascades too, but SQLite only honors it with
	// foreign_keys enabled on the connection.
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&Profile{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Account{}, id).Error
	})
}

func (r *gormAccountRepository) profile(ctx context.Context, query string, args ...interface{}) (*Profile, error) {
	var p Profile
	err := r.db.WithContext(ctx).Preload("Account").Where(query, args...).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormAccountRepository) profileByAccount(ctx context.Context, accountID uint) (*Profile, error) {
	return r.profile(ctx, "account_id = ?", accountID)
}

func (r *gormAccountRepository) profileByID(ctx context.Context, id uint) (*Profile, error) {
	return r.profile(ctx, "id = ?", id)
}

func (r *gormAccountRepository) updateProfile(ctx context.Context, p *Profile) error {
	res := r.db.WithContext(ctx).Model(p).Select("document").Updates(p)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errAccountNotFound
	}
	return nil
}
