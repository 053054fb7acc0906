// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/moov-io/forge/pkg/notify"
)

const (
	msgUnique            = "This field must be unique."
	msgOTPNotFound       = "OTP code entered does not exist."
	msgEmailNotFound     = "Email entered does not exist."
	msgPhoneTaken        = "User with Phonenumber entered already exist."
	msgPhoneNotFound     = "User with Phonenumber entered does not exist."
	msgPasswordMismatch  = "Password fields didn't match."
	msgWrongOldPassword  = "Incorrect old password set"
	msgNoActiveAccount   = "No active account found with the given credentials"
	msgRefreshInvalid    = "Token is invalid or expired"
	msgProfileNotFound   = "No Profile Service object found with id %v"
	msgNoProfileForOwner = "No Profile Service object found for this user"
	msgAccountNotFound   = "No User matches the given query."

	otpEmailSubject      = "Confirmation OTP"
	passwordAlertSubject = "Password Change Alert"
)

// otpAttempts is how many codes we draw looking for one no other account
// holds. Codes aren't guaranteed unique, this only makes collisions rare.
const otpAttempts = 5

// accountService holds the account use cases, every route calls into it.
type accountService struct {
	repo     accountRepository
	otp      *otpGenerator
	email    notify.Sender
	sms      notify.Sender
	tokens   tokenIssuer
	throttle sendThrottle
	logger   log.Logger

	phoneEmailDomain string
}

func (s *accountService) newOTP(ctx context.Context) (int, error) {
	var code int
	for i := 0; i < otpAttempts; i++ {
		c, err := s.otp.generate()
		if err != nil {
			return 0, err
		}
		code = c
		used, err := s.repo.otpInUse(ctx, code)
		if err != nil {
			return 0, fmt.Errorf("problem checking otp: %v", err)
		}
		if !used {
			break
		}
	}
	return code, nil
}

// registerEmail creates an account for email, its profile and sends the
// account an OTP by email.
func (s *accountService) registerEmail(ctx context.Context, email string) (*Account, error) {
	existing, err := s.repo.lookupByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fieldError("email", msgUnique)
	}

	code, err := s.newOTP(ctx)
	if err != nil {
		return nil, err
	}
	acct := &Account{
		Email:    email,
		Gender:   GenderNone,
		OTPCode:  code,
		IsActive: true,
	}
	if err := s.repo.create(ctx, acct); err != nil {
		if errors.Is(err, errDuplicateAccount) {
			return nil, fieldError("email", msgUnique)
		}
		return nil, err
	}
	accountRegistrations.With("method", "email").Add(1)

	s.welcome(ctx, acct)
	return acct, nil
}

// registerPhone creates an account identified by phone and texts it an
// OTP. delivered is false when the SMS couldn't be sent, the account is
// created regardless.
func (s *accountService) registerPhone(ctx context.Context, phone string) (acct *Account, delivered bool, err error) {
	existing, err := s.repo.lookupByPhone(ctx, phone)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return nil, false, fieldError("phone_number", msgPhoneTaken)
	}

	code, err := s.newOTP(ctx)
	if err != nil {
		return nil, false, err
	}
	acct = &Account{
		Email:                fmt.Sprintf("%s@%s", phone, s.phoneEmailDomain),
		PhoneNumber:          &phone,
		Gender:               GenderNone,
		OTPCode:              code,
		PhoneOTPRegistration: true,
		IsActive:             true,
	}
	if err := s.repo.create(ctx, acct); err != nil {
		if errors.Is(err, errDuplicateAccount) {
			return nil, false, fieldError("phone_number", msgPhoneTaken)
		}
		return nil, false, err
	}
	accountRegistrations.With("method", "phone").Add(1)

	s.welcome(ctx, acct)
	return acct, s.sendPhoneOTP(ctx, acct) == nil, nil
}

// welcome runs after every account creation. Accounts registered by phone
// get their OTP over SMS instead and superusers get nothing.
func (s *accountService) welcome(ctx context.Context, acct *Account) {
	if acct.PhoneOTPRegistration || acct.IsSuperuser {
		return
	}
	s.sendEmailOTP(ctx, acct)
}

// confirmOTP checks some account holds code. The code stays active.
func (s *accountService) confirmOTP(ctx context.Context, code int) error {
	acct, err := s.repo.lookupByOTP(ctx, code)
	if err != nil {
		return err
	}
	if acct == nil {
		return fieldError("otp_code", msgOTPNotFound)
	}
	return nil
}

func (s *accountService) resendEmailOTP(ctx context.Context, email string) error {
	acct, err := s.repo.lookupByEmail(ctx, email)
	if err != nil {
		return err
	}
	if acct == nil {
		return fieldError("email", msgEmailNotFound)
	}
	if err := s.reserve(ctx, "email:"+acct.Email); err != nil {
		return err
	}
	if err := s.rotateOTP(ctx, acct); err != nil {
		return err
	}
	s.sendEmailOTP(ctx, acct)
	return nil
}

// resendPhoneOTP replaces the account's OTP and texts it. The returned
// account is non-nil whenever a new code was stored, even if sending
// failed (sent is false then).
func (s *accountService) resendPhoneOTP(ctx context.Context, phone string) (acct *Account, sent bool, err error) {
	acct, err = s.repo.lookupByPhone(ctx, phone)
	if err != nil {
		return nil, false, err
	}
	if acct == nil {
		return nil, false, fieldError("phone_number", msgPhoneNotFound)
	}
	if err := s.reserve(ctx, "phone:"+phone); err != nil {
		return nil, false, err
	}
	if err := s.rotateOTP(ctx, acct); err != nil {
		return nil, false, err
	}
	return acct, s.sendPhoneOTP(ctx, acct) == nil, nil
}

func (s *accountService) rotateOTP(ctx context.Context, acct *Account) error {
	code, err := s.newOTP(ctx)
	if err != nil {
		return err
	}
	return s.repo.setOTP(ctx, acct, code)
}

func (s *accountService) reserve(ctx context.Context, recipient string) error {
	ok, wait, err := s.throttle.reserve(ctx, recipient)
	if err != nil {
		return err
	}
	if !ok {
		secs := int(math.Ceil(wait.Seconds()))
		return throttledError(fmt.Sprintf("Request was throttled. Expected available in %d seconds.", secs))
	}
	return nil
}

// setPassword consumes the OTP code, stores pass and signs the account in.
func (s *accountService) setPassword(ctx context.Context, code int, pass string) (*Account, *tokenPair, error) {
	acct, err := s.repo.lookupByOTP(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if acct == nil {
		return nil, nil, fieldError("otp_code", msgOTPNotFound)
	}
	hash, err := hashPassword(pass)
	if err != nil {
		return nil, nil, err
	}
	acct.Password = hash
	acct.OTPCode = 0
	if err := s.repo.update(ctx, acct, "password", "otp_code"); err != nil {
		return nil, nil, fmt.Errorf("problem setting password for account %d: %v", acct.ID, err)
	}
	tokens, err := s.tokens.issue(acct)
	if err != nil {
		return nil, nil, err
	}
	return acct, tokens, nil
}

// changePassword replaces acct's password after re-checking the old one,
// then alerts the account's email.
func (s *accountService) changePassword(ctx context.Context, acct *Account, old, pass string) error {
	if err := comparePassword(acct, old); err != nil {
		authFailures.With("method", "password").Add(1)
		return authenticationError(msgWrongOldPassword)
	}
	hash, err := hashPassword(pass)
	if err != nil {
		return err
	}
	acct.Password = hash
	if err := s.repo.update(ctx, acct, "password"); err != nil {
		return fmt.Errorf("problem changing password for account %d: %v", acct.ID, err)
	}

	err = send(ctx, s.email, notify.Message{
		Subject: passwordAlertSubject,
		Body:    "Your account password has just been changed. If you didn't make this change, reset your password right away.",
		To:      []string{acct.Email},
	})
	if err != nil {
		s.logger.Log("password", fmt.Sprintf("problem sending password alert to account %d", acct.ID), "error", err)
	}
	return nil
}

// updateAccount saves columns of updated, the patched copy of current.
func (s *accountService) updateAccount(ctx context.Context, current, updated *Account, columns []string) (*Account, error) {
	errs := make(fieldErrors)
	if updated.Email != current.Email {
		other, err := s.repo.lookupByEmail(ctx, updated.Email)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != current.ID {
			errs.add("email", msgUnique)
		}
	}
	if updated.PhoneNumber != nil && (current.PhoneNumber == nil || *updated.PhoneNumber != *current.PhoneNumber) {
		other, err := s.repo.lookupByPhone(ctx, *updated.PhoneNumber)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != current.ID {
			errs.add("phone_number", msgUnique)
		}
	}
	if !errs.empty() {
		return nil, validationError(errs)
	}

	if err := s.repo.update(ctx, updated, columns...); err != nil {
		if errors.Is(err, errDuplicateAccount) {
			return nil, fieldError(nonFieldErrors, "An account with this email or phone number already exists.")
		}
		if errors.Is(err, errAccountNotFound) {
			return nil, notFoundError(msgAccountNotFound)
		}
		return nil, fmt.Errorf("problem updating account %d: %v", current.ID, err)
	}
	return updated, nil
}

func (s *accountService) deleteAccount(ctx context.Context, acct *Account) error {
	if err := s.repo.delete(ctx, acct.ID); err != nil {
		return fmt.Errorf("problem deleting account %d: %v", acct.ID, err)
	}
	return nil
}

func (s *accountService) profile(ctx context.Context, acct *Account) (*Profile, error) {
	p, err := s.repo.profileByAccount(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, notFoundError(msgNoProfileForOwner)
	}
	return p, nil
}

// modifyProfile patches the profile with id. Any authenticated account can
// modify any profile.
func (s *accountService) modifyProfile(ctx context.Context, id uint, patch func(*Profile)) (*Profile, error) {
	p, err := s.repo.profileByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, notFoundError(fmt.Sprintf(msgProfileNotFound, id))
	}
	patch(p)
	if err := s.repo.updateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("problem updating profile %d: %v", id, err)
	}
	return p, nil
}

func (s *accountService) emailExists(ctx context.Context, email string) (bool, error) {
	acct, err := s.repo.lookupByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return acct != nil, nil
}

// login signs an account in with its email and password.
func (s *accountService) login(ctx context.Context, email, pass string) (*tokenPair, error) {
	acct, err := s.repo.lookupByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if acct == nil || !acct.IsActive || comparePassword(acct, pass) != nil {
		authFailures.With("method", "password").Add(1)
		return nil, authenticationError(msgNoActiveAccount)
	}
	authSuccesses.With("method", "password").Add(1)
	return s.tokens.issue(acct)
}

// refresh trades a refresh token for a new pair as long as its account is
// still active.
func (s *accountService) refresh(ctx context.Context, token string) (*tokenPair, error) {
	pair, err := s.tokens.refresh(token)
	if err != nil {
		if errors.Is(err, errInvalidToken) {
			return nil, unauthorizedError(msgRefreshInvalid)
		}
		return nil, err
	}
	id, err := s.tokens.lookup(pair.Access)
	if err != nil {
		return nil, err
	}
	acct, err := s.repo.lookupByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct == nil || !acct.IsActive {
		return nil, unauthorizedError(msgRefreshInvalid)
	}
	return pair, nil
}

// logout revokes an access token of acct.
func (s *accountService) logout(acct *Account, accessToken string) error {
	if err := s.tokens.revoke(accessToken); err != nil {
		return fmt.Errorf("problem revoking token of account %d: %v", acct.ID, err)
	}
	authInactivations.With("method", "bearer").Add(1)
	return nil
}

// createSuperuser adds an admin account that can log in right away.
func (s *accountService) createSuperuser(ctx context.Context, email, pass string) (*Account, error) {
	hash, err := hashPassword(pass)
	if err != nil {
		return nil, err
	}
	acct := &Account{
		Email:       email,
		Password:    hash,
		Gender:      GenderNone,
		IsAdmin:     true,
		IsSuperuser: true,
		IsActive:    true,
	}
	if err := s.repo.create(ctx, acct); err != nil {
		return nil, err
	}
	accountRegistrations.With("method", "superuser").Add(1)
	s.welcome(ctx, acct)
	return acct, nil
}

// sendEmailOTP mails the account its OTP. Failures are logged, never
// returned.
func (s *accountService) sendEmailOTP(ctx context.Context, acct *Account) {
	err := send(ctx, s.email, notify.Message{
		Subject: otpEmailSubject,
		Body:    fmt.Sprintf("Your account confirmation OTP code is: %d", acct.OTPCode),
		To:      []string{acct.Email},
	})
	s.delivered("email", acct, err)
}

func (s *accountService) sendPhoneOTP(ctx context.Context, acct *Account) error {
	if acct.PhoneNumber == nil {
		return notify.ErrNoRecipients
	}
	err := send(ctx, s.sms, notify.Message{
		Body: fmt.Sprintf("Your Account Confirmation OTP code is: %d", acct.OTPCode),
		To:   []string{*acct.PhoneNumber},
	})
	s.delivered("sms", acct, err)
	return err
}

func (s *accountService) delivered(channel string, acct *Account, err error) {
	if err != nil {
		otpDeliveries.With("channel", channel, "status", "failed").Add(1)
		s.logger.Log("otp", fmt.Sprintf("problem sending %s otp to account %d", channel, acct.ID), "error", err)
		return
	}
	otpDeliveries.With("channel", channel, "status", "sent").Add(1)
}

// sendTimeout bounds each notification call.
const sendTimeout = 30 * time.Second

func send(ctx context.Context, sender notify.Sender, msg notify.Message) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return sender.Send(ctx, msg)
}
