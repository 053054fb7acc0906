// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestRegister__email(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "POST", "/register/", map[string]string{"email": "a@x.com"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}
	var resp registerResponse
	decode(t, w, &resp)
	if resp.Message != "User created successfully" {
		t.Errorf("message=%q", resp.Message)
	}
	if resp.OTP <= 0 {
		t.Errorf("otp=%d", resp.OTP)
	}

	acct, err := ts.repo.lookupByEmail(context.Background(), "a@x.com")
	if err != nil || acct == nil {
		t.Fatalf("acct=%v err=%v", acct, err)
	}
	if acct.OTPCode != resp.OTP {
		t.Errorf("stored otp %d, returned %d", acct.OTPCode, resp.OTP)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}
}

func TestRegister__emailDuplicate(t *testing.T) {
	ts := newTestServer(t)

	if w := ts.do(t, "POST", "/register/", map[string]string{"email": "a@x.com"}, ""); w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	w := ts.do(t, "POST", "/register/", map[string]string{"email": "a@x.com"}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d", w.Code)
	}
	var resp errorResponse
	decode(t, w, &resp)
	if resp.Kind != kindValidation || len(resp.Errors["email"]) != 1 {
		t.Errorf("unexpected error: %#v", resp)
	}
	if resp.Message == "" {
		t.Error("every response carries a message")
	}
}

func TestRegister__emailInvalid(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		body  string
		field string
	}{
		{`{}`, "email"},
		{``, "email"},
		{`{"email": null}`, "email"},
		{`{"email": ""}`, "email"},
		{`{"email": "not-an-email"}`, "email"},
		{`{"email": 12}`, "email"},
	}
	for i := range cases {
		req := strings.NewReader(cases[i].body)
		w := ts.doRaw(t, "POST", "/register/", req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body=%q got %d", cases[i].body, w.Code)
			continue
		}
		var resp errorResponse
		decode(t, w, &resp)
		if !resp.Errors.has(cases[i].field) {
			t.Errorf("body=%q missing %s error: %#v", cases[i].body, cases[i].field, resp)
		}
	}

	w := ts.doRaw(t, "POST", "/register/", strings.NewReader(`{"email":`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json: got %d", w.Code)
	}
}

func TestRegister__phone(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "POST", "/register/phonenumber/", map[string]string{"phone_number": "+254712345678"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}
	var resp phoneRegisterResponse
	decode(t, w, &resp)
	if resp.Message != "OTP sent to provided Phonenumber" || !resp.Delivered || resp.OTP <= 0 {
		t.Errorf("unexpected response: %#v", resp)
	}

	acct, _ := ts.repo.lookupByPhone(context.Background(), "+254712345678")
	if acct == nil || acct.Email != "+254712345678@forge.com" {
		t.Fatalf("unexpected account: %#v", acct)
	}

	// second registration of the same number
	w = ts.do(t, "POST", "/register/phonenumber/", map[string]string{"phone_number": "+254712345678"}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d", w.Code)
	}
	var eresp errorResponse
	decode(t, w, &eresp)
	if got := eresp.Errors["phone_number"]; len(got) != 1 || got[0] != "User with Phonenumber entered already exist." {
		t.Errorf("unexpected errors: %#v", eresp.Errors)
	}
}

func TestRegister__phoneUndelivered(t *testing.T) {
	ts := newTestServer(t)
	ts.sms.err = errors.New("bad gateway")

	w := ts.do(t, "POST", "/register/phonenumber/", map[string]string{"phone_number": "+254712345678"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	var resp phoneRegisterResponse
	decode(t, w, &resp)
	if resp.Delivered || resp.OTP <= 0 {
		t.Errorf("unexpected response: %#v", resp)
	}
	if resp.Message != "User created, but error sending OTP, resend OTP to number." {
		t.Errorf("message=%q", resp.Message)
	}
}

func TestRegister__phoneInvalid(t *testing.T) {
	ts := newTestServer(t)

	for _, phone := range []string{"", "254712345678", "+0712345678901", "+2547123456", "+2547123456789012", "+25471234abcd"} {
		w := ts.do(t, "POST", "/register/phonenumber/", map[string]string{"phone_number": phone}, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("phone=%q got %d", phone, w.Code)
		}
	}
	if ts.sms.count() != 0 {
		t.Error("sms sent for invalid numbers")
	}
}

func TestRegister__emailCheck(t *testing.T) {
	ts := newTestServer(t)

	check := func(email string) bool {
		t.Helper()
		w := ts.do(t, "POST", "/email/check/", map[string]string{"email": email}, "")
		if w.Code != http.StatusOK {
			t.Fatalf("got %d", w.Code)
		}
		var resp emailCheckResponse
		decode(t, w, &resp)
		if resp.Message != "Email Confirmed Successfully" {
			t.Errorf("message=%q", resp.Message)
		}
		return resp.Exists
	}

	if check("a@x.com") {
		t.Error("unregistered email exists")
	}
	ts.do(t, "POST", "/register/", map[string]string{"email": "a@x.com"}, "")
	if !check("a@x.com") {
		t.Error("registered email doesn't exist")
	}

	if w := ts.do(t, "POST", "/email/check/", map[string]string{"email": "nope"}, ""); w.Code != http.StatusBadRequest {
		t.Errorf("got %d", w.Code)
	}
}
