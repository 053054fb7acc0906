// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"net/http"
	"testing"
)

func TestLogin__token(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "a@x.com", "Abc12345")

	w := ts.do(t, "POST", "/token/", map[string]string{"email": "a@x.com", "password": "Abc12345"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}
	var resp tokenResponse
	decode(t, w, &resp)
	if resp.Access == "" || resp.Refresh == "" || resp.Message == "" {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if w := ts.do(t, "GET", "/user/", nil, resp.Access); w.Code != http.StatusOK {
		t.Errorf("GET /user/: got %d", w.Code)
	}

	w = ts.do(t, "POST", "/token/", map[string]string{"email": "a@x.com", "password": "wrong-pass"}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d", w.Code)
	}
	var eresp errorResponse
	decode(t, w, &eresp)
	if eresp.Kind != kindAuthentication {
		t.Errorf("kind=%q", eresp.Kind)
	}

	if w := ts.do(t, "POST", "/token/", map[string]string{"email": "a@x.com"}, ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing password: got %d", w.Code)
	}
}

func TestLogin__refresh(t *testing.T) {
	ts := newTestServer(t)
	tokens := ts.signup(t, "a@x.com", "Abc12345")

	w := ts.do(t, "POST", "/token/refresh/", map[string]string{"refresh": tokens.Refresh}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}
	var resp tokenResponse
	decode(t, w, &resp)
	if resp.Access == "" || resp.Access == tokens.Access || resp.Refresh == tokens.Refresh {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if w := ts.do(t, "GET", "/user/", nil, resp.Access); w.Code != http.StatusOK {
		t.Errorf("GET /user/: got %d", w.Code)
	}

	// the old refresh token was consumed
	w = ts.do(t, "POST", "/token/refresh/", map[string]string{"refresh": tokens.Refresh}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("reused refresh: got %d", w.Code)
	}

	w = ts.do(t, "POST", "/token/refresh/", map[string]string{"refresh": "garbage"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("garbage refresh: got %d", w.Code)
	}
}

func TestLogin__logout(t *testing.T) {
	ts := newTestServer(t)
	tokens := ts.signup(t, "a@x.com", "Abc12345")

	w := ts.do(t, "DELETE", "/token/", nil, tokens.Access)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}
	if w := ts.do(t, "GET", "/user/", nil, tokens.Access); w.Code != http.StatusUnauthorized {
		t.Errorf("revoked access: got %d", w.Code)
	}
	if w := ts.do(t, "POST", "/token/refresh/", map[string]string{"refresh": tokens.Refresh}, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("revoked refresh: got %d", w.Code)
	}
}
