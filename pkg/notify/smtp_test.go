// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package notify

import (
	"bytes"
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
)

func TestSMTP__send(t *testing.T) {
	s := NewSMTPSender("mail.example.com", 587, "user", "pass", "support@forge.com")

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		if a == nil {
			t.Error("expected auth")
		}
		return nil
	}

	err := s.Send(context.Background(), Message{
		Subject: "Confirmation OTP",
		Body:    "Your account confirmation OTP code is: 123456",
		To:      []string{"a@x.com"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotAddr != "mail.example.com:587" {
		t.Errorf("addr=%s", gotAddr)
	}
	if gotFrom != "support@forge.com" || len(gotTo) != 1 || gotTo[0] != "a@x.com" {
		t.Errorf("from=%s to=%v", gotFrom, gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: Confirmation OTP\r\n") {
		t.Errorf("missing subject: %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nYour account confirmation OTP code is: 123456") {
		t.Errorf("unexpected body: %q", msg)
	}
}

func TestSMTP__error(t *testing.T) {
	s := NewSMTPSender("mail.example.com", 25, "", "", "support@forge.com")
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if a != nil {
			t.Error("expected no auth without a username")
		}
		return errors.New("connection refused")
	}
	err := s.Send(context.Background(), Message{Subject: "x", Body: "y", To: []string{"a@x.com"}})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("got %v", err)
	}
}

func TestConsole__send(t *testing.T) {
	var buf bytes.Buffer
	s := &ConsoleSender{Channel: "sms", Logger: log.NewLogfmtLogger(&buf)}
	if err := s.Send(context.Background(), Message{Body: "code 1234", To: []string{"+254712345678"}}); err != nil {
		t.Fatal(err)
	}
	if out := buf.String(); !strings.Contains(out, "to=+254712345678") || !strings.Contains(out, `body="code 1234"`) {
		t.Errorf("got %q", out)
	}
	if err := s.Send(context.Background(), Message{Body: "x", To: []string{" "}}); err != ErrNoRecipients {
		t.Errorf("got %v", err)
	}
}
