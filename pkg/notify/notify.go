// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// Package notify delivers short messages (one-time passcodes, account
// alerts) over email or SMS.
package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/go-kit/kit/log"
)

// Message is one notification addressed to one or more recipients.
// Subject is ignored by SMS senders.
type Message struct {
	Subject string
	Body    string
	To      []string
}

// Sender delivers a Message. A nil error means the transport accepted the
// message for every recipient.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var ErrNoRecipients = errors.New("notify: message has no recipients")

func (m Message) validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	for i := range m.To {
		if strings.TrimSpace(m.To[i]) == "" {
			return ErrNoRecipients
		}
	}
	return nil
}

// ConsoleSender writes messages to a logger instead of delivering them.
// It's meant for development where no provider is configured.
type ConsoleSender struct {
	Channel string
	Logger  log.Logger
}

func (c *ConsoleSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	c.Logger.Log("notify", c.Channel, "to", strings.Join(msg.To, ","), "subject", msg.Subject, "body", msg.Body)
	return nil
}
