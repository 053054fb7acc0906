// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const AfricasTalkingURL = "https://api.africastalking.com/version1/messaging"

// AfricasTalkingSender sends SMS through the Africa's Talking messaging API.
// The account is identified by Username and messages go out under the
// registered Sender ID.
type AfricasTalkingSender struct {
	Username string
	APIKey   string
	Sender   string
	URL      string

	client *http.Client
}

func NewAfricasTalkingSender(client *http.Client, username, apiKey, sender, endpoint string) *AfricasTalkingSender {
	if client == nil {
		client = http.DefaultClient
	}
	if endpoint == "" {
		endpoint = AfricasTalkingURL
	}
	return &AfricasTalkingSender{
		Username: username,
		APIKey:   apiKey,
		Sender:   sender,
		URL:      endpoint,
		client:   client,
	}
}

// delivered status codes: Processed, Sent, Queued
var deliveredStatusCodes = map[int64]bool{100: true, 101: true, 102: true}

func (s *AfricasTalkingSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	form := url.Values{}
	form.Set("username", s.Username)
	form.Set("to", strings.Join(msg.To, ","))
	form.Set("message", msg.Body)
	if s.Sender != "" {
		form.Set("from", s.Sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("africastalking: problem creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", s.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("africastalking: problem sending sms: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("africastalking: problem reading response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("africastalking: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return checkRecipients(body, len(msg.To))
}

// checkRecipients verifies the API accepted the message for every number.
func checkRecipients(body []byte, want int) error {
	if !gjson.ValidBytes(body) {
		return errors.New("africastalking: invalid json response")
	}
	recipients := gjson.GetBytes(body, "SMSMessageData.Recipients")
	if !recipients.IsArray() || len(recipients.Array()) < want {
		summary := gjson.GetBytes(body, "SMSMessageData.Message").String()
		return fmt.Errorf("africastalking: message not accepted: %s", summary)
	}
	var failed []string
	for _, r := range recipients.Array() {
		if !deliveredStatusCodes[r.Get("statusCode").Int()] {
			failed = append(failed, fmt.Sprintf("%s (%s)", r.Get("number").String(), r.Get("status").String()))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("africastalking: delivery failed for %s", strings.Join(failed, ", "))
	}
	return nil
}
