// Package apns wraps the Apple Push Notification service behind a small
// gateway interface: send one silent notification to a token list, report
// per-token success or failure.
package apns

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// Notification is the single shape this service ever sends: an empty
// background push telling the device to re-poll its registrations.
type Notification struct {
	Topic string
}

// Failure reports one token the gateway could not deliver to.
type Failure struct {
	Device string // the push token
	Status int
	Reason string
}

// Terminal reports whether the failure means the token is permanently
// dead and its device should be purged. Transient failures are left for
// the caller to retry with a later push.
func (f Failure) Terminal() bool {
	switch f.Status {
	case http.StatusBadRequest, http.StatusGone:
		return true
	}
	switch f.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered:
		return true
	}
	return false
}

type Result struct {
	Sent   []string
	Failed []Failure
}

type Gateway interface {
	Send(ctx context.Context, n Notification, tokens []string) (*Result, error)
}

// ---------------------------------------------------------------------------
// APNs-backed gateway
// ---------------------------------------------------------------------------

type Client struct {
	client *apns2.Client
	logger *slog.Logger
}

// NewClient builds a token-authenticated APNs client from a .p8 signing key.
func NewClient(keyPath, keyID, teamID string, production bool) (*Client, error) {
	authKey, err := token.AuthKeyFromFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("apns auth key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	})
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &Client{
		client: client,
		logger: slog.With("component", "apns"),
	}, nil
}

func (c *Client) Send(ctx context.Context, n Notification, tokens []string) (*Result, error) {
	note := &apns2.Notification{
		Topic:    n.Topic,
		PushType: apns2.PushTypeBackground,
		Payload:  payload.NewPayload().ContentAvailable(),
	}

	result := &Result{}
	for _, t := range tokens {
		note.DeviceToken = t

		res, err := c.client.PushWithContext(ctx, note)
		if err != nil {
			// Transport-level failure: not a per-token verdict, abort the batch.
			return nil, fmt.Errorf("apns push: %w", err)
		}

		if res.Sent() {
			result.Sent = append(result.Sent, t)
			continue
		}

		c.logger.Warn("APNs rejected token", "status", res.StatusCode, "reason", res.Reason)
		result.Failed = append(result.Failed, Failure{
			Device: t,
			Status: res.StatusCode,
			Reason: res.Reason,
		})
	}

	return result, nil
}
