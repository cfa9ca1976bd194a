// Package notifications publishes user-facing events to Redis channels.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventInvitationActivated is published to the issuer when an invitee follows their link.
const EventInvitationActivated = "invitation.activated"

// Event is the envelope of every published notification.
type Event struct {
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Notifier provides helpers to publish notifications into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// UserChannel is the channel carrying one user's notifications.
func UserChannel(userID uint) string {
	return fmt.Sprintf("notifications:user:%d", userID)
}

// PublishUser sends a raw payload to a user's channel. A Notifier without Redis is a no-op.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload string) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// PublishEvent encodes ev and sends it to userID.
func (n *Notifier) PublishEvent(ctx context.Context, userID uint, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return n.PublishUser(ctx, userID, string(b))
}

// InvitationActivated tells issuerID that the invitation to email was accepted.
func (n *Notifier) InvitationActivated(ctx context.Context, issuerID, invitationID uint, email string) error {
	return n.PublishEvent(ctx, issuerID, Event{
		Type: EventInvitationActivated,
		Payload: map[string]any{
			"invitation_id": invitationID,
			"email":         email,
		},
	})
}
