package models

import (
	"strconv"
	"strings"
	"time"
)

// InvitationStatus tracks where an invitation is in its lifecycle.
type InvitationStatus string

const (
	InvitationStatusCreated   InvitationStatus = "created"
	InvitationStatusSent      InvitationStatus = "sent"
	InvitationStatusActivated InvitationStatus = "activated"
	InvitationStatusExpired   InvitationStatus = "expired"
)

// Invitation is a referral sent by a user to an email address.
type Invitation struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	UserID      uint             `gorm:"not null;index" json:"user_id"`
	User        *User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Email       string           `gorm:"size:254;not null;index" json:"email"`
	Status      InvitationStatus `gorm:"type:varchar(20);not null;default:created;index" json:"status"`
	SentAt      *time.Time       `json:"sent_at,omitempty"`
	ExpiresAt   *time.Time       `gorm:"index" json:"expires_at,omitempty"`
	ActivatedAt *time.Time       `json:"activated_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// InvitationState is the part of an invitation that concurrent writers race on. A write
// applies only while the stored row still matches the state it was computed from.
type InvitationState struct {
	Status InvitationStatus
	SentAt *time.Time
}

// State snapshots the current status and send time.
func (i *Invitation) State() InvitationState {
	return InvitationState{Status: i.Status, SentAt: i.SentAt}
}

// IsExpired reports whether a sent invitation has passed its expiry, or was already marked expired.
func (i *Invitation) IsExpired(now time.Time) bool {
	if i.Status == InvitationStatusExpired {
		return true
	}
	return i.Status == InvitationStatusSent && i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

func (i *Invitation) IsActivated() bool {
	return i.Status == InvitationStatusActivated
}

// CanSend reports whether the invitation may be (re)sent.
func (i *Invitation) CanSend() bool {
	return i.Status != InvitationStatusActivated
}

// Editable reports whether the issuer may still change or remove the invitation.
func (i *Invitation) Editable() bool {
	return i.Status != InvitationStatusActivated
}

// MarkSent moves the invitation to SENT with a fresh expiry. The send time is kept at
// microsecond precision so it survives a round trip through PostgreSQL unchanged.
func (i *Invitation) MarkSent(now time.Time, ttl time.Duration) {
	sent := now.UTC().Truncate(time.Microsecond)
	expires := sent.Add(ttl)
	i.Status = InvitationStatusSent
	i.SentAt = &sent
	i.ExpiresAt = &expires
}

// ResetEmail points the invitation at a new address and returns it to CREATED.
func (i *Invitation) ResetEmail(email string) {
	i.Email = NormalizeEmail(email)
	i.Status = InvitationStatusCreated
	i.SentAt = nil
	i.ExpiresAt = nil
}

// TokenSubject identifies the invitation in activation links.
func (i *Invitation) TokenSubject() string {
	return strconv.FormatUint(uint64(i.ID), 10)
}

// TokenState fingerprints every field whose change must invalidate issued links.
func (i *Invitation) TokenState() string {
	var sent int64
	if i.SentAt != nil {
		sent = i.SentAt.UnixNano()
	}
	return strings.Join([]string{
		i.TokenSubject(),
		i.Email,
		string(i.Status),
		strconv.FormatInt(sent, 10),
	}, "|")
}

// TokenIssuedAt is the send time; unsent invitations fall back to creation time.
func (i *Invitation) TokenIssuedAt() time.Time {
	if i.SentAt != nil {
		return *i.SentAt
	}
	return i.CreatedAt
}

// NormalizeEmail lower-cases and trims an address before it is stored or compared.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
