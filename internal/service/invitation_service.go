// Package service holds the business logic behind the HTTP handlers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"welcomemat/internal/authz"
	"welcomemat/internal/mailer"
	"welcomemat/internal/middleware"
	"welcomemat/internal/models"
	"welcomemat/internal/observability"
	"welcomemat/internal/repository"
	"welcomemat/internal/tokens"
	"welcomemat/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

// ErrDeliveryFailed reports that an invitation was saved but its email could not be sent.
// The invitation keeps the status it had before the attempt.
var ErrDeliveryFailed = errors.New("invitation email could not be delivered")

// ActivationNotifier is told when an invitee accepts an invitation.
type ActivationNotifier interface {
	InvitationActivated(ctx context.Context, issuerID, invitationID uint, email string) error
}

// InvitationServiceDeps wires an InvitationService.
type InvitationServiceDeps struct {
	Invitations repository.InvitationRepository
	Users       repository.UserRepository
	Tokens      *tokens.Generator
	Sender      mailer.Sender
	Templates   *mailer.Catalog
	Notifier    ActivationNotifier
	SendTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// InvitationService manages the invitation lifecycle: create, send, edit, delete, activate
// and expire.
type InvitationService struct {
	invitations repository.InvitationRepository
	users       repository.UserRepository
	tokens      *tokens.Generator
	sender      mailer.Sender
	templates   *mailer.Catalog
	notifier    ActivationNotifier
	sendTimeout time.Duration
	now         func() time.Time
}

// NewInvitationService returns a new InvitationService.
func NewInvitationService(d InvitationServiceDeps) *InvitationService {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	timeout := d.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &InvitationService{
		invitations: d.Invitations,
		users:       d.Users,
		tokens:      d.Tokens,
		sender:      d.Sender,
		templates:   d.Templates,
		notifier:    d.Notifier,
		sendTimeout: timeout,
		now:         now,
	}
}

// List returns the issuer's invitations, newest first, and the total count.
func (s *InvitationService) List(ctx context.Context, userID uint, limit, offset int) ([]models.Invitation, int64, error) {
	return s.invitations.ListByUser(ctx, userID, limit, offset)
}

// Get returns one of the issuer's invitations. Invitations issued by someone else are
// reported as not found.
func (s *InvitationService) Get(ctx context.Context, userID, id uint) (*models.Invitation, error) {
	inv, err := s.invitations.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !authz.OwnsInvitation(userID, inv) {
		return nil, models.NewNotFoundError("Invitation", id)
	}
	return inv, nil
}

// Create stores a new invitation and sends it straight away. A failed delivery still
// returns the stored invitation together with ErrDeliveryFailed.
func (s *InvitationService) Create(ctx context.Context, userID uint, email, baseURL string) (*models.Invitation, error) {
	email = models.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	issuer, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.checkInvitable(ctx, issuer, email); err != nil {
		return nil, err
	}
	pending, err := s.invitations.ExistsPending(ctx, userID, email)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, models.NewConflictError("You have already invited this email")
	}

	inv := &models.Invitation{
		UserID: userID,
		Email:  email,
		Status: models.InvitationStatusCreated,
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, err
	}
	inv.User = issuer
	observability.InvitationsCreated.Inc()

	if err := s.deliver(ctx, inv, baseURL); err != nil {
		return inv, err
	}
	return inv, nil
}

// Send (re)sends one of the issuer's invitations. Any invitation the caller did not issue,
// including one that does not exist, is refused with a forbidden error.
func (s *InvitationService) Send(ctx context.Context, userID, id uint, baseURL string) (*models.Invitation, error) {
	inv, err := s.invitations.GetForUser(ctx, id, userID)
	if err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return nil, models.NewForbiddenError("You cannot send this invitation")
		}
		return nil, err
	}
	if !authz.OwnsInvitation(userID, inv) {
		return nil, models.NewForbiddenError("You cannot send this invitation")
	}
	if !inv.CanSend() {
		return nil, models.NewConflictError("Invitation has already been accepted")
	}
	if err := s.deliver(ctx, inv, baseURL); err != nil {
		return inv, err
	}
	return inv, nil
}

// Update changes the invitee address. Any change returns the invitation to CREATED, which
// invalidates links already mailed.
func (s *InvitationService) Update(ctx context.Context, userID, id uint, email string) (*models.Invitation, error) {
	inv, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !inv.Editable() {
		return nil, models.NewConflictError("Accepted invitations cannot be changed")
	}

	email = models.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if email == inv.Email {
		return inv, nil
	}

	issuer := inv.User
	if issuer == nil {
		if issuer, err = s.users.GetByID(ctx, userID); err != nil {
			return nil, err
		}
	}
	if err := s.checkInvitable(ctx, issuer, email); err != nil {
		return nil, err
	}
	pending, err := s.invitations.ExistsPending(ctx, userID, email)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, models.NewConflictError("You have already invited this email")
	}

	prev := inv.State()
	inv.ResetEmail(email)
	if err := s.invitations.Transition(ctx, inv, prev); err != nil {
		return nil, err
	}
	return inv, nil
}

// Delete removes an invitation. Accepted invitations, and invitations whose invitee has
// since registered, are kept.
func (s *InvitationService) Delete(ctx context.Context, userID, id uint) error {
	inv, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if !inv.Editable() {
		return models.NewConflictError("Accepted invitations cannot be removed")
	}
	registered, err := s.users.GetByEmail(ctx, inv.Email)
	if err != nil {
		return err
	}
	if registered != nil {
		return models.NewConflictError("The invitee already has an account")
	}
	return s.invitations.Delete(ctx, inv.ID)
}

// Activate validates an activation link. Every failure, whatever its cause, is reported as
// tokens.ErrInvalid; causes other than a bad link are only logged.
func (s *InvitationService) Activate(ctx context.Context, uidb64, token string) (*models.Invitation, error) {
	return s.ActivateWith(ctx, uidb64, token, nil)
}

// ActivateWith is Activate with a hook. before runs once the link has been validated and
// ahead of the state change; if it fails the invitation stays SENT and the link keeps working.
func (s *InvitationService) ActivateWith(ctx context.Context, uidb64, token string, before func(*models.Invitation) error) (inv *models.Invitation, err error) {
	ctx, span := observability.StartSpan(ctx, "invitation.activate")
	defer func() {
		outcome := "activated"
		if err != nil {
			outcome = "invalid"
		}
		observability.InvitationActivations.WithLabelValues(outcome).Inc()
		span.SetAttributes(attribute.String("invitation.outcome", outcome))
		observability.EndSpan(span, err)
	}()

	id, err := tokens.DecodeUID(uidb64)
	if err != nil {
		return nil, tokens.ErrInvalid
	}
	span.SetAttributes(attribute.Int64("invitation.id", int64(id)))

	inv, err = s.invitations.GetByID(ctx, id)
	if err != nil {
		if !models.HasCode(err, models.CodeNotFound) {
			middleware.Logger.ErrorContext(ctx, "activation lookup failed",
				slog.Uint64("invitation_id", uint64(id)), slog.String("error", err.Error()))
		}
		return nil, tokens.ErrInvalid
	}

	now := s.now()
	if inv.Status == models.InvitationStatusSent && inv.IsExpired(now) {
		if _, uerr := s.invitations.Expire(ctx, inv.ID, now); uerr != nil {
			middleware.Logger.ErrorContext(ctx, "failed to mark invitation expired",
				slog.Uint64("invitation_id", uint64(id)), slog.String("error", uerr.Error()))
		}
		return nil, tokens.ErrInvalid
	}
	if inv.Status != models.InvitationStatusSent || !s.tokens.Check(inv, token) {
		return nil, tokens.ErrInvalid
	}
	if before != nil {
		if berr := before(inv); berr != nil {
			middleware.Logger.ErrorContext(ctx, "activation aborted before state change",
				slog.Uint64("invitation_id", uint64(id)), slog.String("error", berr.Error()))
			return nil, tokens.ErrInvalid
		}
	}

	ok, err := s.invitations.MarkActivated(ctx, inv, now)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "failed to activate invitation",
			slog.Uint64("invitation_id", uint64(id)), slog.String("error", err.Error()))
		return nil, tokens.ErrInvalid
	}
	if !ok {
		return nil, tokens.ErrInvalid
	}
	activatedAt := now.UTC()
	inv.Status = models.InvitationStatusActivated
	inv.ActivatedAt = &activatedAt

	if s.notifier != nil {
		if nerr := s.notifier.InvitationActivated(ctx, inv.UserID, inv.ID, inv.Email); nerr != nil {
			middleware.Logger.WarnContext(ctx, "activation notification failed",
				slog.Uint64("invitation_id", uint64(id)), slog.String("error", nerr.Error()))
		}
	}
	return inv, nil
}

// ExpireStale moves every sent invitation past its expiry to EXPIRED.
func (s *InvitationService) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.invitations.ExpireStale(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		observability.InvitationsExpired.Add(float64(n))
	}
	return n, nil
}

// ActivationURL is the link mailed to the invitee for the invitation's current state.
func (s *InvitationService) ActivationURL(baseURL string, inv *models.Invitation) (string, error) {
	token, err := s.tokens.Make(inv)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/activate/invitation/%s/%s/",
		strings.TrimRight(baseURL, "/"), tokens.EncodeUID(inv.ID), token), nil
}

func (s *InvitationService) checkInvitable(ctx context.Context, issuer *models.User, email string) error {
	if issuer != nil && models.NormalizeEmail(issuer.Email) == email {
		return models.NewValidationError("You cannot invite yourself")
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return models.NewConflictError("A user with this email already exists")
	}
	return nil
}

// deliver marks the invitation sent, persists it and mails the activation link. On any
// failure after the state change the previous state is restored, unless another request
// has changed the invitation since.
func (s *InvitationService) deliver(ctx context.Context, inv *models.Invitation, baseURL string) error {
	prev := inv.State()
	prevStatus, prevSent, prevExpires := inv.Status, inv.SentAt, inv.ExpiresAt

	inv.MarkSent(s.now(), s.tokens.TTL())
	if err := s.invitations.Transition(ctx, inv, prev); err != nil {
		inv.Status, inv.SentAt, inv.ExpiresAt = prevStatus, prevSent, prevExpires
		return err
	}

	err := s.sendInvitationEmail(ctx, inv, baseURL)
	if err == nil {
		observability.InvitationDeliveries.WithLabelValues("sent").Inc()
		return nil
	}

	observability.InvitationDeliveries.WithLabelValues("failed").Inc()
	middleware.Logger.WarnContext(ctx, "invitation delivery failed",
		slog.Uint64("invitation_id", uint64(inv.ID)),
		slog.String("error", err.Error()),
	)

	sent := inv.State()
	inv.Status, inv.SentAt, inv.ExpiresAt = prevStatus, prevSent, prevExpires
	if uerr := s.invitations.Transition(ctx, inv, sent); uerr != nil {
		middleware.Logger.ErrorContext(ctx, "failed to restore invitation after delivery failure",
			slog.Uint64("invitation_id", uint64(inv.ID)),
			slog.String("error", uerr.Error()),
		)
	}
	return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
}

func (s *InvitationService) sendInvitationEmail(ctx context.Context, inv *models.Invitation, baseURL string) error {
	inviter := ""
	if inv.User != nil {
		inviter = inv.User.Email
	} else {
		issuer, err := s.users.GetByID(ctx, inv.UserID)
		if err != nil {
			return err
		}
		inviter = issuer.Email
	}

	link, err := s.ActivationURL(baseURL, inv)
	if err != nil {
		return err
	}
	msg, err := s.templates.Render(mailer.TemplateInvitation, mailer.InvitationData{
		Email:         inv.Email,
		Inviter:       inviter,
		ActivationURL: link,
		ExpiresAt:     *inv.ExpiresAt,
	})
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	return s.sender.Send(sendCtx, inv.Email, msg.Subject, msg.Text, msg.HTML)
}
