// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"log"
	"strings"
	"time"

	"welcomemat/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DemoPassword is the password every seeded user logs in with.
const DemoPassword = "Welcome-Mat-2024!"

// Options tunes what the factory writes.
type Options struct {
	// SkipBcrypt stores DemoPassword unhashed. Seeded users then cannot log in.
	SkipBcrypt bool
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// DryRun builds entities with synthetic IDs and never touches the database.
	DryRun bool
	// InvitationTTL is the expiry window given to sent invitations.
	InvitationTTL time.Duration
	// Seed makes gofakeit deterministic when non-zero.
	Seed int64
}

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db     *gorm.DB
	opts   Options
	faker  *gofakeit.Faker
	nextID uint
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	if opts.InvitationTTL <= 0 {
		opts.InvitationTTL = 72 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{db: db, opts: opts, faker: gofakeit.New(seed), nextID: 1000}
}

// CreateUser constructs and persists a user with an attached profile.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	username := fmt.Sprintf("%s%d", sanitizeUsername(f.faker.Username()), f.faker.Number(100, 999))
	user := &models.User{
		Username: username,
		Email:    models.NormalizeEmail(fmt.Sprintf("%s@%s", username, f.faker.DomainName())),
		Profile:  &models.Profile{Bio: f.faker.Sentence(12)},
	}

	if f.opts.SkipBcrypt {
		user.Password = DemoPassword
	} else {
		hashed, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), f.opts.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash demo password: %w", err)
		}
		user.Password = string(hashed)
	}

	for _, override := range overrides {
		override(user)
	}

	if f.opts.DryRun {
		f.nextID++
		user.ID = f.nextID
		user.Profile.UserID = user.ID
		log.Printf("[dry-run] CreateUser: %s <%s>", user.Username, user.Email)
		return user, nil
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user %s: %w", user.Username, err)
	}
	return user, nil
}

// BuildInvitation returns an unsaved invitation from issuer in the given status, with
// timestamps consistent with that status.
func (f *Factory) BuildInvitation(issuer *models.User, status models.InvitationStatus, overrides ...func(*models.Invitation)) *models.Invitation {
	now := time.Now().UTC()
	ttl := f.opts.InvitationTTL
	inv := &models.Invitation{
		UserID:    issuer.ID,
		Email:     models.NormalizeEmail(f.faker.Email()),
		Status:    models.InvitationStatusCreated,
		CreatedAt: now.Add(-f.hoursWithin(2 * ttl)),
	}

	switch status {
	case models.InvitationStatusSent:
		inv.MarkSent(now.Add(-f.hoursWithin(ttl/2)), ttl)
	case models.InvitationStatusActivated:
		sent := now.Add(-f.hoursWithin(ttl))
		inv.MarkSent(sent, ttl)
		activated := sent.Add(f.hoursWithin(ttl))
		if activated.After(now) {
			activated = now
		}
		inv.ActivatedAt = &activated
		inv.Status = models.InvitationStatusActivated
	case models.InvitationStatusExpired:
		inv.MarkSent(now.Add(-ttl-f.hoursWithin(ttl)-time.Hour), ttl)
		inv.Status = models.InvitationStatusExpired
	}
	if inv.SentAt != nil && inv.CreatedAt.After(*inv.SentAt) {
		inv.CreatedAt = *inv.SentAt
	}

	for _, override := range overrides {
		override(inv)
	}
	return inv
}

// CreateInvitation builds and persists an invitation.
func (f *Factory) CreateInvitation(issuer *models.User, status models.InvitationStatus, overrides ...func(*models.Invitation)) (*models.Invitation, error) {
	inv := f.BuildInvitation(issuer, status, overrides...)
	if f.opts.DryRun {
		f.nextID++
		inv.ID = f.nextID
		log.Printf("[dry-run] CreateInvitation: %s -> %s (%s)", issuer.Username, inv.Email, inv.Status)
		return inv, nil
	}
	if err := f.db.Create(inv).Error; err != nil {
		return nil, fmt.Errorf("create invitation for %s: %w", inv.Email, err)
	}
	return inv, nil
}

// hoursWithin returns a whole number of hours in [0, d).
func (f *Factory) hoursWithin(d time.Duration) time.Duration {
	hours := int(d / time.Hour)
	if hours <= 0 {
		return 0
	}
	return time.Duration(f.faker.Number(0, hours-1)) * time.Hour
}

// sanitizeUsername keeps the characters usernames may contain.
func sanitizeUsername(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return -1
	}, s)
	s = strings.Trim(s, "_")
	if len(s) > 24 {
		s = s[:24]
	}
	if len(s) < 3 {
		s = "guest"
	}
	return s
}
