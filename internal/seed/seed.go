package seed

import (
	"fmt"
	"log"

	"welcomemat/internal/models"

	"gorm.io/gorm"
)

// statusCycle spreads seeded invitations over the lifecycle, weighted toward pending ones.
var statusCycle = []models.InvitationStatus{
	models.InvitationStatusSent,
	models.InvitationStatusCreated,
	models.InvitationStatusSent,
	models.InvitationStatusActivated,
	models.InvitationStatusExpired,
}

// Summary counts what a seeding run wrote.
type Summary struct {
	Users       int
	Invitations map[models.InvitationStatus]int
}

// TotalInvitations sums invitations over all statuses.
func (s Summary) TotalInvitations() int {
	total := 0
	for _, n := range s.Invitations {
		total += n
	}
	return total
}

// Seeder populates the database with demo users, profiles and invitations.
type Seeder struct {
	db      *gorm.DB
	factory *Factory
}

// NewSeeder returns a Seeder writing through db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	return &Seeder{db: db, factory: NewFactory(db, opts)}
}

// ClearAll removes every invitation, profile and user, children first.
func (s *Seeder) ClearAll() error {
	if s.factory.opts.DryRun {
		log.Println("[dry-run] ClearAll skipped")
		return nil
	}
	log.Println("🧹 Clearing invitations, profiles and users...")
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.Invitation{}, &models.Profile{}, &models.User{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(model).Error; err != nil {
				return fmt.Errorf("clear %T: %w", model, err)
			}
		}
		return nil
	})
}

// Seed creates numUsers users, each issuing invitationsPerUser invitations.
func (s *Seeder) Seed(numUsers, invitationsPerUser int) (Summary, error) {
	summary := Summary{Invitations: make(map[models.InvitationStatus]int)}

	users := make([]*models.User, 0, numUsers)
	for i := 0; i < numUsers; i++ {
		u, err := s.factory.CreateUser()
		if err != nil {
			return summary, err
		}
		users = append(users, u)
	}
	summary.Users = len(users)
	log.Printf("👤 Created %d users", summary.Users)

	n := 0
	for _, u := range users {
		for j := 0; j < invitationsPerUser; j++ {
			status := statusCycle[n%len(statusCycle)]
			n++
			if _, err := s.factory.CreateInvitation(u, status); err != nil {
				return summary, err
			}
			summary.Invitations[status]++
		}
	}
	log.Printf("✉️  Created %d invitations", summary.TotalInvitations())
	return summary, nil
}
