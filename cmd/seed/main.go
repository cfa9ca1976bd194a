// Command main fills the database with demo users and invitations.
package main

import (
	"flag"
	"log"

	"welcomemat/internal/config"
	"welcomemat/internal/database"
	"welcomemat/internal/models"
	"welcomemat/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	perUser := flag.Int("invitations", 5, "Invitations issued by each user")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	dryRun := flag.Bool("dry-run", false, "Build data without writing it")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d users, %d invitations each, clean=%v\n", *numUsers, *perUser, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeeder(db, seed.Options{DryRun: *dryRun, InvitationTTL: cfg.InvitationTTL})

	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
	}

	summary, err := s.Seed(*numUsers, *perUser)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	for _, status := range []models.InvitationStatus{
		models.InvitationStatusCreated,
		models.InvitationStatusSent,
		models.InvitationStatusActivated,
		models.InvitationStatusExpired,
	} {
		log.Printf("   %-10s %d", status, summary.Invitations[status])
	}
	log.Println("✨ All done! Your database is now populated with demo data.")
	log.Printf("📧 All demo users have the password: %s", seed.DemoPassword)
}
