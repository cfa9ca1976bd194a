// Package authz holds the ownership predicates evaluated before every profile and invitation
// operation.
package authz

import "welcomemat/internal/models"

// OwnsProfile reports whether userID owns the profile.
func OwnsProfile(userID uint, p *models.Profile) bool {
	return p != nil && userID != 0 && p.UserID == userID
}

// OwnsInvitation reports whether userID issued the invitation.
func OwnsInvitation(userID uint, inv *models.Invitation) bool {
	return inv != nil && userID != 0 && inv.UserID == userID
}
