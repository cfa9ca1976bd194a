// Package models contains data structures for the application's domain models.
package models

import (
	"strconv"
	"time"

	"gorm.io/gorm"
)

// User is an account holder. Users issue invitations and own exactly one profile.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Email     string         `gorm:"uniqueIndex;size:254;not null" json:"email"`
	Password  string         `gorm:"not null" json:"-"`
	IsAdmin   bool           `gorm:"default:false" json:"is_admin"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Profile   *Profile       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"profile,omitempty"`
}

// TokenSubject identifies the user in password reset links.
func (u *User) TokenSubject() string {
	return strconv.FormatUint(uint64(u.ID), 10)
}

// TokenState changes whenever the password does, so reset links are single-use.
func (u *User) TokenState() string {
	return u.Password + "|" + strconv.FormatInt(u.UpdatedAt.UnixNano(), 10)
}

// TokenIssuedAt is zero: reset links are stamped with the time they are issued.
func (u *User) TokenIssuedAt() time.Time {
	return time.Time{}
}
