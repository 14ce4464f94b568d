package models

import (
	"strings"
	"time"
)

type User struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone_number"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// NormalizedName is the identity key used to detect duplicate customers.
func (u *User) NormalizedName() string {
	return NormalizeName(u.FirstName, u.LastName)
}

// NormalizeName lower-cases and trims both name parts.
func NormalizeName(first, last string) string {
	return strings.ToLower(strings.TrimSpace(first)) + "|" + strings.ToLower(strings.TrimSpace(last))
}
