package domain

import (
	"time"
)

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	DisplayName  string `json:"displayName"`
	PasswordHash string `json:"-"`
	IsAdmin      bool   `json:"isAdmin"`
	// License attributes drive tiered channel visibility.
	HasFLLicense         bool      `json:"hasFlLicense"`
	HasMultiStateLicense bool      `json:"hasMultiStateLicense"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}
