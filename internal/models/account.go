package models

import (
	"time"

	"github.com/google/uuid"
)

// Account role enums. Admin accounts are seeded, never self-registered;
// they resolve disputes.
const (
	RoleRequester = "requester"
	RoleFulfiller = "fulfiller"
	RoleAdmin     = "admin"
)

type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
