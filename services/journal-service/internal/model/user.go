package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// User is a credential record. ResetTokenHash and ResetTokenExpiresAt are
// either both set, while a password reset is pending, or both nil.
type User struct {
	ID                  bson.ObjectID `bson:"_id,omitempty"`
	Email               string        `bson:"email"`
	Name                *string       `bson:"name,omitempty"`
	PasswordHash        string        `bson:"password_hash"`
	ResetTokenHash      *string       `bson:"reset_token_hash"`
	ResetTokenExpiresAt *time.Time    `bson:"reset_token_expires_at"`
	CreatedAt           time.Time     `bson:"created_at"`
	UpdatedAt           time.Time     `bson:"updated_at"`
}

// PublicUser is the view of a user that may leave the service.
type PublicUser struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Name  *string `json:"name,omitempty"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:    u.ID.Hex(),
		Email: u.Email,
		Name:  u.Name,
	}
}

// HasPendingReset reports whether a reset token is outstanding at now.
func (u *User) HasPendingReset(now time.Time) bool {
	return u.ResetTokenHash != nil && u.ResetTokenExpiresAt != nil && now.Before(*u.ResetTokenExpiresAt)
}
