package models

import "time"

// Credential is a provisioned account: a unique email plus its bcrypt hash.
// Records are created by provisioning and never mutated by the gateway.
type Credential struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"passwordHash" json:"-"`
	Name         string    `bson:"name" json:"name"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}
