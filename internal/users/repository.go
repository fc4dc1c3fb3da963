package users

import (
	"context"

	"github.com/finboard/finboard/backend/gateway/internal/models"
)

// Repository defines persistence operations for credential records.
// Lookups return (nil, nil) when no record matches.
type Repository interface {
	Create(ctx context.Context, c *models.Credential) error
	GetByEmail(ctx context.Context, email string) (*models.Credential, error)
	GetByID(ctx context.Context, id string) (*models.Credential, error)
}
