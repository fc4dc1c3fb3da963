package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/finboard/finboard/backend/gateway/internal/common"
	"github.com/finboard/finboard/backend/gateway/internal/models"
)

var (
	ErrEmailRequired    = errors.New("email is required")
	ErrPasswordRequired = errors.New("password is required")
)

// Service encapsulates credential provisioning and lookup.
type Service struct {
	repo       Repository
	bcryptCost int
}

func NewService(r Repository, bcryptCost int) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{repo: r, bcryptCost: bcryptCost}
}

// Provision hashes the password and creates a new credential record.
func (s *Service) Provision(ctx context.Context, email, name, password string) (*models.Credential, error) {
	email = common.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrEmailRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	c := &models.Credential{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*models.Credential, error) {
	return s.repo.GetByEmail(ctx, common.NormalizeEmail(email))
}
