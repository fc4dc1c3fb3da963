// Package auth verifies credentials and issues token pairs. The server keeps
// no session state: a pair is valid until its tokens expire.
package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/finboard/finboard/backend/gateway/internal/common"
	"github.com/finboard/finboard/backend/gateway/internal/models"
	"github.com/finboard/finboard/backend/gateway/internal/tokens"
)

// CredentialFinder is the lookup the verifier needs from the credential store.
type CredentialFinder interface {
	GetByEmail(ctx context.Context, email string) (*models.Credential, error)
}

// Identity is what GET /auth/me reports.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type Service struct {
	creds  CredentialFinder
	issuer *tokens.Issuer

	dummyOnce sync.Once
	dummyHash []byte
	cost      int
}

func NewService(creds CredentialFinder, issuer *tokens.Issuer, bcryptCost int) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{creds: creds, issuer: issuer, cost: bcryptCost}
}

// Login checks email and password and mints a new pair on success. Unknown
// email and wrong password both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*tokens.Pair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = common.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	cred, err := s.creds.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup credential: %w", err)
	}

	hash := s.dummy()
	if cred != nil {
		hash = []byte(cred.PasswordHash)
	}
	ok, err := s.compare(ctx, hash, password)
	if err != nil {
		return nil, err
	}
	if cred == nil || !ok {
		return nil, ErrInvalidCredentials
	}

	return s.issuer.Mint(cred.ID, cred.Email)
}

// Refresh verifies a refresh token and mints a new pair for its subject.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*tokens.Pair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	claims, err := s.issuer.VerifyRefresh(strings.TrimSpace(refreshToken))
	if err != nil {
		return nil, err
	}
	return s.issuer.Mint(claims.Subject, claims.Email)
}

// Me reports the identity carried by verified access-token claims.
func (s *Service) Me(claims *tokens.Claims) (*Identity, error) {
	if claims == nil || claims.Subject == "" {
		return nil, ErrUnauthorized
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// compare runs bcrypt on its own goroutine so a cancelled request returns
// without waiting for the hash.
func (s *Service) compare(ctx context.Context, hash []byte, password string) (bool, error) {
	done := make(chan error, 1)
	go func() {
		done <- bcrypt.CompareHashAndPassword(hash, []byte(password))
	}()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-done:
		return err == nil, nil
	}
}

// dummy is compared against when the email is unknown, so both paths cost one bcrypt run.
func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("finboard-dummy-password"), s.cost)
		if err != nil {
			h = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z2pJFoX/RX4o5ZQ3F5kZt1nK")
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
