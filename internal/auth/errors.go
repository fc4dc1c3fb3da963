package auth

import "github.com/finboard/finboard/backend/gateway/internal/common"

// Re-exported so callers of the verifier need not import common.
var (
	ErrInvalidCredentials = common.ErrInvalidCredentials
	ErrInvalidToken       = common.ErrInvalidToken
	ErrUserAlreadyExists  = common.ErrUserAlreadyExists
	ErrUnauthorized       = common.ErrUnauthorized
)
