// Package auth implements the credential and authorization core: password
// hashing, bearer token issue/verify, principal resolution, and the
// admin/active/ownership checks applied before resource operations.
package auth

import (
	"errors"

	"expense-api/internal/models"
)

// Error kinds surfaced to the transport layer. Handlers map these to HTTP
// status codes; anything else is treated as an internal error.
var (
	// ErrUnauthenticated covers missing, malformed, expired, or
	// badly-signed tokens, and failed logins. Wrong username and wrong
	// password are deliberately indistinguishable.
	ErrUnauthenticated = errors.New("could not validate credentials")
	// ErrForbidden means the principal is authenticated but lacks the
	// required privilege or is inactive.
	ErrForbidden = errors.New("not enough privileges")
	// ErrNotFound is returned for resources that are absent or owned by
	// someone else. The two cases are deliberately conflated so callers
	// cannot probe for other users' resources.
	ErrNotFound = errors.New("not found")
)

// UserStore is the subset of the storage layer the auth service needs.
type UserStore interface {
	GetUserByUsername(username string) (*models.User, error)
}

// Service resolves credentials and tokens into principals.
type Service struct {
	store  UserStore
	tokens *TokenIssuer
}

// NewService creates an auth Service over the given user store and issuer.
func NewService(store UserStore, tokens *TokenIssuer) *Service {
	return &Service{store: store, tokens: tokens}
}

// Tokens exposes the service's token issuer.
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

// Authenticate checks a username/password pair and returns the matching
// user. An unknown username and a wrong password produce the identical
// ErrUnauthenticated to prevent username enumeration.
func (s *Service) Authenticate(username, password string) (*models.User, error) {
	user, err := s.store.GetUserByUsername(username)
	if err != nil || !CheckPassword(password, user.PasswordHash) {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// Login authenticates the user and issues a bearer token for them.
func (s *Service) Login(username, password string) (string, error) {
	user, err := s.Authenticate(username, password)
	if err != nil {
		return "", err
	}
	return s.tokens.Issue(user.Username)
}

// Resolve verifies a bearer token and loads the principal it names. A user
// deleted after token issuance resolves to ErrUnauthenticated, not a
// distinct error.
func (s *Service) Resolve(tokenString string) (*models.User, error) {
	subject, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	user, err := s.store.GetUserByUsername(subject)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// RequireActive fails with ErrForbidden if the account is deactivated.
func RequireActive(user *models.User) error {
	if !user.IsActive {
		return ErrForbidden
	}
	return nil
}

// RequireAdmin fails with ErrForbidden unless the principal is an admin.
func RequireAdmin(user *models.User) error {
	if !user.IsAdmin {
		return ErrForbidden
	}
	return nil
}

// RequireOwner fails with ErrNotFound unless the principal owns the
// resource. NotFound, not Forbidden, so a foreign resource is
// indistinguishable from a missing one.
func RequireOwner(user *models.User, ownerID int64) error {
	if user.ID != ownerID {
		return ErrNotFound
	}
	return nil
}
