package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"spendtrack.org/internal/authz"
	"spendtrack.org/internal/ids"
)

// GroupLookup resolves the flat set of groups a user belongs to.
type GroupLookup interface {
	GroupsForUser(ctx context.Context, userID string) ([]string, error)
}

// Service verifies credentials, issues tokens and resolves the CurrentUser
// every authorization check runs against.
type Service struct {
	users  Store
	groups GroupLookup
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(users Store, groups GroupLookup) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if groups == nil {
		return nil, errors.New("group lookup is required")
	}
	return &Service{users: users, groups: groups, now: time.Now}, nil
}

// TokenTTL is how long issued tokens stay valid.
const TokenTTL = 15 * time.Minute

// Login verifies the password and issues a signed token. Unknown usernames
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return "", time.Time{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	u, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, err
	}
	if !u.Active {
		return "", time.Time{}, ErrInvalidCredentials
	}
	ok, err := VerifyPassword(password, u.PasswordHash)
	if err != nil || !ok {
		return "", time.Time{}, ErrInvalidCredentials
	}

	token, err := GenerateToken(u.ID, string(u.Role), TokenTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := s.now().UTC().Add(TokenTTL)
	_ = s.users.SetLastLogin(ctx, u.ID, s.now().UTC())
	return token, expiresAt, nil
}

// Resolve builds the CurrentUser for a validated token subject: role from the
// user record (not the token, so role changes apply immediately) plus current
// group memberships.
func (s *Service) Resolve(ctx context.Context, userID string) (authz.CurrentUser, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return authz.CurrentUser{}, err
	}
	if !u.Active {
		return authz.CurrentUser{}, ErrInvalidCredentials
	}
	groups, err := s.groups.GroupsForUser(ctx, u.ID)
	if err != nil {
		return authz.CurrentUser{}, err
	}
	return authz.CurrentUser{ID: u.ID, Role: u.Role, GroupIDs: groups}, nil
}

// Register creates a user account. Exposed for seeding and tests; production
// user management is an external collaborator.
func (s *Service) Register(ctx context.Context, username, email, password, fullName string, role authz.Role) (User, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" {
		return User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if _, err := authz.ParseRole(string(role)); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:           ids.New(),
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}
