// ABOUTME: Admin orchestration for user accounts and schema analysis
// ABOUTME: Validates client-side first, then drives the remote admin endpoints

package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/scry/internal/auth"
	"github.com/2389/scry/internal/backend"
)

// ErrSchemaRequired is returned when a new account has no schema. The remote
// service would refuse too, but the check happens here so no request is
// spent on it.
var ErrSchemaRequired = errors.New("schema is required for user creation")

// ErrInvalidRole is returned for roles other than user or admin.
var ErrInvalidRole = errors.New("invalid role")

// ErrUsernameRequired is returned when a username is empty or whitespace.
var ErrUsernameRequired = errors.New("username is required")

// ErrPasswordRequired is returned when a new account has no password.
var ErrPasswordRequired = errors.New("password is required")

// Directory defines what the service needs from the remote admin endpoints.
// *backend.Client satisfies it.
type Directory interface {
	AddUser(ctx context.Context, p backend.AddUserParams) (int64, error)
	RemoveUser(ctx context.Context, username string) error
	ListUsers(ctx context.Context) ([]backend.User, error)
	UpdateUser(ctx context.Context, id int64, p backend.UpdateUserParams) (*backend.User, error)
	AnalyzeColumns(ctx context.Context) (*backend.ColumnAnalysis, error)
}

// Service manages user accounts through the remote service. Mutations are
// fire-and-confirm: callers reload the list afterwards instead of patching
// local state.
type Service struct {
	dir    Directory
	logger *slog.Logger
}

// NewService creates an admin service.
func NewService(dir Directory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		dir:    dir,
		logger: logger.With("component", "admin"),
	}
}

// AddUser creates an account. The username is trimmed; the role defaults to
// user; a blank or whitespace-only schema is rejected before any request
// goes out.
func (s *Service) AddUser(ctx context.Context, p backend.AddUserParams) (int64, error) {
	p.Username = strings.TrimSpace(p.Username)
	if p.Username == "" {
		return 0, ErrUsernameRequired
	}
	if p.Password == "" {
		return 0, ErrPasswordRequired
	}
	if p.Role == "" {
		p.Role = auth.RoleUser
	}
	if !auth.ValidRole(p.Role) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}
	if strings.TrimSpace(p.Schema) == "" {
		return 0, ErrSchemaRequired
	}

	id, err := s.dir.AddUser(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("adding user: %w", err)
	}

	s.logger.Info("user created", "id", id, "username", p.Username, "role", p.Role)
	return id, nil
}

// RemoveUser deletes an account by username.
func (s *Service) RemoveUser(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrUsernameRequired
	}

	if err := s.dir.RemoveUser(ctx, username); err != nil {
		return fmt.Errorf("removing user: %w", err)
	}

	s.logger.Info("user removed", "username", username)
	return nil
}

// ListUsers fetches the current accounts.
func (s *Service) ListUsers(ctx context.Context) ([]backend.User, error) {
	users, err := s.dir.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// UpdateUser applies a partial edit. Empty fields stay unchanged; in
// particular a blank password never travels.
func (s *Service) UpdateUser(ctx context.Context, id int64, p backend.UpdateUserParams) (*backend.User, error) {
	p.Username = strings.TrimSpace(p.Username)
	if p.Role != "" && !auth.ValidRole(p.Role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}

	user, err := s.dir.UpdateUser(ctx, id, p)
	if err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}

	s.logger.Info("user updated", "id", id)
	return user, nil
}

// Analyze fetches the service's column usage analysis.
func (s *Service) Analyze(ctx context.Context) (*backend.ColumnAnalysis, error) {
	analysis, err := s.dir.AnalyzeColumns(ctx)
	if err != nil {
		return nil, fmt.Errorf("analyzing columns: %w", err)
	}
	return analysis, nil
}
