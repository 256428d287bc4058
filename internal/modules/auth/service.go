package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"catalogapi/internal/audit"
	"catalogapi/internal/domain"
	"catalogapi/internal/repository"
)

type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

type jwtService interface {
	GenerateToken(userID int64, username, role string) (string, error)
}

type auditRecorder interface {
	Record(action audit.Action, table string, recordID, actorID int64, actorName string, details map[string]any)
}

type Service struct {
	users UserRepository
	jwt   jwtService
	audit auditRecorder
}

func NewService(users UserRepository, jwt jwtService, recorder auditRecorder) *Service {
	return &Service{users: users, jwt: jwt, audit: recorder}
}

type LoginResult struct {
	User  *domain.User
	Token string
}

// Login verifies credentials and issues a signed token. Successful logins
// are recorded to the audit trail off the request path.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Username, string(user.Role))
	if err != nil {
		return nil, err
	}

	go s.audit.Record(audit.ActionLogin, "users", user.ID, user.ID, user.Username, nil)

	return &LoginResult{User: user, Token: token}, nil
}

// Me returns the authenticated user's profile.
func (s *Service) Me(ctx context.Context, userID int64) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

// Logout records the session end. Tokens are stateless; the entry exists for
// the audit trail only.
func (s *Service) Logout(userID int64, username string) {
	go s.audit.Record(audit.ActionLogout, "users", userID, userID, username, nil)
}
