package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/quillpress/quill-server/internal/auth"
	"github.com/quillpress/quill-server/internal/domain"
	domainerrors "github.com/quillpress/quill-server/internal/errors"
	"github.com/quillpress/quill-server/internal/store"
)

// Login failures for unknown emails and wrong passwords share this message.
const msgInvalidCredentials = "Invalid email or password"

// SignupInput contains new account data.
// Passwords are capped at 72 bytes, the most bcrypt will hash.
type SignupInput struct {
	Name     string `json:"name" validate:"notblank,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=6,maxbytes=72"`
}

// Normalize trims the name and canonicalizes the email.
func (in *SignupInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
}

// LoginInput contains user credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=1"`
}

// Normalize canonicalizes the email.
func (in *LoginInput) Normalize() {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
}

// AuthResult is returned by signup and login.
type AuthResult struct {
	Success bool         `json:"success"`
	User    *domain.User `json:"user"`
	Token   string       `json:"token"`
	Message string       `json:"message"`
}

// AuthService issues tokens for new and returning users.
type AuthService struct {
	store             store.Store
	hasher            auth.Hasher
	signer            auth.Signer
	allowPasswordless bool
	logger            *slog.Logger

	// decoyHash is verified against when the email is unknown so both
	// login failures take comparable time.
	decoyOnce sync.Once
	decoyHash string
}

// NewAuthService creates an authentication service.
// allowPasswordless lets accounts without a stored password (created through the
// lightweight authoring flow or seeding) log in by email alone.
func NewAuthService(st store.Store, hasher auth.Hasher, signer auth.Signer, allowPasswordless bool, logger *slog.Logger) *AuthService {
	return &AuthService{
		store:             st,
		hasher:            hasher,
		signer:            signer,
		allowPasswordless: allowPasswordless,
		logger:            logger,
	}
}

// Signup creates an author account and signs a token for it.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	_, err := s.store.GetUserByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, domainerrors.Conflict(msgEmailTaken)
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.store.CreateUser(ctx, &domain.NewUser{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: &hash,
		Role:         domain.RoleAuthor,
		IsActive:     true,
	})
	if err != nil {
		if store.IsConflictOn(err, "email") {
			return nil, domainerrors.Conflict(msgEmailTaken)
		}
		return nil, err
	}

	token, err := s.issue(u)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user signed up", "user_id", u.ID, "email", u.Email)
	return &AuthResult{Success: true, User: u, Token: token, Message: "Account created successfully"}, nil
}

// Login verifies credentials and signs a token.
// Unknown emails and wrong passwords fail identically.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	u, err := s.store.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.burnVerify(in.Password)
			return nil, domainerrors.Unauthorized(msgInvalidCredentials)
		}
		return nil, err
	}

	if !u.IsActive {
		return nil, domainerrors.Forbidden("Your account has been deactivated")
	}

	switch {
	case u.HasPassword():
		ok, err := s.hasher.Verify(*u.PasswordHash, in.Password)
		if err != nil {
			s.logger.Warn("stored password hash unreadable", "user_id", u.ID, "error", err)
		}
		if !ok {
			return nil, domainerrors.Unauthorized(msgInvalidCredentials)
		}
	case !s.allowPasswordless:
		s.burnVerify(in.Password)
		return nil, domainerrors.Unauthorized(msgInvalidCredentials)
	default:
		s.logger.Info("passwordless login", "user_id", u.ID)
	}

	token, err := s.issue(u)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", u.ID)
	return &AuthResult{Success: true, User: u, Token: token, Message: "Login successful"}, nil
}

func (s *AuthService) issue(u *domain.User) (string, error) {
	token, err := s.signer.Sign(auth.IdentityFor(u))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (s *AuthService) burnVerify(password string) {
	s.decoyOnce.Do(func() {
		h, err := s.hasher.Hash("quill-decoy-password")
		if err != nil {
			s.logger.Warn("failed to prepare decoy hash", "error", err)
			return
		}
		s.decoyHash = h
	})
	if s.decoyHash != "" {
		_, _ = s.hasher.Verify(s.decoyHash, password)
	}
}
