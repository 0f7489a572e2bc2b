package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"feedbackdesk/internal/apperr"
	"feedbackdesk/internal/domain"
)

const MinPasswordLength = 8

type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// Accounts implements registration, login and password changes.
type Accounts struct {
	users  UserStore
	hasher *BcryptPasswordHasher
	tokens *JWTService
	log    *slog.Logger
}

func NewAccounts(users UserStore, hasher *BcryptPasswordHasher, tokens *JWTService, log *slog.Logger) *Accounts {
	return &Accounts{users: users, hasher: hasher, tokens: tokens, log: log}
}

func (a *Accounts) Register(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return domain.User{}, apperr.Validation("A valid email is required")
	}
	if len(password) < MinPasswordLength {
		return domain.User{}, apperr.Validation("Password must be at least 8 characters")
	}
	hash, err := a.hasher.Hash(password)
	if err != nil {
		return domain.User{}, apperr.Internal("could not hash password", err)
	}
	user, err := a.users.CreateUser(ctx, domain.User{Email: email, PasswordHash: hash, Role: domain.RoleMember})
	if errors.Is(err, domain.ErrDuplicate) {
		return domain.User{}, apperr.Conflict("Email is already registered", apperr.CodeEmailTaken)
	}
	if err != nil {
		return domain.User{}, apperr.Internal("could not create user", err)
	}
	a.log.Info("user registered", "user_id", user.ID)
	return user, nil
}

func (a *Accounts) Login(ctx context.Context, email, password string) (domain.User, Token, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := a.users.GetUserByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, Token{}, apperr.Unauthorized("Invalid email or password")
	}
	if err != nil {
		return domain.User{}, Token{}, apperr.Internal("could not load user", err)
	}
	if err := a.hasher.Verify(password, user.PasswordHash); err != nil {
		return domain.User{}, Token{}, apperr.Unauthorized("Invalid email or password")
	}
	token, err := a.tokens.Generate(user)
	if err != nil {
		return domain.User{}, Token{}, apperr.Internal("could not issue token", err)
	}
	return user, token, nil
}

func (a *Accounts) ChangePassword(ctx context.Context, actor domain.Actor, current, next string) error {
	if len(next) < MinPasswordLength {
		return apperr.Validation("New password must be at least 8 characters")
	}
	if current == next {
		return apperr.Validation("New password must differ from the current one")
	}
	user, err := a.users.GetUserByID(ctx, actor.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return apperr.Unauthorized("")
	}
	if err != nil {
		return apperr.Internal("could not load user", err)
	}
	if err := a.hasher.Verify(current, user.PasswordHash); err != nil {
		return apperr.Validation("Current password is incorrect")
	}
	hash, err := a.hasher.Hash(next)
	if err != nil {
		return apperr.Internal("could not hash password", err)
	}
	if err := a.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return apperr.Internal("could not update password", err)
	}
	a.log.Info("password changed", "user_id", user.ID)
	return nil
}
