package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"task-manager/internal/auth"
	"task-manager/internal/logging"
	"task-manager/internal/model"
	"task-manager/internal/repository"
	"task-manager/internal/validation"
)

const msgEmailTaken = "An account with this email already exists"

// UserStore is the account persistence used by the services.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, lastName, username string) (*model.User, error)
	ListTelegramUsers(ctx context.Context) ([]model.User, error)
}

// Session is the result of a successful sign-in.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// AccountService registers users and signs them in.
type AccountService struct {
	users  UserStore
	tokens *auth.Tokens
	logger *log.Logger
}

func NewAccountService(users UserStore, tokens *auth.Tokens, logger *log.Logger) *AccountService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AccountService{users: users, tokens: tokens, logger: logger.With("component", "accounts")}
}

func (s *AccountService) Register(ctx context.Context, input validation.Credentials) (_ *Session, err error) {
	op := opRegister
	defer recoverOp(s.logger, op, &err)

	creds, fields := validation.ValidateCredentials(input)
	if fields != nil {
		return nil, op.invalid(fields)
	}
	hash, err := auth.HashPassword(creds.Password)
	if err != nil {
		return nil, op.unexpected(err)
	}

	user := model.User{Email: &creds.Email, PasswordHash: hash}
	if err := s.users.Create(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, op.invalid(validation.FieldErrors{"email": {msgEmailTaken}})
		}
		s.logger.Error(op.storeFailure, "err", err)
		return nil, op.storeErr(err)
	}

	s.logger.Info("account registered", "user_id", user.ID)
	return s.session(op, &user)
}

// Login checks the password of the account registered under email. Unknown
// emails and wrong passwords fail the same way.
func (s *AccountService) Login(ctx context.Context, input validation.Credentials) (_ *Session, err error) {
	op := opLogin
	defer recoverOp(s.logger, op, &err)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, op.unauthorizedErr()
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, op.unauthorizedErr()
		}
		s.logger.Error(op.storeFailure, "err", err)
		return nil, op.storeErr(err)
	}
	if err := auth.CheckPassword(user.PasswordHash, input.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("password check failed", "user_id", user.ID, "err", err)
		}
		return nil, op.unauthorizedErr()
	}
	return s.session(op, user)
}

// TelegramUser finds or creates the account linked to a Telegram user.
func (s *AccountService) TelegramUser(ctx context.Context, telegramID int64, firstName, lastName, username string) (*model.User, error) {
	return s.users.UpsertFromTelegram(ctx, telegramID, firstName, lastName, username)
}

// TelegramUsers lists the accounts that receive reports in Telegram.
func (s *AccountService) TelegramUsers(ctx context.Context) ([]model.User, error) {
	return s.users.ListTelegramUsers(ctx)
}

func (s *AccountService) session(op operation, user *model.User) (*Session, error) {
	token, expires, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, op.unexpected(err)
	}
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}
