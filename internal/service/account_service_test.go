package service

import (
	"context"
	"testing"
	"time"

	"task-manager/internal/auth"
	"task-manager/internal/validation"
)

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	tokens := auth.NewTokens("test-secret", time.Hour)
	accounts := NewAccountService(f.userRepo, tokens, nil)

	session, err := accounts.Register(context.Background(), validation.Credentials{Email: "Ada@Example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if session.User == nil || session.User.Email == nil || *session.User.Email != "ada@example.com" {
		t.Fatalf("session user = %+v", session.User)
	}
	sub, err := tokens.Parse(session.Token)
	if err != nil || sub != session.User.ID {
		t.Errorf("token subject = %q, %v; want %q", sub, err, session.User.ID)
	}

	_, err = accounts.Register(context.Background(), validation.Credentials{Email: "ada@example.com", Password: "another pass"})
	opErr := requireKind(t, err, KindValidation, "")
	if len(opErr.Fields["email"]) == 0 {
		t.Errorf("fields = %v, want email message", opErr.Fields)
	}

	_, err = accounts.Register(context.Background(), validation.Credentials{Email: "bob@example.com", Password: "short"})
	requireKind(t, err, KindValidation, "Invalid form data. Please check your inputs.")

	login, err := accounts.Login(context.Background(), validation.Credentials{Email: " ADA@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.User.ID != session.User.ID {
		t.Errorf("login user = %s, want %s", login.User.ID, session.User.ID)
	}
}

func TestLoginFailuresLookAlike(t *testing.T) {
	f := newFixture(t)
	accounts := NewAccountService(f.userRepo, auth.NewTokens("test-secret", time.Hour), nil)
	if _, err := accounts.Register(context.Background(), validation.Credentials{Email: "ada@example.com", Password: "correct horse"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, creds := range []validation.Credentials{
		{Email: "ada@example.com", Password: "wrong horse"},
		{Email: "nobody@example.com", Password: "correct horse"},
		{Email: "", Password: ""},
	} {
		_, err := accounts.Login(context.Background(), creds)
		requireKind(t, err, KindUnauthorized, "Invalid email or password.")
	}
}

func TestTelegramUsers(t *testing.T) {
	f := newFixture(t)
	accounts := NewAccountService(f.userRepo, auth.NewTokens("test-secret", time.Hour), nil)

	user, err := accounts.TelegramUser(context.Background(), 7, "Grace", "Hopper", "grace")
	if err != nil {
		t.Fatalf("TelegramUser: %v", err)
	}
	users, err := accounts.TelegramUsers(context.Background())
	if err != nil {
		t.Fatalf("TelegramUsers: %v", err)
	}
	if len(users) != 1 || users[0].ID != user.ID {
		t.Errorf("users = %+v", users)
	}
}
