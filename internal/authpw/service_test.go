package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ccssmnn/alkalye-sub002/internal/store"
)

// mockAccountStore is an in-memory AccountStore for testing
type mockAccountStore struct {
	accounts      map[string]store.Account
	emailIndex    map[string]string
	verifications map[string]store.Account
	resets        map[string]struct {
		accountID string
		expiresAt time.Time
		used      bool
	}
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{
		accounts:      make(map[string]store.Account),
		emailIndex:    make(map[string]string),
		verifications: make(map[string]store.Account),
		resets: make(map[string]struct {
			accountID string
			expiresAt time.Time
			used      bool
		}),
	}
}

func (m *mockAccountStore) GetAccountByEmail(ctx context.Context, email string) (store.Account, error) {
	if id, ok := m.emailIndex[email]; ok {
		return m.accounts[id], nil
	}
	return store.Account{}, errors.New("account not found")
}

func (m *mockAccountStore) GetAccountByID(ctx context.Context, id string) (store.Account, error) {
	if account, ok := m.accounts[id]; ok {
		return account, nil
	}
	return store.Account{}, errors.New("account not found")
}

func (m *mockAccountStore) CreateAccount(ctx context.Context, account store.Account) error {
	m.accounts[account.ID] = account
	m.emailIndex[account.Email] = account.ID
	return nil
}

func (m *mockAccountStore) UpdateVerificationToken(ctx context.Context, accountID, token string, expiresAt time.Time) error {
	if account, ok := m.accounts[accountID]; ok {
		account.VerificationToken = token
		m.accounts[accountID] = account
		m.verifications[token] = account
	}
	return nil
}

func (m *mockAccountStore) VerifyAccountEmail(ctx context.Context, token string) error {
	if account, ok := m.verifications[token]; ok {
		account.IsEmailVerified = true
		m.accounts[account.ID] = account
		m.emailIndex[account.Email] = account.ID
		return nil
	}
	return errors.New("invalid token")
}

func (m *mockAccountStore) UpdateAccountPassword(ctx context.Context, accountID, passwordHash string) error {
	if account, ok := m.accounts[accountID]; ok {
		account.PasswordHash = passwordHash
		m.accounts[accountID] = account
		return nil
	}
	return errors.New("account not found")
}

func (m *mockAccountStore) CreatePasswordReset(ctx context.Context, accountID, token string, expiresAt time.Time) error {
	m.resets[token] = struct {
		accountID string
		expiresAt time.Time
		used      bool
	}{accountID: accountID, expiresAt: expiresAt}
	return nil
}

func (m *mockAccountStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	if reset, ok := m.resets[token]; ok && !reset.used && time.Now().Before(reset.expiresAt) {
		return reset.accountID, nil
	}
	return "", errors.New("invalid or expired token")
}

func (m *mockAccountStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	if reset, ok := m.resets[token]; ok {
		reset.used = true
		m.resets[token] = reset
	}
	return nil
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockAccountStore()
	svc := NewService(mockStore)

	t.Run("successful sign up", func(t *testing.T) {
		resp, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "test@example.com",
			Password:    "password123",
			DisplayName: "Test User",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.AccountID == "" {
			t.Error("expected AccountID to be set")
		}
		if resp.VerificationToken == "" {
			t.Error("expected VerificationToken to be set")
		}
		if !resp.RequiresEmailVerify {
			t.Error("expected RequiresEmailVerify to be true")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "test@example.com",
			Password:    "password123",
			DisplayName: "Test User 2",
		})
		if err == nil {
			t.Error("expected error for duplicate email")
		}
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "test2@example.com",
			Password:    "short",
			DisplayName: "Test User",
		})
		if err == nil {
			t.Error("expected error for short password")
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		if _, err := svc.SignUp(ctx, SignUpRequest{}); err == nil {
			t.Error("expected error for missing fields")
		}
	})
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockAccountStore()
	svc := NewService(mockStore)

	resp, _ := svc.SignUp(ctx, SignUpRequest{
		Email:       "test@example.com",
		Password:    "password123",
		DisplayName: "Test User",
	})
	svc.VerifyEmail(ctx, resp.VerificationToken)

	t.Run("successful sign in", func(t *testing.T) {
		signInResp, err := svc.SignIn(ctx, SignInRequest{
			Email:    "test@example.com",
			Password: "password123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if signInResp.Account.Email != "test@example.com" {
			t.Errorf("expected email test@example.com, got %s", signInResp.Account.Email)
		}
		if signInResp.RequiresVerify {
			t.Error("expected RequiresVerify to be false for verified account")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{
			Email:    "test@example.com",
			Password: "wrongpassword",
		})
		if err == nil {
			t.Error("expected error for wrong password")
		}
	})

	t.Run("non-existent account", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{
			Email:    "nonexistent@example.com",
			Password: "password123",
		})
		if err == nil {
			t.Error("expected error for non-existent account")
		}
	})

	t.Run("unverified email", func(t *testing.T) {
		svc.SignUp(ctx, SignUpRequest{
			Email:       "unverified@example.com",
			Password:    "password123",
			DisplayName: "Unverified User",
		})

		resp, err := svc.SignIn(ctx, SignInRequest{
			Email:    "unverified@example.com",
			Password: "password123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !resp.RequiresVerify {
			t.Error("expected RequiresVerify to be true for unverified account")
		}
	})
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockAccountStore()
	svc := NewService(mockStore)

	resp, _ := svc.SignUp(ctx, SignUpRequest{
		Email:       "test@example.com",
		Password:    "password123",
		DisplayName: "Test User",
	})

	t.Run("valid token", func(t *testing.T) {
		if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		account, _ := mockStore.GetAccountByID(ctx, resp.AccountID)
		if !account.IsEmailVerified {
			t.Error("expected account to be verified")
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		if err := svc.VerifyEmail(ctx, "invalid-token"); err == nil {
			t.Error("expected error for invalid token")
		}
	})

	t.Run("empty token", func(t *testing.T) {
		if err := svc.VerifyEmail(ctx, ""); err == nil {
			t.Error("expected error for empty token")
		}
	})
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockAccountStore()
	svc := NewService(mockStore)

	resp, _ := svc.SignUp(ctx, SignUpRequest{
		Email:       "test@example.com",
		Password:    "password123",
		DisplayName: "Test User",
	})
	svc.VerifyEmail(ctx, resp.VerificationToken)

	t.Run("request reset for existing account", func(t *testing.T) {
		token, err := svc.RequestPasswordReset(ctx, "test@example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token == "" {
			t.Error("expected token to be generated")
		}
	})

	t.Run("request reset for unknown email - no error", func(t *testing.T) {
		if _, err := svc.RequestPasswordReset(ctx, "nonexistent@example.com"); err != nil {
			t.Errorf("expected no error for unknown email, got: %v", err)
		}
	})

	t.Run("reset password with valid token", func(t *testing.T) {
		token, _ := svc.RequestPasswordReset(ctx, "test@example.com")

		err := svc.ResetPassword(ctx, ResetPasswordRequest{
			Token:       token,
			NewPassword: "newpassword123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "password123"}); err == nil {
			t.Error("expected old password to not work")
		}
		if _, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "newpassword123"}); err != nil {
			t.Errorf("expected new password to work: %v", err)
		}
	})

	t.Run("reset with invalid token", func(t *testing.T) {
		err := svc.ResetPassword(ctx, ResetPasswordRequest{
			Token:       "invalid-token",
			NewPassword: "newpassword123",
		})
		if err == nil {
			t.Error("expected error for invalid token")
		}
	})

	t.Run("reset with short password", func(t *testing.T) {
		err := svc.ResetPassword(ctx, ResetPasswordRequest{
			Token:       "some-token",
			NewPassword: "short",
		})
		if err == nil {
			t.Error("expected error for short password")
		}
	})
}

func TestInvitePasswordHelpers(t *testing.T) {
	hash, err := HashPassword("open sesame")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !CheckPassword(hash, "open sesame") {
		t.Error("expected matching password to verify")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("expected non-matching password to fail")
	}
}
