package authpw

import (
	"context"
	"errors"
	"testing"

	"daybreak/api/internal/store"
)

// mockUserStore is an in-memory UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string // email -> userID
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func (m *mockUserStore) UpdateUserProfile(ctx context.Context, userID, displayName, photoURL string) error {
	user, ok := m.users[userID]
	if !ok {
		return errors.New("user not found")
	}
	user.DisplayName = displayName
	user.PhotoURL = photoURL
	m.users[userID] = user
	return nil
}

func TestSignUpAndSignIn(t *testing.T) {
	svc := NewService(newMockUserStore())
	ctx := context.Background()

	created, err := svc.SignUp(ctx, SignUpRequest{
		Email:    "Deniz@Example.com",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if created.Email != "deniz@example.com" {
		t.Errorf("email not normalized: %q", created.Email)
	}
	if created.DisplayName != "deniz" {
		t.Errorf("expected display name derived from email, got %q", created.DisplayName)
	}

	signedIn, err := svc.SignIn(ctx, SignInRequest{Email: "deniz@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if signedIn.ID != created.ID {
		t.Errorf("SignIn returned wrong user: %s != %s", signedIn.ID, created.ID)
	}
}

func TestSignUpRejectsShortPasswordAndDuplicateEmail(t *testing.T) {
	svc := NewService(newMockUserStore())
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.co", Password: "short"}); err == nil {
		t.Fatal("expected error for short password")
	}

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.co", Password: "long enough"}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.co", Password: "long enough"}); err == nil {
		t.Fatal("expected error for duplicate email")
	}
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	svc := NewService(newMockUserStore())
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.co", Password: "long enough"}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "a@b.co", Password: "wrong password"}); err == nil {
		t.Fatal("expected error for wrong password")
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "missing@b.co", Password: "long enough"}); err == nil {
		t.Fatal("expected error for unknown email")
	}
}

func TestUpdateProfile(t *testing.T) {
	svc := NewService(newMockUserStore())
	ctx := context.Background()

	created, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.co", Password: "long enough"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	updated, err := svc.UpdateProfile(ctx, created.ID, "Deniz K.", "https://example.com/p.jpg")
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.DisplayName != "Deniz K." || updated.PhotoURL != "https://example.com/p.jpg" {
		t.Errorf("profile not updated: %+v", updated)
	}

	if _, err := svc.UpdateProfile(ctx, created.ID, "  ", ""); err == nil {
		t.Fatal("expected error for blank display name")
	}
}
