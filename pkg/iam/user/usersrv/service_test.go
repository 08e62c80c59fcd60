package usersrv

import (
	"context"
	"testing"

	"github.com/Abraxas-365/aegis/pkg/cryptox"
	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/iam/user"
	"github.com/Abraxas-365/aegis/pkg/kernel"
)

type mockUserRepo struct {
	byID    map[kernel.UserID]*user.User
	byEmail map[string]*user.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		byID:    make(map[kernel.UserID]*user.User),
		byEmail: make(map[string]*user.User),
	}
}

func (m *mockUserRepo) Create(_ context.Context, u *user.User) error {
	if _, exists := m.byEmail[u.Email]; exists {
		return user.ErrDuplicateEmail()
	}
	cp := *u
	m.byID[u.ID] = &cp
	m.byEmail[u.Email] = &cp
	return nil
}

func (m *mockUserRepo) FindByID(_ context.Context, id kernel.UserID) (*user.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound()
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (*user.User, error) {
	u, ok := m.byEmail[user.NormalizeEmail(email)]
	if !ok {
		return nil, user.ErrNotFound()
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) UpdateLastLogin(_ context.Context, id kernel.UserID) error { return nil }

func (m *mockUserRepo) SetPasswordHash(_ context.Context, id kernel.UserID, hash string) error {
	u, ok := m.byID[id]
	if !ok {
		return user.ErrNotFound()
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockUserRepo) MarkEmailVerified(_ context.Context, id kernel.UserID) error {
	u, ok := m.byID[id]
	if !ok {
		return user.ErrNotFound()
	}
	u.EmailVerified = true
	return nil
}

func (m *mockUserRepo) ListRecent(_ context.Context, limit int) ([]*user.User, error) {
	out := make([]*user.User, 0, len(m.byID))
	for _, u := range m.byID {
		cp := *u
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func newService() (*UserService, *mockUserRepo) {
	repo := newMockUserRepo()
	return NewUserService(repo, cryptox.NewPasswordHasherForTest(1000)), repo
}

func TestCreateUser(t *testing.T) {
	svc, _ := newService()

	u, err := svc.Create(context.Background(), "User@Example.COM", "SecureP@ss123", "jane")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Email != "user@example.com" {
		t.Errorf("email not normalized: %s", u.Email)
	}
	if u.EmailVerified {
		t.Error("new accounts must start unverified")
	}
	if u.Status != user.StatusActive {
		t.Errorf("status = %s, want active", u.Status)
	}
	if u.PasswordHash == "" || u.PasswordHash == "SecureP@ss123" {
		t.Error("password must be stored hashed")
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	svc, _ := newService()

	if _, err := svc.Create(context.Background(), "user@example.com", "SecureP@ss123", "a"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(context.Background(), "USER@example.com", "SecureP@ss123", "b")
	if !errx.IsCode(err, user.CodeDuplicateEmail) {
		t.Errorf("expected duplicate-email error, got %v", err)
	}
}

func TestCreateRejectsWeakPasswords(t *testing.T) {
	svc, _ := newService()

	weak := []string{
		"short1!",        // too short
		"alllower1!",     // no upper
		"ALLUPPER1!",     // no lower
		"NoDigits!!",     // no digit
		"NoSymbols11Aa",  // no symbol
	}
	for _, pw := range weak {
		if _, err := svc.Create(context.Background(), "x@example.com", pw, "x"); !errx.IsCode(err, user.CodeWeakPassword) {
			t.Errorf("password %q: expected weak-password error, got %v", pw, err)
		}
	}
}

func TestCreateRejectsBadEmail(t *testing.T) {
	svc, _ := newService()

	for _, email := range []string{"", "nodomain", "@example.com", "a@", "a b@example.com", "a@nodot"} {
		if _, err := svc.Create(context.Background(), email, "SecureP@ss123", "x"); !errx.IsCode(err, user.CodeInvalidEmail) {
			t.Errorf("email %q: expected invalid-email error, got %v", email, err)
		}
	}
}

func TestGetByEmailNormalizes(t *testing.T) {
	svc, _ := newService()
	created, _ := svc.Create(context.Background(), "user@example.com", "SecureP@ss123", "x")

	u, err := svc.GetByEmail(context.Background(), "  USER@Example.com ")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if u.ID != created.ID {
		t.Error("lookup returned a different principal")
	}
}
