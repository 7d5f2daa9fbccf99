package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	internaljwt "livechat-backend/internal/jwt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := internaljwt.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	roster, err := NewStaticRoster(Employee{
		ID:           "e1",
		Name:         "Employee One",
		Email:        "One@Example.com",
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("NewStaticRoster error: %v", err)
	}
	return New(roster, internaljwt.NewIssuer("test-secret", time.Hour))
}

func codeOf(err error) ErrorCode {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return ""
}

func TestLoginIssuesTokenForRosterEmployee(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Login(context.Background(), LoginParams{Email: " one@example.com ", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if res.Employee.ID != "e1" || res.Employee.PasswordHash != "" {
		t.Fatalf("unexpected employee %+v", res.Employee)
	}

	identity, err := svc.IdentityFromAuthorizationHeader("Bearer " + res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("IdentityFromAuthorizationHeader error: %v", err)
	}
	if identity.EmployeeID != "e1" || identity.Name != "Employee One" {
		t.Fatalf("unexpected identity %+v", identity)
	}

	me, err := svc.Me(context.Background(), identity)
	if err != nil {
		t.Fatalf("Me error: %v", err)
	}
	if me.Email != "one@example.com" {
		t.Fatalf("unexpected profile %+v", me)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Login(ctx, LoginParams{Email: "one@example.com", Password: "wrong"}); codeOf(err) != ErrorCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginParams{Email: "nobody@example.com", Password: "correct horse"}); codeOf(err) != ErrorCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginParams{Email: "", Password: ""}); codeOf(err) != ErrorCodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIdentityFromAuthorizationHeaderRejectsMalformed(t *testing.T) {
	svc := newTestService(t)
	for _, header := range []string{"", "Token abc", "Bearer ", "Bearer not-a-token"} {
		if _, err := svc.IdentityFromAuthorizationHeader(header); codeOf(err) != ErrorCodeUnauthorized {
			t.Fatalf("header %q: expected unauthorized, got %v", header, err)
		}
	}
}

func TestLoadRosterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.json")
	body := `[{"id":"e1","name":"One","email":"one@example.com","passwordHash":"x"},
	          {"id":"e2","name":"Two","email":"two@example.com","passwordHash":"y"}]`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write roster: %v", err)
	}

	roster, err := LoadRosterFile(path)
	if err != nil {
		t.Fatalf("LoadRosterFile error: %v", err)
	}
	emp, err := roster.FindByID(context.Background(), "e2")
	if err != nil || emp.Email != "two@example.com" {
		t.Fatalf("unexpected lookup %+v, %v", emp, err)
	}
}

func TestStaticRosterRejectsDuplicates(t *testing.T) {
	_, err := NewStaticRoster(
		Employee{ID: "e1", Name: "One", Email: "a@example.com", PasswordHash: "x"},
		Employee{ID: "e2", Name: "Two", Email: "A@example.com", PasswordHash: "y"},
	)
	if err == nil {
		t.Fatal("expected duplicate email to be rejected")
	}
}
