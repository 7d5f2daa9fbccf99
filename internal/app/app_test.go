package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"livechat-backend/internal/env"
	internaljwt "livechat-backend/internal/jwt"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		env.StoreBackend, env.ChatRedisURL, env.EmployeeSecretKey,
		env.EmployeeRosterFile, env.AssistantAPIKey, env.AllowedOrigins,
	} {
		t.Setenv(key, "")
	}
}

func TestNewWithDefaults(t *testing.T) {
	clearEnv(t)

	a, err := New(context.Background())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer a.Close()

	if a.Sessions == nil || a.Hub == nil || a.Feed == nil {
		t.Fatalf("expected services to be built: %+v", a)
	}
	if a.Auth != nil {
		t.Fatal("employee auth should be disabled without a secret")
	}

	sess, err := a.Sessions.CreateAISession(context.Background(), "visitor", "")
	if err != nil {
		t.Fatalf("CreateAISession error: %v", err)
	}
	if _, err := a.Sessions.GetSession(context.Background(), sess.ID); err != nil {
		t.Fatalf("GetSession error: %v", err)
	}
}

func TestNewEnablesEmployeeAuth(t *testing.T) {
	clearEnv(t)

	hash, err := internaljwt.HashPassword("pa55word")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "employees.json")
	body := `[{"id":"e1","name":"Employee One","email":"one@example.com","passwordHash":"` + hash + `"}]`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	t.Setenv(env.EmployeeSecretKey, "secret")
	t.Setenv(env.EmployeeRosterFile, path)

	a, err := New(context.Background())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer a.Close()

	if a.Auth == nil {
		t.Fatal("expected employee auth to be enabled")
	}
}

func TestNewRequiresRosterWithSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv(env.EmployeeSecretKey, "secret")

	if _, err := New(context.Background()); err == nil {
		t.Fatal("expected missing roster file to fail")
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv(env.StoreBackend, "floppy")

	if _, err := New(context.Background()); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
}
