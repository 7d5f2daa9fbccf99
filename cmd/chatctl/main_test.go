package main

import (
	"bytes"
	"strings"
	"testing"

	"livechat-backend/internal/env"
	internaljwt "livechat-backend/internal/jwt"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv(env.StoreBackend, "memory")
	t.Setenv(env.ChatRedisURL, "")
	t.Setenv(env.EmployeeSecretKey, "")
	t.Setenv(env.AssistantAPIKey, "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--env-file", "does-not-exist.env"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSessionsListEmptyStore(t *testing.T) {
	out, err := runCLI(t, "", "sessions", "list", "--index", "ai")
	if err != nil {
		t.Fatalf("sessions list error: %v", err)
	}
	if !strings.Contains(out, "No sessions found.") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSessionsListRejectsUnknownIndex(t *testing.T) {
	if _, err := runCLI(t, "", "sessions", "list", "--index", "closed"); err == nil {
		t.Fatal("expected an unknown index to fail")
	}
	listIndex = "pending"
}

func TestSessionsShowMissing(t *testing.T) {
	if _, err := runCLI(t, "", "sessions", "show", "chat_missing"); err == nil {
		t.Fatal("expected a missing session to fail")
	}
}

func TestHashPasswordFromStdin(t *testing.T) {
	out, err := runCLI(t, "hunter2\n", "employees", "hash-password")
	if err != nil {
		t.Fatalf("hash-password error: %v", err)
	}
	hash := strings.TrimSpace(out)
	if !internaljwt.ValidatePassword(hash, "hunter2") {
		t.Fatalf("printed hash %q does not match the password", hash)
	}
}
