package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"livechat-backend/internal/model"

	"github.com/aws/smithy-go"
)

func newFakeDynamoService(t *testing.T) (*Service, *DynamoRepository, *fakeDynamo) {
	t.Helper()
	clock := newTestClock()
	fake := newFakeDynamo()
	repo := newDynamoRepository(fake, "", DefaultTTL, clock.Now)
	return New(repo, WithClock(clock.Now)), repo, fake
}

func TestIsIndexNotFound(t *testing.T) {
	missing := fmt.Errorf("query ChatSessions[byStatus]: %w", &smithy.GenericAPIError{
		Code:    "ValidationException",
		Message: "The table does not have the specified index: byStatus",
	})
	if !isIndexNotFound(missing) {
		t.Fatal("missing index error not recognised")
	}

	otherValidation := &smithy.GenericAPIError{
		Code:    "ValidationException",
		Message: "One or more parameter values were invalid",
	}
	if isIndexNotFound(otherValidation) {
		t.Fatal("unrelated validation error treated as missing index")
	}
	if isIndexNotFound(errors.New("The table does not have the specified index: byStatus")) {
		t.Fatal("plain error treated as missing index")
	}
	if isIndexNotFound(nil) {
		t.Fatal("nil treated as missing index")
	}
}

func TestDynamoListingsFallBackToScan(t *testing.T) {
	svc, _, fake := newFakeDynamoService(t)
	fake.noIndexes = true
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, "u1", "")
	if _, err := svc.AssignEmployee(ctx, sess.ID, "e1", "Employee One"); err != nil {
		t.Fatalf("AssignEmployee error: %v", err)
	}

	mine, err := svc.GetEmployeeActiveSessions(ctx, "e1")
	if err != nil {
		t.Fatalf("GetEmployeeActiveSessions error: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != sess.ID {
		t.Fatalf("unexpected employee listing: %d", len(mine))
	}
	active, err := svc.GetAllActiveSessions(ctx)
	if err != nil {
		t.Fatalf("GetAllActiveSessions error: %v", err)
	}
	if !containsSession(active, sess.ID) {
		t.Fatal("active listing missed the session")
	}
	if fake.scans != 2 {
		t.Fatalf("expected 2 fallback scans, got %d", fake.scans)
	}
}

func TestDynamoUpdateRetriesLostRaces(t *testing.T) {
	svc, repo, fake := newFakeDynamoService(t)
	ctx := context.Background()
	sess, _ := svc.CreateAISession(ctx, "u1", "")

	fake.conflicts = 3
	runs := 0
	_, err := repo.UpdateSession(ctx, sess.ID, func(s *model.Session) error {
		runs++
		s.UserName = "Ada"
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateSession error: %v", err)
	}
	if runs != 4 {
		t.Fatalf("expected mutate to run 4 times, ran %d", runs)
	}
	got, _ := repo.GetSession(ctx, sess.ID)
	if got.UserName != "Ada" {
		t.Fatalf("update not stored: %+v", got)
	}
}

func TestDynamoUpdateHonoursContextWhileBackingOff(t *testing.T) {
	svc, repo, fake := newFakeDynamoService(t)
	sess, _ := svc.CreateAISession(context.Background(), "u1", "")

	fake.conflicts = defaultContention.maxAttempts
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := repo.UpdateSession(ctx, sess.ID, func(s *model.Session) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDynamoEmployeeIndexIsSparse(t *testing.T) {
	svc, _, fake := newFakeDynamoService(t)
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx, "u1", "")

	if _, ok := fake.items[sess.ID]["activeEmployeeId"]; ok {
		t.Fatal("pending session must not be in the employee index")
	}
	if _, err := svc.AssignEmployee(ctx, sess.ID, "e1", "Employee One"); err != nil {
		t.Fatalf("AssignEmployee error: %v", err)
	}
	if v, _ := stringAttr(fake.items[sess.ID], "activeEmployeeId"); v != "e1" {
		t.Fatalf("expected activeEmployeeId e1, got %q", v)
	}
	if _, err := svc.CloseSession(ctx, sess.ID); err != nil {
		t.Fatalf("CloseSession error: %v", err)
	}
	if _, ok := fake.items[sess.ID]["activeEmployeeId"]; ok {
		t.Fatal("closed session must leave the employee index")
	}
}

func TestDynamoEnsureTableAndDump(t *testing.T) {
	svc, repo, fake := newFakeDynamoService(t)
	ctx := context.Background()

	created, err := repo.EnsureTable(ctx)
	if err != nil || !created {
		t.Fatalf("expected table to be created, got %v %v", created, err)
	}
	if fake.ttlAttr != model.SessionsTTLAttribute {
		t.Fatalf("TTL enabled on %q", fake.ttlAttr)
	}
	if created, _ := repo.EnsureTable(ctx); created {
		t.Fatal("existing table reported as created")
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.CreateSession(ctx, fmt.Sprintf("u%d", i), ""); err != nil {
			t.Fatalf("CreateSession error: %v", err)
		}
	}

	seen := 0
	page, err := repo.Dump(ctx, 2, nil)
	if err != nil {
		t.Fatalf("Dump error: %v", err)
	}
	seen += len(page.Sessions)
	if page.Next == nil {
		t.Fatal("expected a second page")
	}
	page, err = repo.Dump(ctx, 2, page.Next)
	if err != nil {
		t.Fatalf("Dump error: %v", err)
	}
	seen += len(page.Sessions)
	if page.Next != nil {
		t.Fatal("expected the dump to end")
	}
	if seen != 3 {
		t.Fatalf("expected 3 sessions across pages, got %d", seen)
	}
}
