package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"livechat-backend/internal/database"
	"livechat-backend/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

type repoHarness struct {
	repo    Repository
	clock   *testClock
	advance func(d time.Duration)
}

var sqliteDBCounter atomic.Int64

func backends() map[string]func(t *testing.T) repoHarness {
	return map[string]func(t *testing.T) repoHarness{
		"memory": func(t *testing.T) repoHarness {
			clock := newTestClock()
			return repoHarness{
				repo:    NewMemoryRepository(DefaultTTL, clock.Now),
				clock:   clock,
				advance: clock.Advance,
			}
		},
		"redis": func(t *testing.T) repoHarness {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			clock := newTestClock()
			return repoHarness{
				repo:  NewRedisRepository(client, "test", DefaultTTL),
				clock: clock,
				advance: func(d time.Duration) {
					clock.Advance(d)
					mr.FastForward(d)
				},
			}
		},
		"dynamodb": func(t *testing.T) repoHarness {
			clock := newTestClock()
			return repoHarness{
				repo:    newDynamoRepository(newFakeDynamo(), "", DefaultTTL, clock.Now),
				clock:   clock,
				advance: clock.Advance,
			}
		},
		"sql": func(t *testing.T) repoHarness {
			dsn := fmt.Sprintf("file:sessions%d?mode=memory&cache=shared", sqliteDBCounter.Add(1))
			db, err := database.OpenSQL("sqlite", dsn)
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() {
				if sqlDB, err := db.DB(); err == nil {
					sqlDB.Close()
				}
			})
			clock := newTestClock()
			repo := NewSQLRepository(db, DefaultTTL, clock.Now)
			if err := repo.Migrate(context.Background()); err != nil {
				t.Fatalf("migrate: %v", err)
			}
			return repoHarness{repo: repo, clock: clock, advance: clock.Advance}
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, h repoHarness)) {
	for name, open := range backends() {
		open := open
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h repoHarness) {
		ctx := context.Background()
		svc := New(h.repo, WithClock(h.clock.Now))

		sess, err := svc.CreateAISession(ctx, "u1", "Ada")
		if err != nil {
			t.Fatalf("CreateAISession error: %v", err)
		}
		addMessage(t, svc, sess.ID, model.RoleUser, "hello")
		addMessage(t, svc, sess.ID, model.RoleAssistant, "hi there")
		if _, err := svc.ConvertAIToLive(ctx, sess.ID, "e1", "Employee One"); err != nil {
			t.Fatalf("ConvertAIToLive error: %v", err)
		}
		addMessage(t, svc, sess.ID, model.RoleEmployee, "taking it from here")

		got, err := h.repo.GetSession(ctx, sess.ID)
		if err != nil {
			t.Fatalf("GetSession error: %v", err)
		}
		if got.UserName != "Ada" || got.ChatMode != model.ChatModeLive || got.EmployeeID() != "e1" {
			t.Fatalf("unexpected session %+v", got)
		}
		if !got.CreatedAt.Equal(sess.CreatedAt) {
			t.Fatalf("createdAt changed: %v vs %v", got.CreatedAt, sess.CreatedAt)
		}
		if len(got.Messages) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(got.Messages))
		}
		if got.Messages[0].Employee != nil || got.Messages[1].Employee != nil {
			t.Fatal("visitor and assistant messages must not carry employee fields")
		}
		emp := got.Messages[2].Employee
		if emp == nil || emp.ID != "e1" || emp.Name != "Employee One" {
			t.Fatalf("unexpected employee on message: %+v", emp)
		}
		if got.Takeover == nil || got.Takeover.MessageCountAtTakeover != 2 {
			t.Fatalf("unexpected takeover metadata %+v", got.Takeover)
		}
		if got.Takeover.LastAIMessage == nil || got.Takeover.LastAIMessage.Content != "hi there" {
			t.Fatalf("unexpected last AI message %+v", got.Takeover.LastAIMessage)
		}
	})
}

func TestRepositoryRejectsDuplicateCreate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h repoHarness) {
		ctx := context.Background()
		now := h.clock.Now()
		s := model.Session{
			ID:        "chat_dup",
			UserID:    "u1",
			ChatMode:  model.ChatModeLive,
			Status:    model.SessionStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
			Messages:  []model.Message{},
		}
		if err := h.repo.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession error: %v", err)
		}
		if err := h.repo.CreateSession(ctx, s); !errors.Is(err, ErrExists) {
			t.Fatalf("expected ErrExists, got %v", err)
		}
	})
}

func TestRepositoryMutateErrorLeavesRecord(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h repoHarness) {
		ctx := context.Background()
		svc := New(h.repo, WithClock(h.clock.Now))
		sess, _ := svc.CreateSession(ctx, "u1", "")

		veto := errors.New("veto")
		_, err := h.repo.UpdateSession(ctx, sess.ID, func(s *model.Session) error {
			s.Status = model.SessionStatusClosed
			return veto
		})
		if !errors.Is(err, veto) {
			t.Fatalf("expected mutate error, got %v", err)
		}

		got, _ := h.repo.GetSession(ctx, sess.ID)
		if got.Status != model.SessionStatusPending {
			t.Fatalf("aborted update was stored: %s", got.Status)
		}
		pending, _ := h.repo.ListSessions(ctx, IndexPending)
		if !containsSession(pending, sess.ID) {
			t.Fatal("aborted update changed the pending listing")
		}
	})
}

func TestRepositoryListingsFollowTransitions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h repoHarness) {
		ctx := context.Background()
		svc := New(h.repo, WithClock(h.clock.Now))

		ai, _ := svc.CreateAISession(ctx, "u1", "")
		h.advance(time.Second)
		live, _ := svc.CreateSession(ctx, "u2", "")

		if _, err := svc.AssignEmployee(ctx, live.ID, "e1", "Employee One"); err != nil {
			t.Fatalf("AssignEmployee error: %v", err)
		}
		if _, err := svc.ConvertAIToLive(ctx, ai.ID, "e1", "Employee One"); err != nil {
			t.Fatalf("ConvertAIToLive error: %v", err)
		}

		mine, err := svc.GetEmployeeActiveSessions(ctx, "e1")
		if err != nil {
			t.Fatalf("GetEmployeeActiveSessions error: %v", err)
		}
		if len(mine) != 2 {
			t.Fatalf("expected 2 sessions for e1, got %d", len(mine))
		}
		if mine[0].ID != ai.ID {
			t.Fatalf("expected oldest first, got %s", mine[0].ID)
		}

		if _, err := svc.CloseSession(ctx, ai.ID); err != nil {
			t.Fatalf("CloseSession error: %v", err)
		}
		mine, _ = svc.GetEmployeeActiveSessions(ctx, "e1")
		if len(mine) != 1 || mine[0].ID != live.ID {
			t.Fatalf("unexpected employee listing after close: %d", len(mine))
		}
		active, _ := svc.GetAllActiveSessions(ctx)
		if containsSession(active, ai.ID) || !containsSession(active, live.ID) {
			t.Fatal("unexpected active listing after close")
		}
		aiList, _ := svc.GetAllAISessions(ctx)
		pending, _ := svc.GetAllPendingSessions(ctx)
		if len(aiList) != 0 || len(pending) != 0 {
			t.Fatalf("expected empty AI and pending listings, got %d and %d", len(aiList), len(pending))
		}
	})
}

func TestRepositoryExpiry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h repoHarness) {
		ctx := context.Background()
		svc := New(h.repo, WithClock(h.clock.Now))
		sess, _ := svc.CreateSession(ctx, "u1", "")

		h.advance(DefaultTTL + time.Minute)

		if _, err := h.repo.GetSession(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		pending, err := h.repo.ListSessions(ctx, IndexPending)
		if err != nil {
			t.Fatalf("ListSessions error: %v", err)
		}
		if containsSession(pending, sess.ID) {
			t.Fatal("expired session still listed")
		}
		_, err = h.repo.UpdateSession(ctx, sess.ID, func(s *model.Session) error { return nil })
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on update, got %v", err)
		}
	})
}

func TestRepositoryConcurrentTakeover(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h repoHarness) {
		ctx := context.Background()
		svc := New(h.repo, WithClock(h.clock.Now))
		sess, _ := svc.CreateAISession(ctx, "u1", "")

		const contenders = 8
		var wg sync.WaitGroup
		var wins atomic.Int32
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := svc.ConvertAIToLive(ctx, sess.ID, fmt.Sprintf("e%d", i), fmt.Sprintf("Employee %d", i))
				if err == nil {
					wins.Add(1)
					return
				}
				if ReasonOf(err) != ReasonNotAIMode {
					t.Errorf("unexpected takeover error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		if wins.Load() != 1 {
			t.Fatalf("expected one winner, got %d", wins.Load())
		}
		got, _ := h.repo.GetSession(ctx, sess.ID)
		if got.Employee.Name != "Employee "+got.EmployeeID()[1:] {
			t.Fatalf("torn employee write: %+v", got.Employee)
		}
	})
}

func TestRepositoryConcurrentAppends(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h repoHarness) {
		ctx := context.Background()
		svc := New(h.repo, WithClock(h.clock.Now))
		sess, _ := svc.CreateAISession(ctx, "u1", "")

		const writers = 40
		var wg sync.WaitGroup
		var failures atomic.Int32
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := svc.AddMessage(ctx, AddMessageParams{
					ChatID:  sess.ID,
					Role:    string(model.RoleUser),
					Content: fmt.Sprintf("message %d", i),
				})
				if err != nil {
					failures.Add(1)
					t.Errorf("AddMessage %d: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		if failures.Load() != 0 {
			t.Fatalf("%d of %d appends failed", failures.Load(), writers)
		}
		got, err := h.repo.GetSession(ctx, sess.ID)
		if err != nil {
			t.Fatalf("GetSession error: %v", err)
		}
		if len(got.Messages) != writers {
			t.Fatalf("expected %d messages, got %d", writers, len(got.Messages))
		}
		for i := 1; i < len(got.Messages); i++ {
			prev, cur := got.Messages[i-1], got.Messages[i]
			if cur.ID <= prev.ID {
				t.Fatalf("message %d id %s does not sort after %s", i, cur.ID, prev.ID)
			}
			if cur.Timestamp.Before(prev.Timestamp) {
				t.Fatalf("message %d timestamp %v is before %v", i, cur.Timestamp, prev.Timestamp)
			}
		}
	})
}

func TestRedisListingPrunesStaleEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	repo := NewRedisRepository(client, "test", DefaultTTL)
	svc := New(repo)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, "u1", "")
	if _, err := svc.CloseSession(ctx, sess.ID); err != nil {
		t.Fatalf("CloseSession error: %v", err)
	}

	// Simulate an index entry left behind by an interrupted writer.
	mr.SAdd("test:idx:pending", sess.ID)
	mr.SAdd("test:idx:pending", "chat_gone")

	pending, err := repo.ListSessions(ctx, IndexPending)
	if err != nil {
		t.Fatalf("ListSessions error: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("stale entries leaked into listing: %d", len(pending))
	}
	members, _ := mr.Members("test:idx:pending")
	if len(members) != 0 {
		t.Fatalf("stale entries not pruned: %v", members)
	}
}

func TestRedisCorruptRecordIsInternal(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	svc := New(NewRedisRepository(client, "test", DefaultTTL))

	mr.Set("test:session:chat_bad", "{not json")

	_, err := svc.GetSession(context.Background(), "chat_bad")
	if CodeOf(err) != ErrorCodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestRedisUnavailableIsRetryable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	svc := New(NewRedisRepository(client, "test", DefaultTTL))
	mr.Close()

	_, err := svc.GetSession(context.Background(), "chat_1")
	if CodeOf(err) != ErrorCodeUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestParseIndex(t *testing.T) {
	for _, v := range []string{"pending", "ai", "active"} {
		if _, ok := ParseIndex(v); !ok {
			t.Fatalf("expected %q to parse", v)
		}
	}
	if _, ok := ParseIndex("closed"); ok {
		t.Fatal("closed is not a listing")
	}
}
