package session

import (
	"context"
	"errors"
	"sort"

	"livechat-backend/internal/model"
)

var (
	ErrNotFound = errors.New("session repository: not found")
	ErrCorrupt  = errors.New("session repository: corrupt record")
	ErrExists   = errors.New("session repository: session already exists")
	// ErrContention is returned when an optimistic update kept losing races.
	ErrContention = errors.New("session repository: too much contention")
)

// Index is a derived listing kept alongside the session records.
type Index string

const (
	IndexPending Index = "pending"
	IndexAI      Index = "ai"
	IndexActive  Index = "active"
)

var allIndexes = []Index{IndexPending, IndexAI, IndexActive}

// Matches is the source of truth for index membership. Listings re-check it
// against the primary record, so stale index entries never leak out.
func (i Index) Matches(s model.Session) bool {
	switch i {
	case IndexPending:
		return s.IsLivePending()
	case IndexAI:
		return s.IsAIActive()
	case IndexActive:
		return s.Status == model.SessionStatusActive
	}
	return false
}

func ParseIndex(v string) (Index, bool) {
	for _, idx := range allIndexes {
		if string(idx) == v {
			return idx, true
		}
	}
	return "", false
}

// indexMemberships lists every index s belongs to.
func indexMemberships(s model.Session) []Index {
	out := make([]Index, 0, 2)
	for _, idx := range allIndexes {
		if idx.Matches(s) {
			out = append(out, idx)
		}
	}
	return out
}

// employeeIndexOwner returns the employee whose index should hold s, or ""
// when s must not appear in any employee listing.
func employeeIndexOwner(s model.Session) string {
	if s.Status != model.SessionStatusActive {
		return ""
	}
	return s.EmployeeID()
}

func ownedBy(employeeID string, s model.Session) bool {
	return employeeID != "" && employeeIndexOwner(s) == employeeID
}

type Repository interface {
	CreateSession(ctx context.Context, s model.Session) error
	GetSession(ctx context.Context, chatID string) (model.Session, error)
	// UpdateSession applies mutate to the current record and stores the
	// result together with every index entry it implies, atomically per
	// session. mutate may run more than once and must only touch its
	// argument. An error from mutate aborts the update and is returned as is.
	UpdateSession(ctx context.Context, chatID string, mutate func(*model.Session) error) (model.Session, error)
	ListSessions(ctx context.Context, index Index) ([]model.Session, error)
	ListEmployeeSessions(ctx context.Context, employeeID string) ([]model.Session, error)
}

// sortOldestFirst orders listings by creation time with the id as a stable
// tie breaker.
func sortOldestFirst(sessions []model.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
