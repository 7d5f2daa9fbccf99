package session

import (
	"context"
	"sync"
	"time"

	"livechat-backend/internal/model"
)

type memoryRecord struct {
	mu        sync.Mutex
	session   model.Session
	expiresAt time.Time
	evicted   bool
}

// MemoryRepository keeps sessions in process. Each record has its own lock;
// the repository lock only guards the maps and is never held while waiting
// on a record.
type MemoryRepository struct {
	mu        sync.RWMutex
	sessions  map[string]*memoryRecord
	indexes   map[Index]map[string]struct{}
	employees map[string]map[string]struct{}
	ttl       time.Duration
	now       func() time.Time
}

func NewMemoryRepository(ttl time.Duration, now func() time.Time) *MemoryRepository {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	repo := &MemoryRepository{
		sessions:  make(map[string]*memoryRecord),
		indexes:   make(map[Index]map[string]struct{}),
		employees: make(map[string]map[string]struct{}),
		ttl:       ttl,
		now:       now,
	}
	for _, idx := range allIndexes {
		repo.indexes[idx] = make(map[string]struct{})
	}
	return repo
}

func (m *MemoryRepository) CreateSession(ctx context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return ErrExists
	}
	m.sessions[s.ID] = &memoryRecord{
		session:   s.Clone(),
		expiresAt: m.now().Add(m.ttl),
	}
	m.addIndexes(s)
	return nil
}

func (m *MemoryRepository) GetSession(ctx context.Context, chatID string) (model.Session, error) {
	rec := m.record(chatID)
	if rec == nil {
		return model.Session{}, ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.evicted || m.expired(rec) {
		m.evict(chatID, rec)
		return model.Session{}, ErrNotFound
	}
	return rec.session.Clone(), nil
}

func (m *MemoryRepository) UpdateSession(ctx context.Context, chatID string, mutate func(*model.Session) error) (model.Session, error) {
	rec := m.record(chatID)
	if rec == nil {
		return model.Session{}, ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.evicted || m.expired(rec) {
		m.evict(chatID, rec)
		return model.Session{}, ErrNotFound
	}

	next := rec.session.Clone()
	if err := mutate(&next); err != nil {
		return model.Session{}, err
	}

	m.mu.Lock()
	m.removeIndexes(rec.session)
	m.addIndexes(next)
	m.mu.Unlock()

	rec.session = next
	rec.expiresAt = m.now().Add(m.ttl)
	return next.Clone(), nil
}

func (m *MemoryRepository) ListSessions(ctx context.Context, index Index) ([]model.Session, error) {
	m.mu.RLock()
	ids := keys(m.indexes[index])
	m.mu.RUnlock()

	return m.collect(ids, index.Matches), nil
}

func (m *MemoryRepository) ListEmployeeSessions(ctx context.Context, employeeID string) ([]model.Session, error) {
	m.mu.RLock()
	ids := keys(m.employees[employeeID])
	m.mu.RUnlock()

	return m.collect(ids, func(s model.Session) bool { return ownedBy(employeeID, s) }), nil
}

// collect re-reads every id under its record lock and keeps the ones that
// still satisfy keep. Expired records are evicted on the way.
func (m *MemoryRepository) collect(ids []string, keep func(model.Session) bool) []model.Session {
	out := make([]model.Session, 0, len(ids))
	for _, id := range ids {
		rec := m.record(id)
		if rec == nil {
			continue
		}
		rec.mu.Lock()
		if rec.evicted || m.expired(rec) {
			m.evict(id, rec)
			rec.mu.Unlock()
			continue
		}
		if keep(rec.session) {
			out = append(out, rec.session.Clone())
		}
		rec.mu.Unlock()
	}
	return out
}

func (m *MemoryRepository) record(chatID string) *memoryRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[chatID]
}

func (m *MemoryRepository) expired(rec *memoryRecord) bool {
	return !m.now().Before(rec.expiresAt)
}

// evict must be called with rec.mu held.
func (m *MemoryRepository) evict(chatID string, rec *memoryRecord) {
	if rec.evicted {
		return
	}
	rec.evicted = true

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[chatID] == rec {
		delete(m.sessions, chatID)
	}
	m.removeIndexes(rec.session)
}

func (m *MemoryRepository) addIndexes(s model.Session) {
	for _, idx := range indexMemberships(s) {
		m.indexes[idx][s.ID] = struct{}{}
	}
	if owner := employeeIndexOwner(s); owner != "" {
		set, ok := m.employees[owner]
		if !ok {
			set = make(map[string]struct{})
			m.employees[owner] = set
		}
		set[s.ID] = struct{}{}
	}
}

func (m *MemoryRepository) removeIndexes(s model.Session) {
	for _, idx := range allIndexes {
		delete(m.indexes[idx], s.ID)
	}
	if owner := employeeIndexOwner(s); owner != "" {
		if set, ok := m.employees[owner]; ok {
			delete(set, s.ID)
			if len(set) == 0 {
				delete(m.employees, owner)
			}
		}
	}
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
