package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"livechat-backend/internal/model"

	"gorm.io/gorm"
)

var errVersionConflict = errors.New("session version changed")

type sessionRecord struct {
	ID           string                  `gorm:"primaryKey;size:64"`
	UserID       string                  `gorm:"size:128;not null"`
	UserName     string                  `gorm:"size:255"`
	ChatMode     string                  `gorm:"size:8;not null;index:idx_chat_sessions_listing,priority:2"`
	Status       string                  `gorm:"size:16;not null;index:idx_chat_sessions_listing,priority:1;index:idx_chat_sessions_employee,priority:2"`
	EmployeeID   string                  `gorm:"size:128;index:idx_chat_sessions_employee,priority:1"`
	EmployeeName string                  `gorm:"size:255"`
	Takeover     *model.TakeoverMetadata `gorm:"serializer:json"`
	Version      int64                   `gorm:"not null"`
	CreatedAt    time.Time               `gorm:"autoCreateTime:false;not null"`
	UpdatedAt    time.Time               `gorm:"autoUpdateTime:false;not null"`
	ExpiresAt    time.Time               `gorm:"not null;index"`
}

func (sessionRecord) TableName() string {
	return "chat_sessions"
}

type messageRecord struct {
	Seq          uint      `gorm:"primaryKey;autoIncrement"`
	ID           string    `gorm:"size:64;uniqueIndex"`
	ChatID       string    `gorm:"size:64;not null;index"`
	Role         string    `gorm:"size:16;not null"`
	Content      string    `gorm:"type:text;not null"`
	EmployeeID   string    `gorm:"size:128"`
	EmployeeName string    `gorm:"size:255"`
	Timestamp    time.Time `gorm:"not null"`
}

func (messageRecord) TableName() string {
	return "chat_messages"
}

// SQLRepository stores sessions in chat_sessions and their history in
// chat_messages. Listings are plain indexed queries, so they are always in
// step with the records. Updates are optimistic on the version column.
type SQLRepository struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewSQLRepository(db *gorm.DB, ttl time.Duration, now func() time.Time) *SQLRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &SQLRepository{db: db, ttl: ttl, now: now}
}

// Migrate creates or updates the tables.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&sessionRecord{}, &messageRecord{})
}

func (r *SQLRepository) CreateSession(ctx context.Context, s model.Session) error {
	rec := newSessionRecord(s, 1, r.now().Add(r.ttl))
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&sessionRecord{}).Where("id = ?", s.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrExists
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("insert session %s: %w", s.ID, err)
		}
		return insertMessages(tx, s.Messages)
	})
}

func (r *SQLRepository) GetSession(ctx context.Context, chatID string) (model.Session, error) {
	var s model.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := r.loadRecord(tx, chatID)
		if err != nil {
			return err
		}
		sessions, err := attachMessages(tx, []sessionRecord{rec})
		if err != nil {
			return err
		}
		s = sessions[0]
		return nil
	})
	return s, err
}

func (r *SQLRepository) UpdateSession(ctx context.Context, chatID string, mutate func(*model.Session) error) (model.Session, error) {
	var result model.Session
	err := defaultContention.run(ctx, chatID, func() (bool, error) {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			rec, err := r.loadRecord(tx, chatID)
			if err != nil {
				return err
			}
			sessions, err := attachMessages(tx, []sessionRecord{rec})
			if err != nil {
				return err
			}
			current := sessions[0]

			next := current.Clone()
			if err := mutate(&next); err != nil {
				return err
			}
			if len(next.Messages) < len(current.Messages) {
				return fmt.Errorf("%w: session %s lost messages", ErrCorrupt, chatID)
			}

			updated := newSessionRecord(next, rec.Version+1, r.now().Add(r.ttl))
			res := tx.Model(&rec).
				Where("version = ?", rec.Version).
				Select("*").
				Omit("id", "created_at").
				Updates(&updated)
			if res.Error != nil {
				return fmt.Errorf("update session %s: %w", chatID, res.Error)
			}
			if res.RowsAffected == 0 {
				return errVersionConflict
			}
			if err := insertMessages(tx, next.Messages[len(current.Messages):]); err != nil {
				return err
			}
			result = next
			return nil
		})
		if errors.Is(err, errVersionConflict) {
			return false, nil
		}
		return err == nil, err
	})
	if err != nil {
		return model.Session{}, err
	}
	return result, nil
}

func (r *SQLRepository) ListSessions(ctx context.Context, index Index) ([]model.Session, error) {
	q := r.db.WithContext(ctx).Where("expires_at > ?", r.now().UTC())
	switch index {
	case IndexPending:
		q = q.Where("status = ? AND chat_mode = ?", model.SessionStatusPending, model.ChatModeLive)
	case IndexAI:
		q = q.Where("status = ? AND chat_mode = ?", model.SessionStatusActive, model.ChatModeAI)
	case IndexActive:
		q = q.Where("status = ?", model.SessionStatusActive)
	default:
		return nil, fmt.Errorf("unknown index %q", index)
	}
	return r.list(ctx, q)
}

func (r *SQLRepository) ListEmployeeSessions(ctx context.Context, employeeID string) ([]model.Session, error) {
	q := r.db.WithContext(ctx).
		Where("expires_at > ?", r.now().UTC()).
		Where("status = ? AND employee_id = ?", model.SessionStatusActive, employeeID)
	return r.list(ctx, q)
}

func (r *SQLRepository) list(ctx context.Context, q *gorm.DB) ([]model.Session, error) {
	var recs []sessionRecord
	if err := q.Order("created_at, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(recs) == 0 {
		return []model.Session{}, nil
	}
	return attachMessages(r.db.WithContext(ctx), recs)
}

func (r *SQLRepository) loadRecord(tx *gorm.DB, chatID string) (sessionRecord, error) {
	var rec sessionRecord
	err := tx.Where("id = ? AND expires_at > ?", chatID, r.now().UTC()).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sessionRecord{}, ErrNotFound
	}
	if err != nil {
		return sessionRecord{}, fmt.Errorf("load session %s: %w", chatID, err)
	}
	return rec, nil
}

func attachMessages(tx *gorm.DB, recs []sessionRecord) ([]model.Session, error) {
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}

	var rows []messageRecord
	if err := tx.Where("chat_id IN ?", ids).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	byChat := make(map[string][]model.Message, len(recs))
	for _, row := range rows {
		byChat[row.ChatID] = append(byChat[row.ChatID], row.message())
	}

	out := make([]model.Session, 0, len(recs))
	for _, rec := range recs {
		s := rec.session()
		if msgs, ok := byChat[rec.ID]; ok {
			s.Messages = msgs
		}
		out = append(out, s)
	}
	return out, nil
}

func insertMessages(tx *gorm.DB, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]messageRecord, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, newMessageRecord(m))
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}
	return nil
}

func newSessionRecord(s model.Session, version int64, expiresAt time.Time) sessionRecord {
	rec := sessionRecord{
		ID:        s.ID,
		UserID:    s.UserID,
		UserName:  s.UserName,
		ChatMode:  string(s.ChatMode),
		Status:    string(s.Status),
		Takeover:  s.Takeover,
		Version:   version,
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
		ExpiresAt: expiresAt.UTC(),
	}
	if s.Employee != nil {
		rec.EmployeeID = s.Employee.ID
		rec.EmployeeName = s.Employee.Name
	}
	return rec
}

func (rec sessionRecord) session() model.Session {
	s := model.Session{
		ID:        rec.ID,
		UserID:    rec.UserID,
		UserName:  rec.UserName,
		ChatMode:  model.ChatMode(rec.ChatMode),
		Status:    model.SessionStatus(rec.Status),
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
		Messages:  []model.Message{},
		Takeover:  rec.Takeover,
	}
	if rec.EmployeeID != "" {
		s.Employee = &model.Employee{ID: rec.EmployeeID, Name: rec.EmployeeName}
	}
	return s
}

func newMessageRecord(m model.Message) messageRecord {
	row := messageRecord{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Role:      string(m.Role),
		Content:   m.Content,
		Timestamp: m.Timestamp.UTC(),
	}
	if m.Employee != nil {
		row.EmployeeID = m.Employee.ID
		row.EmployeeName = m.Employee.Name
	}
	return row
}

func (row messageRecord) message() model.Message {
	m := model.Message{
		ID:        row.ID,
		ChatID:    row.ChatID,
		Role:      model.Role(row.Role),
		Content:   row.Content,
		Timestamp: row.Timestamp.UTC(),
	}
	if m.Role == model.RoleEmployee && row.EmployeeID != "" {
		m.Employee = &model.Employee{ID: row.EmployeeID, Name: row.EmployeeName}
	}
	return m
}
