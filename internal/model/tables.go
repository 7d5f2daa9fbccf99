package model

import (
	"time"
)

const (
	SessionsTable = "ChatSessions"

	SessionsByStatusIndex   = "byStatus"
	SessionsByEmployeeIndex = "byEmployee"

	SessionsTTLAttribute = "expiresAt"
)

// SessionItem is the DynamoDB shape of a session. ActiveEmployeeID is only
// present while an employee owns an active session, which keeps the
// byEmployee index sparse.
type SessionItem struct {
	ChatID           string        `dynamodbav:"chatId"`
	UserID           string        `dynamodbav:"userId"`
	UserName         string        `dynamodbav:"userName,omitempty"`
	ChatMode         string        `dynamodbav:"chatMode"`
	Status           string        `dynamodbav:"status"`
	EmployeeID       string        `dynamodbav:"employeeId,omitempty"`
	EmployeeName     string        `dynamodbav:"employeeName,omitempty"`
	ActiveEmployeeID string        `dynamodbav:"activeEmployeeId,omitempty"`
	CreatedAt        string        `dynamodbav:"createdAt"`
	UpdatedAt        string        `dynamodbav:"updatedAt"`
	Messages         []MessageItem `dynamodbav:"messages"`
	Takeover         *TakeoverItem `dynamodbav:"takeover,omitempty"`
	Version          int64         `dynamodbav:"version"`
	ExpiresAt        int64         `dynamodbav:"expiresAt"`
}

type MessageItem struct {
	MessageID    string `dynamodbav:"messageId"`
	Role         string `dynamodbav:"role"`
	Content      string `dynamodbav:"content"`
	EmployeeID   string `dynamodbav:"employeeId,omitempty"`
	EmployeeName string `dynamodbav:"employeeName,omitempty"`
	CreatedAt    string `dynamodbav:"createdAt"`
}

type TakeoverItem struct {
	TakenOverAt            string       `dynamodbav:"takenOverAt"`
	TakenOverBy            string       `dynamodbav:"takenOverBy"`
	TakenOverByName        string       `dynamodbav:"takenOverByName"`
	AISessionDuration      int64        `dynamodbav:"aiSessionDuration"`
	MessageCountAtTakeover int          `dynamodbav:"messageCountAtTakeover"`
	LastAIMessage          *MessageItem `dynamodbav:"lastAIMessage,omitempty"`
}

func NewSessionItem(s Session, version int64, expiresAt time.Time) SessionItem {
	item := SessionItem{
		ChatID:    s.ID,
		UserID:    s.UserID,
		UserName:  s.UserName,
		ChatMode:  string(s.ChatMode),
		Status:    string(s.Status),
		CreatedAt: formatTime(s.CreatedAt),
		UpdatedAt: formatTime(s.UpdatedAt),
		Messages:  make([]MessageItem, 0, len(s.Messages)),
		Version:   version,
		ExpiresAt: expiresAt.Unix(),
	}
	if s.Employee != nil {
		item.EmployeeID = s.Employee.ID
		item.EmployeeName = s.Employee.Name
		if s.Status == SessionStatusActive {
			item.ActiveEmployeeID = s.Employee.ID
		}
	}
	for _, m := range s.Messages {
		item.Messages = append(item.Messages, newMessageItem(m))
	}
	if s.Takeover != nil {
		tk := &TakeoverItem{
			TakenOverAt:            formatTime(s.Takeover.TakenOverAt),
			TakenOverBy:            s.Takeover.TakenOverBy,
			TakenOverByName:        s.Takeover.TakenOverByName,
			AISessionDuration:      s.Takeover.AISessionDuration,
			MessageCountAtTakeover: s.Takeover.MessageCountAtTakeover,
		}
		if s.Takeover.LastAIMessage != nil {
			last := newMessageItem(*s.Takeover.LastAIMessage)
			tk.LastAIMessage = &last
		}
		item.Takeover = tk
	}
	return item
}

// Session converts the item back. Timestamps that fail to parse are reported
// so callers can treat the record as corrupt.
func (item SessionItem) Session() (Session, error) {
	created, err := parseTime(item.CreatedAt)
	if err != nil {
		return Session{}, err
	}
	updated, err := parseTime(item.UpdatedAt)
	if err != nil {
		return Session{}, err
	}

	s := Session{
		ID:        item.ChatID,
		UserID:    item.UserID,
		UserName:  item.UserName,
		ChatMode:  ChatMode(item.ChatMode),
		Status:    SessionStatus(item.Status),
		CreatedAt: created,
		UpdatedAt: updated,
		Messages:  make([]Message, 0, len(item.Messages)),
	}
	if item.EmployeeID != "" {
		s.Employee = &Employee{ID: item.EmployeeID, Name: item.EmployeeName}
	}
	for _, mi := range item.Messages {
		m, err := mi.message(item.ChatID)
		if err != nil {
			return Session{}, err
		}
		s.Messages = append(s.Messages, m)
	}
	if item.Takeover != nil {
		at, err := parseTime(item.Takeover.TakenOverAt)
		if err != nil {
			return Session{}, err
		}
		tk := &TakeoverMetadata{
			TakenOverAt:            at,
			TakenOverBy:            item.Takeover.TakenOverBy,
			TakenOverByName:        item.Takeover.TakenOverByName,
			AISessionDuration:      item.Takeover.AISessionDuration,
			MessageCountAtTakeover: item.Takeover.MessageCountAtTakeover,
		}
		if item.Takeover.LastAIMessage != nil {
			last, err := item.Takeover.LastAIMessage.message(item.ChatID)
			if err != nil {
				return Session{}, err
			}
			tk.LastAIMessage = &last
		}
		s.Takeover = tk
	}
	return s, nil
}

func newMessageItem(m Message) MessageItem {
	mi := MessageItem{
		MessageID: m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: formatTime(m.Timestamp),
	}
	if m.Employee != nil {
		mi.EmployeeID = m.Employee.ID
		mi.EmployeeName = m.Employee.Name
	}
	return mi
}

func (mi MessageItem) message(chatID string) (Message, error) {
	ts, err := parseTime(mi.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	m := Message{
		ID:        mi.MessageID,
		ChatID:    chatID,
		Role:      Role(mi.Role),
		Content:   mi.Content,
		Timestamp: ts,
	}
	if m.Role == RoleEmployee && mi.EmployeeID != "" {
		m.Employee = &Employee{ID: mi.EmployeeID, Name: mi.EmployeeName}
	}
	return m, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(ts string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, ts)
}
