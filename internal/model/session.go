package model

import "time"

type ChatMode string

const (
	ChatModeAI   ChatMode = "ai"
	ChatModeLive ChatMode = "live"
)

type SessionStatus string

const (
	SessionStatusPending SessionStatus = "pending"
	SessionStatusActive  SessionStatus = "active"
	SessionStatusClosed  SessionStatus = "closed"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleEmployee  Role = "employee"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleEmployee:
		return true
	}
	return false
}

type Employee struct {
	ID   string `json:"employeeId"`
	Name string `json:"employeeName"`
}

// Message is immutable once appended. Employee is set only for RoleEmployee.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	*Employee
}

type TakeoverMetadata struct {
	TakenOverAt            time.Time `json:"takenOverAt"`
	TakenOverBy            string    `json:"takenOverBy"`
	TakenOverByName        string    `json:"takenOverByName"`
	AISessionDuration      int64     `json:"aiSessionDuration"`
	MessageCountAtTakeover int       `json:"messageCountAtTakeover"`
	LastAIMessage          *Message  `json:"lastAIMessage,omitempty"`
}

type Session struct {
	ID       string        `json:"id"`
	UserID   string        `json:"userId"`
	UserName string        `json:"userName,omitempty"`
	ChatMode ChatMode      `json:"chatMode"`
	Status   SessionStatus `json:"status"`
	*Employee
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Messages  []Message         `json:"messages"`
	Takeover  *TakeoverMetadata `json:"takeoverMetadata,omitempty"`
}

// Clone returns a copy that shares no mutable state with s.
func (s Session) Clone() Session {
	out := s
	if s.Employee != nil {
		emp := *s.Employee
		out.Employee = &emp
	}
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	if s.Takeover != nil {
		tk := *s.Takeover
		if tk.LastAIMessage != nil {
			last := tk.LastAIMessage.Clone()
			tk.LastAIMessage = &last
		}
		out.Takeover = &tk
	}
	return out
}

func (m Message) Clone() Message {
	if m.Employee != nil {
		emp := *m.Employee
		m.Employee = &emp
	}
	return m
}

// LastAssistantMessage scans from the end of the history.
func (s Session) LastAssistantMessage() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Clone(), true
		}
	}
	return Message{}, false
}

func (s Session) EmployeeID() string {
	if s.Employee == nil {
		return ""
	}
	return s.Employee.ID
}

func (s Session) IsAIActive() bool {
	return s.ChatMode == ChatModeAI && s.Status == SessionStatusActive
}

func (s Session) IsLivePending() bool {
	return s.ChatMode == ChatModeLive && s.Status == SessionStatusPending
}

// CountByRole returns how many messages of role the history holds.
func (s Session) CountByRole(role Role) int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == role {
			n++
		}
	}
	return n
}

// Draft is a message that has not been appended yet. The constructors keep
// employee attribution tied to the employee role.
type Draft struct {
	role     Role
	content  string
	employee *Employee
}

func UserMessage(content string) Draft {
	return Draft{role: RoleUser, content: content}
}

func AssistantMessage(content string) Draft {
	return Draft{role: RoleAssistant, content: content}
}

func EmployeeMessage(emp Employee, content string) Draft {
	return Draft{role: RoleEmployee, content: content, employee: &emp}
}

func (d Draft) Role() Role {
	return d.role
}

func (d Draft) Content() string {
	return d.content
}

// Message materialises the draft with its identity.
func (d Draft) Message(id, chatID string, at time.Time) Message {
	msg := Message{
		ID:        id,
		ChatID:    chatID,
		Role:      d.role,
		Content:   d.content,
		Timestamp: at,
	}
	if d.employee != nil {
		emp := *d.employee
		msg.Employee = &emp
	}
	return msg
}
