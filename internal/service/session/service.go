package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"livechat-backend/internal/assistant"
	"livechat-backend/internal/model"
)

const defaultHistoryWindow = 20

type Service struct {
	repo          Repository
	now           func() time.Time
	ids           *idGenerator
	publisher     Publisher
	assistant     assistant.Provider
	historyWindow int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithAssistant enables ReplyAsAssistant. window caps how many recent
// messages are sent to the provider.
func WithAssistant(p assistant.Provider, window int) Option {
	return func(s *Service) {
		s.assistant = p
		if window > 0 {
			s.historyWindow = window
		}
	}
}

func New(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		now:           time.Now,
		ids:           newIDGenerator(),
		historyWindow: defaultHistoryWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type AddMessageParams struct {
	ChatID       string
	Role         string
	Content      string
	EmployeeID   string
	EmployeeName string
}

type TakeoverStats struct {
	SessionAge        int64
	MessageCount      int
	UserMessages      int
	AssistantMessages int
}

type TakeoverResult struct {
	Session model.Session
	Stats   TakeoverStats
}

type PollResult struct {
	Messages       []model.Message
	Status         model.SessionStatus
	ChatMode       model.ChatMode
	Employee       *model.Employee
	HasNewMessages bool
}

type ReplyResult struct {
	UserMessage model.Message
	Reply       model.Message
	Session     model.Session
}

func (s *Service) CreateAISession(ctx context.Context, userID, userName string) (sess model.Session, err error) {
	defer func() { observe("create_ai_session", err) }()
	return s.create(ctx, model.ChatModeAI, model.SessionStatusActive, userID, userName)
}

func (s *Service) CreateSession(ctx context.Context, userID, userName string) (sess model.Session, err error) {
	defer func() { observe("create_session", err) }()
	return s.create(ctx, model.ChatModeLive, model.SessionStatusPending, userID, userName)
}

func (s *Service) create(ctx context.Context, mode model.ChatMode, status model.SessionStatus, userID, userName string) (model.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.Session{}, newError(ErrorCodeValidation, "userId is required", nil)
	}

	now := s.now().UTC()
	sess := model.Session{
		ID:        s.ids.sessionID(),
		UserID:    userID,
		UserName:  strings.TrimSpace(userName),
		ChatMode:  mode,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []model.Message{},
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return model.Session{}, storageError("create session", err)
	}

	s.publish(ctx, EventSessionCreated, sess, nil)
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, chatID string) (sess model.Session, err error) {
	defer func() { observe("get_session", err) }()

	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return model.Session{}, newError(ErrorCodeValidation, "chatId is required", nil)
	}
	sess, err = s.repo.GetSession(ctx, chatID)
	if err != nil {
		return model.Session{}, storageError("load session", err)
	}
	return sess, nil
}

// AddMessage appends a message without touching mode, status or employee.
// Closed sessions reject new messages.
func (s *Service) AddMessage(ctx context.Context, params AddMessageParams) (msg model.Message, err error) {
	defer func() { observe("add_message", err) }()

	chatID := strings.TrimSpace(params.ChatID)
	if chatID == "" {
		return model.Message{}, newError(ErrorCodeValidation, "chatId is required", nil)
	}
	draft, err := draftFromParams(params)
	if err != nil {
		return model.Message{}, err
	}

	msg, _, err = s.appendMessage(ctx, chatID, draft, nil)
	return msg, err
}

func draftFromParams(params AddMessageParams) (model.Draft, error) {
	if strings.TrimSpace(params.Content) == "" {
		return model.Draft{}, newError(ErrorCodeValidation, "content is required", nil)
	}
	role := model.Role(strings.TrimSpace(params.Role))
	if !role.Valid() {
		return model.Draft{}, newError(ErrorCodeValidation, "role must be one of user, assistant, employee", nil)
	}

	employeeID := strings.TrimSpace(params.EmployeeID)
	employeeName := strings.TrimSpace(params.EmployeeName)
	switch role {
	case model.RoleEmployee:
		if employeeID == "" || employeeName == "" {
			return model.Draft{}, newError(ErrorCodeValidation, "employeeId and employeeName are required for employee messages", nil)
		}
		return model.EmployeeMessage(model.Employee{ID: employeeID, Name: employeeName}, params.Content), nil
	case model.RoleAssistant:
		if employeeID != "" || employeeName != "" {
			return model.Draft{}, newError(ErrorCodeValidation, "employee fields are only allowed on employee messages", nil)
		}
		return model.AssistantMessage(params.Content), nil
	default:
		if employeeID != "" || employeeName != "" {
			return model.Draft{}, newError(ErrorCodeValidation, "employee fields are only allowed on employee messages", nil)
		}
		return model.UserMessage(params.Content), nil
	}
}

// appendMessage stores draft on chatID. guard runs against the current record
// before the append and may veto it. The message id and timestamp are taken
// inside the update so that they follow the stored order even when the
// repository re-runs the mutation after losing a race.
func (s *Service) appendMessage(ctx context.Context, chatID string, draft model.Draft, guard func(model.Session) error) (model.Message, model.Session, error) {
	var msg model.Message
	updated, err := s.repo.UpdateSession(ctx, chatID, func(sess *model.Session) error {
		if sess.Status == model.SessionStatusClosed {
			return invalidTransition(ReasonClosed, "Session is closed")
		}
		if guard != nil {
			if err := guard(*sess); err != nil {
				return err
			}
		}

		now := s.now().UTC()
		previous := ""
		if n := len(sess.Messages); n > 0 {
			last := sess.Messages[n-1]
			previous = last.ID
			if now.Before(last.Timestamp) {
				now = last.Timestamp
			}
		}
		msg = draft.Message(s.ids.messageID(now, previous), chatID, now)
		sess.Messages = append(sess.Messages, msg.Clone())
		sess.UpdatedAt = now
		return nil
	})
	if err != nil {
		return model.Message{}, model.Session{}, storageError("add message", err)
	}

	s.publish(ctx, EventMessageCreated, updated, &msg)
	return msg, updated, nil
}

// ConvertAIToLive hands an AI conversation to an employee. It succeeds at
// most once per session; the history is carried over untouched.
func (s *Service) ConvertAIToLive(ctx context.Context, chatID, employeeID, employeeName string) (res TakeoverResult, err error) {
	defer func() { observe("convert_ai_to_live", err) }()

	chatID = strings.TrimSpace(chatID)
	emp, err := employeeFromArgs(employeeID, employeeName)
	if err != nil {
		return TakeoverResult{}, err
	}
	if chatID == "" {
		return TakeoverResult{}, newError(ErrorCodeValidation, "chatId is required", nil)
	}

	now := s.now().UTC()
	updated, err := s.repo.UpdateSession(ctx, chatID, func(sess *model.Session) error {
		if sess.ChatMode != model.ChatModeAI {
			return invalidTransition(ReasonNotAIMode, "Session is no longer in AI mode, it may already have been taken over").withSession(*sess)
		}
		if sess.Status != model.SessionStatusActive {
			return invalidTransition(ReasonNotActive, "Session is not active").withSession(*sess)
		}

		meta := &model.TakeoverMetadata{
			TakenOverAt:            now,
			TakenOverBy:            emp.ID,
			TakenOverByName:        emp.Name,
			AISessionDuration:      now.Sub(sess.CreatedAt).Milliseconds(),
			MessageCountAtTakeover: len(sess.Messages),
		}
		if last, ok := sess.LastAssistantMessage(); ok {
			meta.LastAIMessage = &last
		}

		e := emp
		sess.ChatMode = model.ChatModeLive
		sess.Employee = &e
		sess.UpdatedAt = now
		sess.Takeover = meta
		return nil
	})
	if err != nil {
		return TakeoverResult{}, storageError("take over session", err)
	}

	s.publish(ctx, EventSessionTakeover, updated, nil)
	return TakeoverResult{
		Session: updated,
		Stats: TakeoverStats{
			SessionAge:        updated.Takeover.AISessionDuration,
			MessageCount:      len(updated.Messages),
			UserMessages:      updated.CountByRole(model.RoleUser),
			AssistantMessages: updated.CountByRole(model.RoleAssistant),
		},
	}, nil
}

// AssignEmployee accepts a pending live session from the queue.
func (s *Service) AssignEmployee(ctx context.Context, chatID, employeeID, employeeName string) (sess model.Session, err error) {
	defer func() { observe("assign_employee", err) }()

	chatID = strings.TrimSpace(chatID)
	emp, err := employeeFromArgs(employeeID, employeeName)
	if err != nil {
		return model.Session{}, err
	}
	if chatID == "" {
		return model.Session{}, newError(ErrorCodeValidation, "chatId is required", nil)
	}

	now := s.now().UTC()
	updated, err := s.repo.UpdateSession(ctx, chatID, func(sess *model.Session) error {
		switch sess.Status {
		case model.SessionStatusPending:
		case model.SessionStatusClosed:
			return invalidTransition(ReasonClosed, "Session is closed").withSession(*sess)
		default:
			return invalidTransition(ReasonNotPending, "Session has already been accepted").withSession(*sess)
		}
		e := emp
		sess.Employee = &e
		sess.Status = model.SessionStatusActive
		sess.UpdatedAt = now
		return nil
	})
	if err != nil {
		return model.Session{}, storageError("assign session", err)
	}

	s.publish(ctx, EventSessionAssigned, updated, nil)
	return updated, nil
}

// CloseSession is idempotent; closing a closed session refreshes updatedAt.
func (s *Service) CloseSession(ctx context.Context, chatID string) (sess model.Session, err error) {
	defer func() { observe("close_session", err) }()

	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return model.Session{}, newError(ErrorCodeValidation, "chatId is required", nil)
	}

	now := s.now().UTC()
	updated, err := s.repo.UpdateSession(ctx, chatID, func(sess *model.Session) error {
		sess.Status = model.SessionStatusClosed
		sess.UpdatedAt = now
		return nil
	})
	if err != nil {
		return model.Session{}, storageError("close session", err)
	}

	s.publish(ctx, EventSessionClosed, updated, nil)
	return updated, nil
}

func (s *Service) GetAllPendingSessions(ctx context.Context) (out []model.Session, err error) {
	defer func() { observe("list_pending", err) }()
	return s.list(ctx, IndexPending)
}

func (s *Service) GetAllAISessions(ctx context.Context) (out []model.Session, err error) {
	defer func() { observe("list_ai", err) }()
	return s.list(ctx, IndexAI)
}

func (s *Service) GetAllActiveSessions(ctx context.Context) (out []model.Session, err error) {
	defer func() { observe("list_active", err) }()
	return s.list(ctx, IndexActive)
}

func (s *Service) list(ctx context.Context, index Index) ([]model.Session, error) {
	sessions, err := s.repo.ListSessions(ctx, index)
	if err != nil {
		return nil, storageError("list sessions", err)
	}
	sortOldestFirst(sessions)
	return sessions, nil
}

func (s *Service) GetEmployeeActiveSessions(ctx context.Context, employeeID string) (out []model.Session, err error) {
	defer func() { observe("list_employee_active", err) }()

	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return nil, newError(ErrorCodeValidation, "employeeId is required", nil)
	}
	sessions, err := s.repo.ListEmployeeSessions(ctx, employeeID)
	if err != nil {
		return nil, storageError("list employee sessions", err)
	}
	sortOldestFirst(sessions)
	return sessions, nil
}

// MessagesSince returns the messages after lastMessageID. An empty or
// unknown id returns the whole history; without a cursor the history is a
// first load and HasNewMessages stays false.
func (s *Service) MessagesSince(ctx context.Context, chatID, lastMessageID string) (res PollResult, err error) {
	defer func() { observe("poll", err) }()

	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return PollResult{}, newError(ErrorCodeValidation, "chatId is required", nil)
	}
	sess, err := s.repo.GetSession(ctx, chatID)
	if err != nil {
		return PollResult{}, storageError("load session", err)
	}

	messages := sess.Messages
	lastMessageID = strings.TrimSpace(lastMessageID)
	if lastMessageID != "" {
		for i, m := range sess.Messages {
			if m.ID == lastMessageID {
				messages = sess.Messages[i+1:]
				break
			}
		}
	}
	out := make([]model.Message, len(messages))
	copy(out, messages)

	return PollResult{
		Messages:       out,
		Status:         sess.Status,
		ChatMode:       sess.ChatMode,
		Employee:       sess.Employee,
		HasNewMessages: lastMessageID != "" && len(out) > 0,
	}, nil
}

// ReplyAsAssistant stores the visitor message and the assistant's answer.
// The answer is dropped when an employee took the session over while the
// provider was working.
func (s *Service) ReplyAsAssistant(ctx context.Context, chatID, content string) (res ReplyResult, err error) {
	defer func() { observe("reply_as_assistant", err) }()

	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return ReplyResult{}, newError(ErrorCodeValidation, "chatId is required", nil)
	}
	if strings.TrimSpace(content) == "" {
		return ReplyResult{}, newError(ErrorCodeValidation, "content is required", nil)
	}
	if s.assistant == nil {
		return ReplyResult{}, newError(ErrorCodeUnavailable, "assistant is not configured", nil)
	}

	userMsg, sess, err := s.appendMessage(ctx, chatID, model.UserMessage(content), requireAIMode)
	if err != nil {
		return ReplyResult{}, err
	}

	answer, err := s.assistant.Chat(ctx, s.history(sess))
	if err != nil {
		return ReplyResult{}, newError(ErrorCodeUnavailable, "assistant unavailable, retry later", err)
	}
	if strings.TrimSpace(answer) == "" {
		return ReplyResult{}, newError(ErrorCodeUnavailable, "assistant returned an empty reply", errors.New("empty completion"))
	}

	reply, sess, err := s.appendMessage(ctx, chatID, model.AssistantMessage(answer), requireAIMode)
	if err != nil {
		return ReplyResult{}, err
	}
	return ReplyResult{UserMessage: userMsg, Reply: reply, Session: sess}, nil
}

func requireAIMode(sess model.Session) error {
	if !sess.IsAIActive() {
		return invalidTransition(ReasonNotAIMode, "Session has been handed to a team member")
	}
	return nil
}

func (s *Service) history(sess model.Session) []assistant.Message {
	msgs := sess.Messages
	if len(msgs) > s.historyWindow {
		msgs = msgs[len(msgs)-s.historyWindow:]
	}
	out := make([]assistant.Message, 0, len(msgs))
	for _, m := range msgs {
		role := "assistant"
		if m.Role == model.RoleUser {
			role = "user"
		}
		out = append(out, assistant.Message{Role: role, Content: m.Content})
	}
	return out
}

func employeeFromArgs(employeeID, employeeName string) (model.Employee, error) {
	emp := model.Employee{
		ID:   strings.TrimSpace(employeeID),
		Name: strings.TrimSpace(employeeName),
	}
	if emp.ID == "" || emp.Name == "" {
		return model.Employee{}, newError(ErrorCodeValidation, "employeeId and employeeName are required", nil)
	}
	return emp, nil
}
