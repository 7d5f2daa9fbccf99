package endpoints

import (
	"net/http"
	"strings"

	"livechat-backend/internal/dto"
	"livechat-backend/internal/model"
	sessionservice "livechat-backend/internal/service/session"
)

// WidgetEndpoints serve the visitor-facing chat widget.
type WidgetEndpoints interface {
	AISession(http.ResponseWriter, *http.Request) error
	AIReply(http.ResponseWriter, *http.Request) error
	LiveSession(http.ResponseWriter, *http.Request) error
	LiveMessages(http.ResponseWriter, *http.Request) error
	Poll(http.ResponseWriter, *http.Request) error
	Close(http.ResponseWriter, *http.Request) error
}

type widgetEndpoints struct {
	sessionEndpoints
}

func NewWidgetEndpoints(sessions *sessionservice.Service) WidgetEndpoints {
	return &widgetEndpoints{sessionEndpoints{sessions: sessions}}
}

func (h *widgetEndpoints) AISession(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleCreateAISession,
		http.MethodGet:  h.handleGetSession,
	})
}

func (h *widgetEndpoints) AIReply(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleAIReply,
	})
}

func (h *widgetEndpoints) LiveSession(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleCreateLiveSession,
		http.MethodGet:  h.handleGetSession,
	})
}

func (h *widgetEndpoints) LiveMessages(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleVisitorMessage,
		http.MethodGet:  h.handleGetMessages,
	})
}

func (h *widgetEndpoints) Poll(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handlePoll,
	})
}

func (h *widgetEndpoints) Close(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleClose,
	})
}

func (h *widgetEndpoints) handleCreateAISession(w http.ResponseWriter, r *http.Request) error {
	var req dto.CreateSessionRequest
	if err := decodeJSON(r, &req, "create ai session"); err != nil {
		return err
	}

	sess, err := h.sessions.CreateAISession(r.Context(), req.UserID, req.UserName)
	if err != nil {
		return sessionServiceError(err)
	}
	return WriteJSON(w, http.StatusCreated, dto.SessionResponse{Success: true, Session: sess})
}

func (h *widgetEndpoints) handleCreateLiveSession(w http.ResponseWriter, r *http.Request) error {
	var req dto.CreateSessionRequest
	if err := decodeJSON(r, &req, "create live session"); err != nil {
		return err
	}

	sess, err := h.sessions.CreateSession(r.Context(), req.UserID, req.UserName)
	if err != nil {
		return sessionServiceError(err)
	}
	return WriteJSON(w, http.StatusCreated, dto.SessionResponse{Success: true, Session: sess})
}

func (h *widgetEndpoints) handleAIReply(w http.ResponseWriter, r *http.Request) error {
	var req dto.AIReplyRequest
	if err := decodeJSON(r, &req, "ai reply"); err != nil {
		return err
	}

	res, err := h.sessions.ReplyAsAssistant(r.Context(), req.ChatID, req.Message)
	if err != nil {
		return sessionServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.AIReplyResponse{
		Success:     true,
		ChatID:      res.Session.ID,
		ChatMode:    string(res.Session.ChatMode),
		UserMessage: res.UserMessage,
		Reply:       res.Reply,
	})
}

// Visitors may only speak as the user.
func (h *widgetEndpoints) handleVisitorMessage(w http.ResponseWriter, r *http.Request) error {
	var req dto.AddMessageRequest
	if err := decodeJSON(r, &req, "add message"); err != nil {
		return err
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = string(model.RoleUser)
	}
	if role != string(model.RoleUser) {
		return &HTTPError{
			StatusCode: http.StatusForbidden,
			Message:    "Widget messages must use the user role",
			Code:       string(sessionservice.ErrorCodeForbidden),
		}
	}

	return h.addMessage(w, r, sessionservice.AddMessageParams{
		ChatID:  req.ChatID,
		Role:    role,
		Content: req.Content,
	})
}
