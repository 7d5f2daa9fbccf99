package endpoints

import (
	"fmt"
	"net/http"
	"strings"

	"livechat-backend/internal/api/middleware"
	sessionservice "livechat-backend/internal/service/session"
	"livechat-backend/internal/websocket"
)

// FeedEndpoints upgrade clients onto the session change feed.
type FeedEndpoints interface {
	SessionFeed(http.ResponseWriter, *http.Request) error
	DashboardFeed(http.ResponseWriter, *http.Request) error
	Rooms(http.ResponseWriter, *http.Request) error
}

type feedEndpoints struct {
	sessions      *sessionservice.Service
	handler       *websocket.Handler
	sessionPrefix string
}

// NewFeedEndpoints serves per-session feeds under sessionPrefix, e.g.
// /api/ws/v1/sessions/ followed by the chat id.
func NewFeedEndpoints(sessions *sessionservice.Service, handler *websocket.Handler, sessionPrefix string) FeedEndpoints {
	return &feedEndpoints{
		sessions:      sessions,
		handler:       handler,
		sessionPrefix: sessionPrefix,
	}
}

func (h *feedEndpoints) SessionFeed(w http.ResponseWriter, r *http.Request) error {
	if err := h.available(); err != nil {
		return err
	}

	chatID := strings.Trim(strings.TrimPrefix(r.URL.Path, h.sessionPrefix), "/")
	if chatID == "" || strings.Contains(chatID, "/") {
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Session not found",
			Code:       string(sessionservice.ErrorCodeNotFound),
			ErrorLog:   fmt.Errorf("feed path %q has no chat id", r.URL.Path),
		}
	}

	sess, err := h.sessions.GetSession(r.Context(), chatID)
	if err != nil {
		return sessionServiceError(err)
	}

	// Visitors only follow their own session. Employees use the dashboard feed.
	userID := queryParam(r, "userId")
	if userID != sess.UserID {
		return &HTTPError{
			StatusCode: http.StatusForbidden,
			Message:    "Session belongs to another user",
			Code:       string(sessionservice.ErrorCodeForbidden),
			ErrorLog:   fmt.Errorf("feed user %q does not own %s", userID, chatID),
		}
	}

	h.handler.JoinRoom(w, r, websocket.SessionRoom(chatID), userID)
	return nil
}

func (h *feedEndpoints) DashboardFeed(w http.ResponseWriter, r *http.Request) error {
	if err := h.available(); err != nil {
		return err
	}

	clientID := "dashboard"
	if identity, ok := middleware.IdentityFromContext(r.Context()); ok {
		clientID = identity.EmployeeID
	}
	h.handler.JoinRoom(w, r, websocket.DashboardRoom, clientID)
	return nil
}

func (h *feedEndpoints) Rooms(w http.ResponseWriter, r *http.Request) error {
	if err := h.available(); err != nil {
		return err
	}
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
			h.handler.GetRooms(w, r)
			return nil
		},
	})
}

func (h *feedEndpoints) available() error {
	if h.handler == nil {
		return &HTTPError{
			StatusCode: http.StatusServiceUnavailable,
			Message:    "Websocket not available",
			Code:       string(sessionservice.ErrorCodeUnavailable),
			ErrorLog:   fmt.Errorf("feed handler missing"),
		}
	}
	return nil
}
