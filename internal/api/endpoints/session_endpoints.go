package endpoints

import (
	"errors"
	"fmt"
	"net/http"

	"livechat-backend/internal/dto"
	"livechat-backend/internal/model"
	sessionservice "livechat-backend/internal/service/session"
)

// sessionEndpoints holds the handlers the widget and the dashboard share.
type sessionEndpoints struct {
	sessions *sessionservice.Service
}

func (h *sessionEndpoints) handleGetSession(w http.ResponseWriter, r *http.Request) error {
	sess, err := h.sessions.GetSession(r.Context(), queryParam(r, "chatId"))
	if err != nil {
		return sessionServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.SessionResponse{Success: true, Session: sess})
}

func (h *sessionEndpoints) handleGetMessages(w http.ResponseWriter, r *http.Request) error {
	sess, err := h.sessions.GetSession(r.Context(), queryParam(r, "chatId"))
	if err != nil {
		return sessionServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.MessagesResponse{
		ChatID:        sess.ID,
		Messages:      sess.Messages,
		SessionStatus: string(sess.Status),
		ChatMode:      string(sess.ChatMode),
	})
}

func (h *sessionEndpoints) handlePoll(w http.ResponseWriter, r *http.Request) error {
	res, err := h.sessions.MessagesSince(r.Context(), queryParam(r, "chatId"), queryParam(r, "lastMessageId"))
	if err != nil {
		return sessionServiceError(err)
	}

	out := dto.PollResponse{
		Messages:       res.Messages,
		SessionStatus:  string(res.Status),
		ChatMode:       string(res.ChatMode),
		HasNewMessages: res.HasNewMessages,
	}
	if res.Employee != nil {
		out.EmployeeName = res.Employee.Name
	}
	return WriteJSON(w, http.StatusOK, out)
}

func (h *sessionEndpoints) handleClose(w http.ResponseWriter, r *http.Request) error {
	var req dto.ChatRequest
	if err := decodeJSON(r, &req, "close session"); err != nil {
		return err
	}

	sess, err := h.sessions.CloseSession(r.Context(), req.ChatID)
	if err != nil {
		return sessionServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.SessionResponse{Success: true, Session: sess})
}

func (h *sessionEndpoints) addMessage(w http.ResponseWriter, r *http.Request, params sessionservice.AddMessageParams) error {
	msg, err := h.sessions.AddMessage(r.Context(), params)
	if err != nil {
		return sessionServiceError(err)
	}
	return WriteJSON(w, http.StatusCreated, dto.MessageResponse{Success: true, Message: msg})
}

func sessionsResponse(sessions []model.Session) dto.SessionsResponse {
	if sessions == nil {
		sessions = []model.Session{}
	}
	return dto.SessionsResponse{Sessions: sessions, Count: len(sessions)}
}

func sessionServiceError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *sessionservice.Error
	if !errors.As(err, &svcErr) {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			Code:       string(sessionservice.ErrorCodeInternal),
			ErrorLog:   fmt.Errorf("session service: %w", err),
		}
	}

	var logErr error
	if svcErr.Err != nil {
		logErr = fmt.Errorf("%s: %w", svcErr.Message, svcErr.Err)
	} else {
		logErr = svcErr
	}

	httpErr := &HTTPError{
		Message:  svcErr.Message,
		Code:     string(svcErr.Code),
		ErrorLog: logErr,
	}

	switch svcErr.Code {
	case sessionservice.ErrorCodeValidation:
		httpErr.StatusCode = http.StatusBadRequest
	case sessionservice.ErrorCodeUnauthorized:
		httpErr.StatusCode = http.StatusUnauthorized
	case sessionservice.ErrorCodeForbidden:
		httpErr.StatusCode = http.StatusForbidden
	case sessionservice.ErrorCodeNotFound:
		httpErr.StatusCode = http.StatusNotFound
	case sessionservice.ErrorCodeInvalidTransition:
		httpErr.StatusCode = http.StatusConflict
		httpErr.Reason = string(svcErr.Reason)
		if svcErr.Session != nil {
			httpErr.Session = svcErr.Session
		}
	case sessionservice.ErrorCodeUnavailable:
		httpErr.StatusCode = http.StatusServiceUnavailable
	default:
		httpErr.StatusCode = http.StatusInternalServerError
		httpErr.Message = "Internal server error"
		httpErr.Code = string(sessionservice.ErrorCodeInternal)
	}
	return httpErr
}
