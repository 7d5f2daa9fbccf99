package endpoints

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"livechat-backend/internal/api/middleware"
	"livechat-backend/internal/dto"
	"livechat-backend/internal/model"
	sessionservice "livechat-backend/internal/service/session"
)

// DashboardEndpoints serve employees working the queue.
type DashboardEndpoints interface {
	AISessions(http.ResponseWriter, *http.Request) error
	Takeover(http.ResponseWriter, *http.Request) error
	Employee(http.ResponseWriter, *http.Request) error
	ActiveSessions(http.ResponseWriter, *http.Request) error
	Messages(http.ResponseWriter, *http.Request) error
	Session(http.ResponseWriter, *http.Request) error
	Poll(http.ResponseWriter, *http.Request) error
	Close(http.ResponseWriter, *http.Request) error
}

type dashboardEndpoints struct {
	sessionEndpoints
	now func() time.Time
}

func NewDashboardEndpoints(sessions *sessionservice.Service) DashboardEndpoints {
	return &dashboardEndpoints{
		sessionEndpoints: sessionEndpoints{sessions: sessions},
		now:              time.Now,
	}
}

func (h *dashboardEndpoints) AISessions(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListAISessions,
	})
}

func (h *dashboardEndpoints) Takeover(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleTakeover,
	})
}

func (h *dashboardEndpoints) Employee(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleEmployeeQueue,
		http.MethodPost: h.handleAssign,
	})
}

func (h *dashboardEndpoints) ActiveSessions(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListActiveSessions,
	})
}

func (h *dashboardEndpoints) Messages(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleGetMessages,
		http.MethodPost: h.handleEmployeeMessage,
	})
}

func (h *dashboardEndpoints) Session(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleGetSession,
	})
}

func (h *dashboardEndpoints) Poll(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handlePoll,
	})
}

func (h *dashboardEndpoints) Close(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleClose,
	})
}

func (h *dashboardEndpoints) handleListAISessions(w http.ResponseWriter, r *http.Request) error {
	sessions, err := h.sessions.GetAllAISessions(r.Context())
	if err != nil {
		return sessionServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, sessionsResponse(sessions))
}

func (h *dashboardEndpoints) handleListActiveSessions(w http.ResponseWriter, r *http.Request) error {
	sessions, err := h.sessions.GetAllActiveSessions(r.Context())
	if err != nil {
		return sessionServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, sessionsResponse(sessions))
}

func (h *dashboardEndpoints) handleTakeover(w http.ResponseWriter, r *http.Request) error {
	start := h.now()

	var req dto.EmployeeActionRequest
	if err := decodeJSON(r, &req, "takeover"); err != nil {
		return err
	}
	employeeID, employeeName, err := actingEmployee(r, req.EmployeeID, req.EmployeeName)
	if err != nil {
		return err
	}

	res, err := h.sessions.ConvertAIToLive(r.Context(), req.ChatID, employeeID, employeeName)
	if err != nil {
		return sessionServiceError(err)
	}

	out := dto.TakeoverResponse{
		Success: true,
		Session: res.Session,
		Metadata: dto.TakeoverMetadataResponse{
			SessionStats: dto.SessionStats{
				SessionAge:        res.Stats.SessionAge,
				MessageCount:      res.Stats.MessageCount,
				UserMessages:      res.Stats.UserMessages,
				AssistantMessages: res.Stats.AssistantMessages,
			},
			ProcessingTime: h.now().Sub(start).Milliseconds(),
		},
	}
	if tk := res.Session.Takeover; tk != nil {
		out.Metadata.Takeover = dto.TakeoverInfo{
			TakenOverAt: tk.TakenOverAt.Format(time.RFC3339Nano),
			TakenOverBy: tk.TakenOverByName,
			EmployeeID:  tk.TakenOverBy,
		}
	}
	return WriteJSON(w, http.StatusOK, out)
}

// handleEmployeeQueue serves ?type=pending (the shared queue) and
// ?type=active (one employee's open chats).
func (h *dashboardEndpoints) handleEmployeeQueue(w http.ResponseWriter, r *http.Request) error {
	var (
		sessions []model.Session
		err      error
	)

	switch listType := queryParam(r, "type"); listType {
	case "", "pending":
		sessions, err = h.sessions.GetAllPendingSessions(r.Context())
	case "active":
		employeeID, _, idErr := actingEmployee(r, queryParam(r, "employeeId"), "")
		if idErr != nil {
			return idErr
		}
		sessions, err = h.sessions.GetEmployeeActiveSessions(r.Context(), employeeID)
	default:
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "type must be pending or active",
			Code:       string(sessionservice.ErrorCodeValidation),
			ErrorLog:   fmt.Errorf("unknown employee list type %q", listType),
		}
	}
	if err != nil {
		return sessionServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, sessionsResponse(sessions))
}

func (h *dashboardEndpoints) handleAssign(w http.ResponseWriter, r *http.Request) error {
	var req dto.EmployeeActionRequest
	if err := decodeJSON(r, &req, "assign employee"); err != nil {
		return err
	}
	employeeID, employeeName, err := actingEmployee(r, req.EmployeeID, req.EmployeeName)
	if err != nil {
		return err
	}

	sess, err := h.sessions.AssignEmployee(r.Context(), req.ChatID, employeeID, employeeName)
	if err != nil {
		return sessionServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.SessionResponse{Success: true, Session: sess})
}

func (h *dashboardEndpoints) handleEmployeeMessage(w http.ResponseWriter, r *http.Request) error {
	var req dto.AddMessageRequest
	if err := decodeJSON(r, &req, "add message"); err != nil {
		return err
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = string(model.RoleEmployee)
	}
	if role != string(model.RoleEmployee) {
		return &HTTPError{
			StatusCode: http.StatusForbidden,
			Message:    "Dashboard messages must use the employee role",
			Code:       string(sessionservice.ErrorCodeForbidden),
		}
	}
	employeeID, employeeName, err := actingEmployee(r, req.EmployeeID, req.EmployeeName)
	if err != nil {
		return err
	}

	return h.addMessage(w, r, sessionservice.AddMessageParams{
		ChatID:       req.ChatID,
		Role:         role,
		Content:      req.Content,
		EmployeeID:   employeeID,
		EmployeeName: employeeName,
	})
}

// actingEmployee resolves who performs an employee action. With employee
// auth enabled the token decides and a conflicting id is forbidden.
func actingEmployee(r *http.Request, employeeID, employeeName string) (string, string, error) {
	employeeID = strings.TrimSpace(employeeID)
	employeeName = strings.TrimSpace(employeeName)

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return employeeID, employeeName, nil
	}
	if employeeID != "" && employeeID != identity.EmployeeID {
		return "", "", &HTTPError{
			StatusCode: http.StatusForbidden,
			Message:    "Employee does not match the authenticated user",
			Code:       string(sessionservice.ErrorCodeForbidden),
			ErrorLog:   fmt.Errorf("employee %q acting as %q", identity.EmployeeID, employeeID),
		}
	}
	if employeeName == "" {
		employeeName = identity.Name
	}
	return identity.EmployeeID, employeeName, nil
}
