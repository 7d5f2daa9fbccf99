package endpoints

import (
	"errors"
	"fmt"
	"net/http"

	"livechat-backend/internal/api/middleware"
	"livechat-backend/internal/dto"
	authservice "livechat-backend/internal/service/auth"
)

type AuthEndpoints interface {
	Login(http.ResponseWriter, *http.Request) error
	Me(http.ResponseWriter, *http.Request) error
}

type authEndpoints struct {
	service *authservice.Service
}

func NewAuthEndpoints(service *authservice.Service) AuthEndpoints {
	return &authEndpoints{service: service}
}

func (h *authEndpoints) Login(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleLogin,
	})
}

func (h *authEndpoints) Me(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleMe,
	})
}

func (h *authEndpoints) handleLogin(w http.ResponseWriter, r *http.Request) error {
	var req dto.LoginRequest
	if err := decodeJSON(r, &req, "login"); err != nil {
		return err
	}

	result, err := h.service.Login(r.Context(), authservice.LoginParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return authServiceError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.AuthResponse{
		AccessToken: result.Tokens.AccessToken,
		ExpiresAt:   result.Tokens.ExpiresAt,
		Employee:    toEmployeeResponse(result.Employee),
	})
}

func (h *authEndpoints) handleMe(w http.ResponseWriter, r *http.Request) error {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		var err error
		identity, err = h.service.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
		if err != nil {
			return authServiceError(err)
		}
	}

	emp, err := h.service.Me(r.Context(), identity)
	if err != nil {
		return authServiceError(err)
	}
	return WriteJSON(w, http.StatusOK, toEmployeeResponse(emp))
}

func toEmployeeResponse(emp authservice.Employee) dto.EmployeeResponse {
	return dto.EmployeeResponse{
		EmployeeID: emp.ID,
		Name:       emp.Name,
		Email:      emp.Email,
	}
}

func authServiceError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *authservice.Error
	if !errors.As(err, &svcErr) {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("auth service: %w", err),
		}
	}

	var logErr error
	if svcErr.Err != nil {
		logErr = fmt.Errorf("%s: %w", svcErr.Message, svcErr.Err)
	} else {
		logErr = svcErr
	}

	switch svcErr.Code {
	case authservice.ErrorCodeValidation:
		return &HTTPError{StatusCode: http.StatusBadRequest, Message: svcErr.Message, Code: string(svcErr.Code), ErrorLog: logErr}
	case authservice.ErrorCodeUnauthorized:
		return &HTTPError{StatusCode: http.StatusUnauthorized, Message: svcErr.Message, Code: string(svcErr.Code), ErrorLog: logErr}
	case authservice.ErrorCodeNotFound:
		return &HTTPError{StatusCode: http.StatusNotFound, Message: svcErr.Message, Code: string(svcErr.Code), ErrorLog: logErr}
	default:
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Internal server error", Code: "internal_error", ErrorLog: logErr}
	}
}
