package auth

import (
	"context"
	"errors"
	"strings"

	internaljwt "livechat-backend/internal/jwt"
)

type Service struct {
	roster Roster
	issuer *internaljwt.Issuer
}

func New(roster Roster, issuer *internaljwt.Issuer) *Service {
	return &Service{
		roster: roster,
		issuer: issuer,
	}
}

func (s *Service) Login(ctx context.Context, params LoginParams) (AuthResult, error) {
	email := normalizeEmail(params.Email)
	password := strings.TrimSpace(params.Password)
	if email == "" || password == "" {
		return AuthResult{}, newError(ErrorCodeValidation, "email and password are required", nil)
	}

	emp, err := s.roster.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", err)
		}
		return AuthResult{}, newError(ErrorCodeInternal, "failed to load employee", err)
	}
	if !internaljwt.ValidatePassword(emp.PasswordHash, password) {
		return AuthResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", nil)
	}

	tokens, err := s.issuer.CreateToken(internaljwt.User{
		Id:    emp.ID,
		Name:  emp.Name,
		Email: emp.Email,
	}, internaljwt.RoleEmployee)
	if err != nil {
		return AuthResult{}, newError(ErrorCodeInternal, "failed to issue token", err)
	}

	emp.PasswordHash = ""
	return AuthResult{Employee: emp, Tokens: tokens}, nil
}

// Me re-reads the roster so removed employees lose access before their
// token expires.
func (s *Service) Me(ctx context.Context, identity Identity) (Employee, error) {
	emp, err := s.roster.FindByID(ctx, identity.EmployeeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Employee{}, newError(ErrorCodeNotFound, "employee not found", err)
		}
		return Employee{}, newError(ErrorCodeInternal, "failed to load employee", err)
	}
	emp.PasswordHash = ""
	return emp, nil
}

func (s *Service) IdentityFromAuthorizationHeader(header string) (Identity, error) {
	authHeader := strings.TrimSpace(header)
	if authHeader == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "missing authorization header", nil)
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return Identity{}, newError(ErrorCodeUnauthorized, "invalid authorization header format", nil)
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return s.IdentityFromToken(token)
}

func (s *Service) IdentityFromToken(token string) (Identity, error) {
	if token == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "empty token", nil)
	}

	user, err := s.issuer.ParseToken(token, internaljwt.RoleEmployee)
	if err != nil {
		return Identity{}, newError(ErrorCodeUnauthorized, "invalid token", err)
	}

	return Identity{
		EmployeeID: user.Id,
		Name:       user.Name,
		Email:      user.Email,
	}, nil
}
