package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const DefaultTokenTTL = 12 * time.Hour

func appendRoleChar(token string, role Role) string {
	switch role {
	case RoleEmployee:
		return token + "e"
	}
	return token
}

func expectedRoleChar(role Role) string {
	switch role {
	case RoleEmployee:
		return "e"
	}
	return ""
}

// Issuer signs and verifies access tokens with one HS256 secret per role.
type Issuer struct {
	RoleSecrets map[Role]string
	TTL         time.Duration
	now         func() time.Time
}

func NewIssuer(employeeSecret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{
		RoleSecrets: map[Role]string{RoleEmployee: employeeSecret},
		TTL:         ttl,
		now:         time.Now,
	}
}

// WithClock replaces the time source used for expiry.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	if now != nil {
		i.now = now
	}
	return i
}

func (i *Issuer) CreateToken(user User, role Role) (TokenResponse, error) {
	secret, ok := i.RoleSecrets[role]
	if !ok || secret == "" {
		return TokenResponse{}, fmt.Errorf("invalid role specified")
	}

	validUntil := i.now().Add(i.TTL).Unix()
	claims := jwt.MapClaims{
		"id":    user.Id,
		"name":  user.Name,
		"email": user.Email,
		"exp":   validUntil,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken: appendRoleChar(tokenString, role),
		ExpiresAt:   validUntil,
	}, nil
}

// ParseToken checks the role suffix, the signature and the expiry.
func (i *Issuer) ParseToken(tokenString string, role Role) (User, error) {
	if len(tokenString) == 0 {
		return User{}, fmt.Errorf("token string is empty")
	}
	if tokenString[len(tokenString)-1:] != expectedRoleChar(role) {
		return User{}, fmt.Errorf("invalid role character in token")
	}
	tokenString = tokenString[:len(tokenString)-1]

	secret, ok := i.RoleSecrets[role]
	if !ok || secret == "" {
		return User{}, fmt.Errorf("invalid role specified")
	}

	parser := jwt.Parser{SkipClaimsValidation: true}
	token, err := parser.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return User{}, fmt.Errorf("unauthorized: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return User{}, fmt.Errorf("claims of unauthorized type")
	}
	if !claims.VerifyExpiresAt(i.now().Unix(), true) {
		return User{}, fmt.Errorf("token expired")
	}

	user := User{}
	user.Id, _ = claims["id"].(string)
	user.Name, _ = claims["name"].(string)
	user.Email, _ = claims["email"].(string)
	if user.Id == "" {
		return User{}, fmt.Errorf("token missing subject")
	}
	return user, nil
}
