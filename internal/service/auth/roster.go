package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrNotFound = errors.New("employee roster: not found")

type Roster interface {
	FindByEmail(ctx context.Context, email string) (Employee, error)
	FindByID(ctx context.Context, id string) (Employee, error)
}

// StaticRoster is an in-memory, read-only roster.
type StaticRoster struct {
	byEmail map[string]Employee
	byID    map[string]Employee
}

func NewStaticRoster(employees ...Employee) (*StaticRoster, error) {
	r := &StaticRoster{
		byEmail: make(map[string]Employee, len(employees)),
		byID:    make(map[string]Employee, len(employees)),
	}
	for _, emp := range employees {
		emp.ID = strings.TrimSpace(emp.ID)
		emp.Name = strings.TrimSpace(emp.Name)
		email := normalizeEmail(emp.Email)
		if emp.ID == "" || emp.Name == "" || email == "" || emp.PasswordHash == "" {
			return nil, fmt.Errorf("roster entry %q: id, name, email and passwordHash are required", emp.ID)
		}
		if _, dup := r.byID[emp.ID]; dup {
			return nil, fmt.Errorf("roster entry %q: duplicate id", emp.ID)
		}
		if _, dup := r.byEmail[email]; dup {
			return nil, fmt.Errorf("roster entry %q: duplicate email", emp.ID)
		}
		emp.Email = email
		r.byEmail[email] = emp
		r.byID[emp.ID] = emp
	}
	return r, nil
}

// LoadRosterFile reads a JSON array of employees.
func LoadRosterFile(path string) (*StaticRoster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	var employees []Employee
	if err := json.Unmarshal(data, &employees); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	return NewStaticRoster(employees...)
}

func (r *StaticRoster) FindByEmail(ctx context.Context, email string) (Employee, error) {
	emp, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return Employee{}, ErrNotFound
	}
	return emp, nil
}

func (r *StaticRoster) FindByID(ctx context.Context, id string) (Employee, error) {
	emp, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return Employee{}, ErrNotFound
	}
	return emp, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
