package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the capacity a session acts in.
type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
)

var (
	ErrBlankPatientID  = errors.New("patient scope requires a patient id")
	ErrBlankProviderID = errors.New("provider scope requires a provider id")
	ErrUnknownRole     = errors.New("unknown role")
)

// Scope is the identity a dispatcher acts for. It is immutable once built;
// use PatientScope or ProviderScope to construct one.
type Scope struct {
	role Role
	id   string
}

// PatientScope returns a scope acting as the given patient.
func PatientScope(patientID string) (Scope, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return Scope{}, ErrBlankPatientID
	}
	return Scope{role: RolePatient, id: patientID}, nil
}

// ProviderScope returns a scope acting as the given provider.
func ProviderScope(providerID string) (Scope, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return Scope{}, ErrBlankProviderID
	}
	return Scope{role: RoleProvider, id: providerID}, nil
}

// NewScope builds a scope from a role name, as read from a CLI flag or a
// config value.
func NewScope(role, id string) (Scope, error) {
	switch Role(strings.ToLower(strings.TrimSpace(role))) {
	case RolePatient:
		return PatientScope(id)
	case RoleProvider:
		return ProviderScope(id)
	default:
		return Scope{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

func (s Scope) Role() Role { return s.role }

// PatientID is the caller's id for a patient scope and "" otherwise.
func (s Scope) PatientID() string {
	if s.role == RolePatient {
		return s.id
	}
	return ""
}

// ProviderID is the caller's id for a provider scope and "" otherwise.
func (s Scope) ProviderID() string {
	if s.role == RoleProvider {
		return s.id
	}
	return ""
}

// Valid reports whether the scope was built by one of the constructors.
func (s Scope) Valid() bool {
	return (s.role == RolePatient || s.role == RoleProvider) && strings.TrimSpace(s.id) != ""
}

func (s Scope) String() string {
	if !s.Valid() {
		return "invalid"
	}
	return string(s.role) + ":" + s.id
}
