package auth

import (
	"errors"
	"testing"
)

func TestPatientScope(t *testing.T) {
	s, err := PatientScope("P1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Role() != RolePatient {
		t.Errorf("expected patient role, got %s", s.Role())
	}
	if s.PatientID() != "P1" || s.ProviderID() != "" {
		t.Errorf("unexpected ids: patient=%q provider=%q", s.PatientID(), s.ProviderID())
	}
	if s.String() != "patient:P1" {
		t.Errorf("unexpected String(): %s", s)
	}
}

func TestProviderScope(t *testing.T) {
	s, err := ProviderScope("D1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Role() != RoleProvider || s.ProviderID() != "D1" || s.PatientID() != "" {
		t.Errorf("unexpected scope: %+v", s)
	}
}

func TestScope_BlankIDsRejected(t *testing.T) {
	if _, err := PatientScope("  "); !errors.Is(err, ErrBlankPatientID) {
		t.Errorf("expected ErrBlankPatientID, got %v", err)
	}
	if _, err := ProviderScope(""); !errors.Is(err, ErrBlankProviderID) {
		t.Errorf("expected ErrBlankProviderID, got %v", err)
	}
}

func TestNewScope(t *testing.T) {
	s, err := NewScope("Provider", "D1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Role() != RoleProvider {
		t.Errorf("expected provider role, got %s", s.Role())
	}
	if _, err := NewScope("admin", "X"); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole, got %v", err)
	}
}

func TestScope_ZeroValueInvalid(t *testing.T) {
	var s Scope
	if s.Valid() {
		t.Error("zero scope must be invalid")
	}
	if s.String() != "invalid" {
		t.Errorf("expected invalid, got %s", s)
	}
}
