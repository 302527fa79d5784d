package scheduling

import (
	"context"
	"strings"

	"github.com/carecircle/carecircle/internal/platform/auth"
	"github.com/google/uuid"
)

// ScopedDispatch restricts a CalendarDispatch to one session. Patients see and
// change only their own appointments; providers only those of patients on
// their roster. Denied operations return false or an empty list.
type ScopedDispatch struct {
	target CalendarDispatch
	scope  auth.Scope
	access auth.AccessControl
}

var _ CalendarDispatch = (*ScopedDispatch)(nil)

// NewScopedDispatch wraps target for scope. A nil access leaves provider
// scopes unrestricted.
func NewScopedDispatch(target CalendarDispatch, scope auth.Scope, access auth.AccessControl) *ScopedDispatch {
	return &ScopedDispatch{target: target, scope: scope, access: access}
}

func (d *ScopedDispatch) Scope() auth.Scope { return d.scope }

func (d *ScopedDispatch) canSee(patientID string) bool {
	switch d.scope.Role() {
	case auth.RolePatient:
		return strings.EqualFold(strings.TrimSpace(patientID), d.scope.PatientID())
	case auth.RoleProvider:
		return d.access == nil || d.access.CanAccess(d.scope.ProviderID(), patientID)
	}
	return false
}

func (d *ScopedDispatch) BookAppointment(ctx context.Context, a *Appointment) (bool, error) {
	if a == nil || !d.canSee(a.PatientID) {
		return false, nil
	}
	return d.target.BookAppointment(ctx, a)
}

func (d *ScopedDispatch) CancelAppointment(ctx context.Context, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	// Listing through d applies the same rules as a read would.
	a, err := FindAppointment(ctx, d, id)
	if err != nil || a == nil {
		return false, err
	}
	return d.target.CancelAppointment(ctx, id)
}

func (d *ScopedDispatch) ListAppointmentsByPatient(ctx context.Context, patientID string) ([]*Appointment, error) {
	switch d.scope.Role() {
	case auth.RolePatient:
		return d.target.ListAppointmentsByPatient(ctx, d.scope.PatientID())
	case auth.RoleProvider:
		if !d.canSee(patientID) {
			return nil, nil
		}
		return d.target.ListAppointmentsByPatient(ctx, patientID)
	}
	return nil, nil
}

func (d *ScopedDispatch) ListAllAppointments(ctx context.Context) ([]*Appointment, error) {
	switch d.scope.Role() {
	case auth.RolePatient:
		return d.target.ListAppointmentsByPatient(ctx, d.scope.PatientID())
	case auth.RoleProvider:
		if d.access == nil {
			return d.target.ListAllAppointments(ctx)
		}
		allowed := d.access.PatientsFor(d.scope.ProviderID())
		if len(allowed) == 0 {
			return nil, nil
		}
		all, err := d.target.ListAllAppointments(ctx)
		if err != nil {
			return nil, err
		}
		var out []*Appointment
		for _, a := range all {
			if _, ok := allowed[a.PatientID]; ok {
				out = append(out, a)
			}
		}
		return out, nil
	}
	return nil, nil
}
