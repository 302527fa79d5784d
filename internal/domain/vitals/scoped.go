package vitals

import (
	"context"

	"github.com/carecircle/carecircle/internal/platform/auth"
)

// ScopedDispatch limits a Dispatch to what one session may see. A patient
// only ever reads their own rows; a provider only reads rows of patients on
// their roster. Denied reads come back empty, exactly like reads that match
// nothing.
type ScopedDispatch struct {
	target Dispatch
	scope  auth.Scope
	access auth.AccessControl
}

var _ Dispatch = (*ScopedDispatch)(nil)

// NewScopedDispatch wraps target for scope. A nil access leaves provider
// scopes unrestricted.
func NewScopedDispatch(target Dispatch, scope auth.Scope, access auth.AccessControl) *ScopedDispatch {
	return &ScopedDispatch{target: target, scope: scope, access: access}
}

func (d *ScopedDispatch) Scope() auth.Scope { return d.scope }

func (d *ScopedDispatch) ListByPatient(ctx context.Context, patientID string) ([]*Record, error) {
	switch d.scope.Role() {
	case auth.RolePatient:
		return d.target.ListByPatient(ctx, d.scope.PatientID())
	case auth.RoleProvider:
		if d.access != nil && !d.access.CanAccess(d.scope.ProviderID(), patientID) {
			return nil, nil
		}
		return d.target.ListByPatient(ctx, patientID)
	}
	return nil, nil
}

func (d *ScopedDispatch) ListAll(ctx context.Context) ([]*Record, error) {
	switch d.scope.Role() {
	case auth.RolePatient:
		return d.target.ListByPatient(ctx, d.scope.PatientID())
	case auth.RoleProvider:
		if d.access == nil {
			return d.target.ListAll(ctx)
		}
		allowed := d.access.PatientsFor(d.scope.ProviderID())
		if len(allowed) == 0 {
			return nil, nil
		}
		all, err := d.target.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		var out []*Record
		for _, r := range all {
			if _, ok := allowed[r.PatientID]; ok {
				out = append(out, r)
			}
		}
		return out, nil
	}
	return nil, nil
}
