package vitals

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/carecircle/carecircle/internal/platform/auth"
)

// -- Fakes --

type fakeDispatch struct {
	records []*Record
	err     error
}

func (f *fakeDispatch) ListByPatient(_ context.Context, patientID string) ([]*Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*Record
	for _, r := range f.records {
		if strings.EqualFold(r.PatientID, patientID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeDispatch) ListAll(_ context.Context) ([]*Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type fakeAccess struct {
	rosters map[string]map[string]struct{}
}

func newFakeAccess() *fakeAccess {
	return &fakeAccess{rosters: make(map[string]map[string]struct{})}
}

func (f *fakeAccess) CanAccess(prov, pid string) bool {
	_, ok := f.rosters[prov][pid]
	return ok
}

func (f *fakeAccess) PatientsFor(prov string) map[string]struct{} {
	out := make(map[string]struct{})
	for pid := range f.rosters[prov] {
		out[pid] = struct{}{}
	}
	return out
}

func (f *fakeAccess) Assign(prov, pid string) error {
	if f.rosters[prov] == nil {
		f.rosters[prov] = make(map[string]struct{})
	}
	f.rosters[prov][pid] = struct{}{}
	return nil
}

func (f *fakeAccess) Unassign(prov, pid string) error {
	delete(f.rosters[prov], pid)
	return nil
}

func sampleRecords() []*Record {
	return []*Record{
		{PatientID: "P1", Mood: "Good"},
		{PatientID: "P2", Mood: "Okay"},
		{PatientID: "P1", Mood: "Tired"},
		{PatientID: "P3", Mood: "Good"},
	}
}

func mustPatient(t *testing.T, id string) auth.Scope {
	t.Helper()
	s, err := auth.PatientScope(id)
	if err != nil {
		t.Fatalf("PatientScope failed: %v", err)
	}
	return s
}

func mustProvider(t *testing.T, id string) auth.Scope {
	t.Helper()
	s, err := auth.ProviderScope(id)
	if err != nil {
		t.Fatalf("ProviderScope failed: %v", err)
	}
	return s
}

// -- Tests --

func TestScoped_PatientIgnoresRequestedID(t *testing.T) {
	d := NewScopedDispatch(&fakeDispatch{records: sampleRecords()}, mustPatient(t, "P1"), newFakeAccess())

	got, err := d.ListByPatient(context.Background(), "P2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected own 2 records, got %d", len(got))
	}
	for _, r := range got {
		if r.PatientID != "P1" {
			t.Errorf("patient scope leaked record of %s", r.PatientID)
		}
	}
}

func TestScoped_PatientListAll(t *testing.T) {
	d := NewScopedDispatch(&fakeDispatch{records: sampleRecords()}, mustPatient(t, "P2"), newFakeAccess())
	got, _ := d.ListAll(context.Background())
	if len(got) != 1 || got[0].PatientID != "P2" {
		t.Errorf("expected only P2's record, got %+v", got)
	}
}

func TestScoped_ProviderRosterGating(t *testing.T) {
	access := newFakeAccess()
	d := NewScopedDispatch(&fakeDispatch{records: sampleRecords()}, mustProvider(t, "D1"), access)
	ctx := context.Background()

	got, err := d.ListByPatient(ctx, "P1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result before assignment, got %d", len(got))
	}

	access.Assign("D1", "P1")
	got, _ = d.ListByPatient(ctx, "P1")
	if len(got) != 2 {
		t.Fatalf("expected 2 records after assignment, got %d", len(got))
	}
	for _, r := range got {
		if r.PatientID != "P1" {
			t.Errorf("unexpected subject %s", r.PatientID)
		}
	}

	access.Unassign("D1", "P1")
	got, _ = d.ListByPatient(ctx, "P1")
	if len(got) != 0 {
		t.Errorf("expected empty result after unassign, got %d", len(got))
	}
}

func TestScoped_ProviderListAllIsRosterUnion(t *testing.T) {
	access := newFakeAccess()
	access.Assign("D1", "P1")
	access.Assign("D1", "P3")
	d := NewScopedDispatch(&fakeDispatch{records: sampleRecords()}, mustProvider(t, "D1"), access)

	got, err := d.ListAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records for P1+P3, got %d", len(got))
	}
	for _, r := range got {
		if r.PatientID == "P2" {
			t.Error("provider saw a patient outside the roster")
		}
	}
}

func TestScoped_ProviderEmptyRoster(t *testing.T) {
	d := NewScopedDispatch(&fakeDispatch{records: sampleRecords()}, mustProvider(t, "D9"), newFakeAccess())
	got, err := d.ListAll(context.Background())
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty result, got %d (%v)", len(got), err)
	}
}

func TestScoped_ProviderWithoutAccessControl(t *testing.T) {
	d := NewScopedDispatch(&fakeDispatch{records: sampleRecords()}, mustProvider(t, "D1"), nil)
	got, _ := d.ListAll(context.Background())
	if len(got) != 4 {
		t.Errorf("expected unrestricted provider to see 4 records, got %d", len(got))
	}
}

func TestScoped_StorageErrorsPropagate(t *testing.T) {
	boom := errors.New("disk gone")
	access := newFakeAccess()
	access.Assign("D1", "P1")
	d := NewScopedDispatch(&fakeDispatch{err: boom}, mustProvider(t, "D1"), access)
	if _, err := d.ListAll(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected storage error to propagate, got %v", err)
	}
}
