package auth

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/carecircle/carecircle/internal/platform/filestore"
)

// AccessSchema is the layout of the provider/patient assignment file.
var AccessSchema = filestore.Schema{
	Name:     "provider_access",
	Header:   []string{"providerId", "patientId"},
	IDColumn: -1,
}

// AccessControl answers whether a provider may see a patient's records and
// manages the provider rosters.
type AccessControl interface {
	CanAccess(providerID, patientID string) bool
	PatientsFor(providerID string) map[string]struct{}
	Assign(providerID, patientID string) error
	Unassign(providerID, patientID string) error
}

// Directory is the file-backed AccessControl. Reads go against an in-memory
// table without locking; mutations are serialized under mu and persist the
// whole table before returning.
type Directory struct {
	store  *filestore.Store
	logger zerolog.Logger

	mu sync.Mutex
	// rosters maps providerID -> map[string]struct{}. Stored sets are never
	// mutated; a change stores a new set.
	rosters sync.Map
}

var _ AccessControl = (*Directory)(nil)

// NewDirectory loads the assignment table from store.
func NewDirectory(store *filestore.Store, logger zerolog.Logger) (*Directory, error) {
	d := &Directory{
		store:  store,
		logger: logger.With().Str("component", "access_directory").Logger(),
	}
	rows, err := store.Scan(1, nil)
	if err != nil {
		return nil, fmt.Errorf("load provider access: %w", err)
	}
	loaded := make(map[string]map[string]struct{})
	for _, r := range rows {
		prov, pid := strings.TrimSpace(r[0]), strings.TrimSpace(r[1])
		if prov == "" || pid == "" {
			continue
		}
		if loaded[prov] == nil {
			loaded[prov] = make(map[string]struct{})
		}
		loaded[prov][pid] = struct{}{}
	}
	for prov, set := range loaded {
		d.rosters.Store(prov, set)
	}
	d.logger.Debug().Int("providers", len(loaded)).Str("path", store.Path()).Msg("provider access loaded")
	return d, nil
}

// CanAccess reports whether patientID is on providerID's roster. Ids are
// trimmed as Assign trims them.
func (d *Directory) CanAccess(providerID, patientID string) bool {
	providerID, patientID = strings.TrimSpace(providerID), strings.TrimSpace(patientID)
	if providerID == "" || patientID == "" {
		return false
	}
	_, ok := d.roster(providerID)[patientID]
	return ok
}

// PatientsFor returns a copy of providerID's roster; never nil.
func (d *Directory) PatientsFor(providerID string) map[string]struct{} {
	set := d.roster(strings.TrimSpace(providerID))
	out := make(map[string]struct{}, len(set))
	for pid := range set {
		out[pid] = struct{}{}
	}
	return out
}

// Providers returns every provider holding at least one assignment, sorted.
func (d *Directory) Providers() []string {
	var out []string
	d.rosters.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	sort.Strings(out)
	return out
}

// Assign adds patientID to providerID's roster. Blank ids are ignored and
// assigning an existing pair is a no-op.
func (d *Directory) Assign(providerID, patientID string) error {
	providerID, patientID = strings.TrimSpace(providerID), strings.TrimSpace(patientID)
	if providerID == "" || patientID == "" {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.roster(providerID)
	if _, ok := prev[patientID]; ok {
		return nil
	}
	next := make(map[string]struct{}, len(prev)+1)
	for pid := range prev {
		next[pid] = struct{}{}
	}
	next[patientID] = struct{}{}
	d.rosters.Store(providerID, next)

	if err := d.persistLocked(); err != nil {
		d.restore(providerID, prev)
		return err
	}
	d.logger.Info().Str("provider_id", providerID).Str("patient_id", patientID).Msg("patient assigned")
	return nil
}

// Unassign removes patientID from providerID's roster. Blank ids are ignored
// and removing a missing pair is a no-op. A provider left with no patients is
// dropped from the table.
func (d *Directory) Unassign(providerID, patientID string) error {
	providerID, patientID = strings.TrimSpace(providerID), strings.TrimSpace(patientID)
	if providerID == "" || patientID == "" {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.roster(providerID)
	if _, ok := prev[patientID]; !ok {
		return nil
	}
	next := make(map[string]struct{}, len(prev))
	for pid := range prev {
		if pid != patientID {
			next[pid] = struct{}{}
		}
	}
	d.restore(providerID, next)

	if err := d.persistLocked(); err != nil {
		d.restore(providerID, prev)
		return err
	}
	d.logger.Info().Str("provider_id", providerID).Str("patient_id", patientID).Msg("patient unassigned")
	return nil
}

func (d *Directory) roster(providerID string) map[string]struct{} {
	v, ok := d.rosters.Load(providerID)
	if !ok {
		return nil
	}
	return v.(map[string]struct{})
}

// restore stores set for providerID, deleting the entry when set is empty.
func (d *Directory) restore(providerID string, set map[string]struct{}) {
	if len(set) == 0 {
		d.rosters.Delete(providerID)
		return
	}
	d.rosters.Store(providerID, set)
}

// persistLocked rewrites the backing file from the in-memory table. Callers
// hold d.mu.
func (d *Directory) persistLocked() error {
	var rows [][]string
	for _, prov := range d.Providers() {
		pids := make([]string, 0)
		for pid := range d.roster(prov) {
			pids = append(pids, pid)
		}
		sort.Strings(pids)
		for _, pid := range pids {
			rows = append(rows, []string{prov, pid})
		}
	}
	if err := d.store.ReplaceAll(rows); err != nil {
		d.logger.Error().Err(err).Msg("persist provider access")
		return fmt.Errorf("persist provider access: %w", err)
	}
	return nil
}
