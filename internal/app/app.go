// Package app wires the record stores, the access directory and the network
// services into one process-scoped object.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/carecircle/carecircle/internal/config"
	"github.com/carecircle/carecircle/internal/domain/scheduling"
	"github.com/carecircle/carecircle/internal/domain/vitals"
	"github.com/carecircle/carecircle/internal/platform/auth"
	"github.com/carecircle/carecircle/internal/platform/chat"
	"github.com/carecircle/carecircle/internal/platform/filestore"
	"github.com/carecircle/carecircle/internal/platform/netserver"
	"github.com/carecircle/carecircle/internal/platform/records"
	"github.com/carecircle/carecircle/internal/platform/telemetry"
)

// App holds the shared store handles and services. Build it once per process
// with New; every dispatcher and connection handler borrows from it.
type App struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *telemetry.Metrics

	VitalsStore       *filestore.Store
	AppointmentsStore *filestore.Store
	AccessStore       *filestore.Store

	Access   *auth.Directory
	Vitals   *vitals.RowRepo
	Calendar *scheduling.Service
	Hub      *chat.Hub

	vitalsSvc *vitals.Service
	servers   []*netserver.Server
	ops       *telemetry.OpsServer
	opsLn     net.Listener
	chatWS    *chat.WebSocketHandler
	ready     chan struct{}
}

// New opens the three record files under cfg's data directory and loads the
// access directory.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		cfg:     cfg,
		logger:  logger,
		metrics: telemetry.NewMetrics(),
		ready:   make(chan struct{}),
	}
	obs := filestore.WithObserver(a.metrics)

	var err error
	if a.VitalsStore, err = filestore.New(cfg.VitalsPath(), vitals.Schema, obs); err != nil {
		return nil, fmt.Errorf("open vitals store: %w", err)
	}
	if a.AppointmentsStore, err = filestore.New(cfg.AppointmentsPath(), scheduling.Schema, obs); err != nil {
		return nil, fmt.Errorf("open appointments store: %w", err)
	}
	if a.AccessStore, err = filestore.New(cfg.AccessPath(), auth.AccessSchema, obs); err != nil {
		return nil, fmt.Errorf("open access store: %w", err)
	}
	if a.Access, err = auth.NewDirectory(a.AccessStore, logger.With().Str("component", "access").Logger()); err != nil {
		return nil, fmt.Errorf("load access directory: %w", err)
	}

	a.Vitals = vitals.NewRowRepo(a.VitalsStore)
	a.vitalsSvc = vitals.NewService(a.Vitals)
	a.Calendar = scheduling.NewService(scheduling.NewAppointmentRepoCSV(a.AppointmentsStore))
	a.Hub = chat.NewHub(logger.With().Str("service", "chat").Logger(), chat.WithObserver(a.metrics))

	a.metrics.GaugeFunc("chat", "groups", "Chat channels with at least one member.", func() float64 {
		return float64(a.Hub.GroupCount())
	})
	return a, nil
}

// Metrics returns the process metrics.
func (a *App) Metrics() *telemetry.Metrics { return a.metrics }

// CalendarFor returns the appointment dispatcher for scope.
func (a *App) CalendarFor(scope auth.Scope) *scheduling.ScopedDispatch {
	return scheduling.NewScopedDispatch(a.Calendar, scope, a.Access)
}

// VitalsFor returns the vitals dispatcher for scope.
func (a *App) VitalsFor(scope auth.Scope) *vitals.ScopedDispatch {
	return vitals.NewScopedDispatch(a.vitalsSvc, scope, a.Access)
}

func (a *App) CalendarForPatient(patientID string) (*scheduling.ScopedDispatch, error) {
	scope, err := auth.PatientScope(patientID)
	if err != nil {
		return nil, err
	}
	return a.CalendarFor(scope), nil
}

func (a *App) CalendarForProvider(providerID string) (*scheduling.ScopedDispatch, error) {
	scope, err := auth.ProviderScope(providerID)
	if err != nil {
		return nil, err
	}
	return a.CalendarFor(scope), nil
}

func (a *App) VitalsForPatient(patientID string) (*vitals.ScopedDispatch, error) {
	scope, err := auth.PatientScope(patientID)
	if err != nil {
		return nil, err
	}
	return a.VitalsFor(scope), nil
}

func (a *App) VitalsForProvider(providerID string) (*vitals.ScopedDispatch, error) {
	scope, err := auth.ProviderScope(providerID)
	if err != nil {
		return nil, err
	}
	return a.VitalsFor(scope), nil
}

// Candidate is a patient id found in the record files.
type Candidate struct {
	PatientID string `json:"patient_id"`
	Assigned  bool   `json:"assigned"`
}

// DiscoverPatients lists every patient id that appears in the vitals or
// appointments files or on providerID's roster, sorted, marking those
// already assigned to providerID.
func (a *App) DiscoverPatients(_ context.Context, providerID string) ([]Candidate, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, auth.ErrBlankProviderID
	}
	ids := make(map[string]struct{})
	for _, src := range []struct {
		store  *filestore.Store
		column int
	}{
		{a.VitalsStore, vitals.PatientColumn},
		{a.AppointmentsStore, scheduling.PatientColumn},
	} {
		rows, err := src.store.Scan(src.column, nil)
		if err != nil {
			return nil, fmt.Errorf("discover patients: %w", err)
		}
		for _, row := range rows {
			if id := strings.TrimSpace(row[src.column]); id != "" {
				ids[id] = struct{}{}
			}
		}
	}
	for id := range a.Access.PatientsFor(providerID) {
		ids[id] = struct{}{}
	}

	out := make([]Candidate, 0, len(ids))
	for id := range ids {
		out = append(out, Candidate{PatientID: id, Assigned: a.Access.CanAccess(providerID, id)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatientID < out[j].PatientID })
	return out, nil
}

// Start opens every configured listener. Protocol listeners accept
// connections as soon as Start returns; the ops endpoint is served by Serve.
func (a *App) Start() error {
	if a.cfg.RecordsAddr != "" {
		svc := records.NewService(a.Vitals,
			a.logger.With().Str("service", "records").Logger(),
			records.WithObserver(a.metrics))
		a.servers = append(a.servers, netserver.New("records", a.cfg.RecordsAddr, svc, a.logger, netserver.WithObserver(a.metrics)))
	}
	if a.cfg.ChatAddr != "" {
		svc := chat.NewService(a.Hub, a.logger.With().Str("service", "chat").Logger())
		a.servers = append(a.servers, netserver.New("chat", a.cfg.ChatAddr, svc, a.logger, netserver.WithObserver(a.metrics)))
	}

	for i, s := range a.servers {
		if err := s.Start(); err != nil {
			for _, started := range a.servers[:i] {
				started.Stop()
			}
			return err
		}
	}

	if a.cfg.OpsAddr != "" {
		ln, err := net.Listen("tcp", a.cfg.OpsAddr)
		if err != nil {
			for _, s := range a.servers {
				s.Stop()
			}
			return fmt.Errorf("ops: failed to listen on %s: %w", a.cfg.OpsAddr, err)
		}
		a.opsLn = ln
		a.ops = telemetry.NewOpsServer(a.cfg.OpsAddr, a.metrics, a.probes(), a.logger)
		a.chatWS = chat.NewWebSocketHandler(a.Hub, a.logger.With().Str("service", "chat").Logger())
		a.chatWS.RegisterRoutes(a.ops.Group("/chat"))
	}
	close(a.ready)
	return nil
}

// Ready is closed once Start has opened every listener.
func (a *App) Ready() <-chan struct{} { return a.ready }

// Addr returns the bound address of the named listener ("records", "chat" or
// "ops"), or "" when it is not running.
func (a *App) Addr(name string) string {
	if name == "ops" && a.opsLn != nil {
		return a.opsLn.Addr().String()
	}
	for _, s := range a.servers {
		if s.Name() == name {
			return s.Addr()
		}
	}
	return ""
}

// Serve starts the listeners and blocks until ctx is cancelled or the ops
// endpoint fails, then shuts everything down within the configured timeout.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.ops != nil {
		g.Go(func() error {
			if err := a.ops.Serve(a.opsLn); err != nil {
				return fmt.Errorf("ops: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(sctx)
	})
	return g.Wait()
}

// Shutdown stops the protocol listeners, closing their connections, and the
// ops endpoint.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	for _, s := range a.servers {
		if err := s.Stop(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if a.ops != nil {
		if err := a.ops.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ops: %w", err))
		}
		// Closes the listener when Serve never got to it.
		a.opsLn.Close()
		a.chatWS.Close()
	}
	return errors.Join(errs...)
}

func (a *App) probes() map[string]telemetry.Probe {
	return map[string]telemetry.Probe{
		"vitals":       telemetry.FileProbe(a.VitalsStore.Path()),
		"appointments": telemetry.FileProbe(a.AppointmentsStore.Path()),
		"access":       telemetry.FileProbe(a.AccessStore.Path()),
		"chat": func(context.Context) (any, error) {
			return map[string]int{"groups": a.Hub.GroupCount()}, nil
		},
	}
}
