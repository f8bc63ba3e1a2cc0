package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

// ServiceStatus represents the current state of a service.
type ServiceStatus string

const (
	StatusNotStarted ServiceStatus = "not_started"
	StatusRunning    ServiceStatus = "running"
	StatusStopped    ServiceStatus = "stopped"
	StatusFailed     ServiceStatus = "failed"
)

// ManagedService defines the interface for services managed by the orchestrator.
type ManagedService interface {
	// Name returns the service name for logging and identification.
	Name() string

	// Start initializes and starts the service. It must not block.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the service.
	Stop(ctx context.Context) error

	// Dependencies returns the names of services this service depends on.
	Dependencies() []string
}

// Func adapts a pair of functions to ManagedService. Nil functions are no-ops.
type Func struct {
	ServiceName string
	DependsOn   []string
	StartFunc   func(ctx context.Context) error
	StopFunc    func(ctx context.Context) error
}

func (f Func) Name() string           { return f.ServiceName }
func (f Func) Dependencies() []string { return f.DependsOn }

func (f Func) Start(ctx context.Context) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx)
}

func (f Func) Stop(ctx context.Context) error {
	if f.StopFunc == nil {
		return nil
	}
	return f.StopFunc(ctx)
}

// ServiceOrchestrator manages the lifecycle of multiple services with dependency resolution.
type ServiceOrchestrator struct {
	services map[string]ManagedService
	status   map[string]ServiceStatus
	started  []string
	mu       sync.Mutex

	startTimeout time.Duration
	stopTimeout  time.Duration
}

// NewServiceOrchestrator creates a new service orchestrator.
func NewServiceOrchestrator() *ServiceOrchestrator {
	return &ServiceOrchestrator{
		services:     make(map[string]ManagedService),
		status:       make(map[string]ServiceStatus),
		startTimeout: 30 * time.Second,
		stopTimeout:  30 * time.Second,
	}
}

// WithTimeouts configures start and stop timeouts.
func (so *ServiceOrchestrator) WithTimeouts(start, stop time.Duration) *ServiceOrchestrator {
	so.startTimeout = start
	so.stopTimeout = stop
	return so
}

// RegisterService adds a service to the orchestrator.
func (so *ServiceOrchestrator) RegisterService(service ManagedService) error {
	so.mu.Lock()
	defer so.mu.Unlock()

	name := service.Name()
	if name == "" {
		return derrors.InternalError("service name cannot be empty").Build()
	}
	if _, exists := so.services[name]; exists {
		return derrors.InternalError(fmt.Sprintf("service %s already registered", name)).Build()
	}
	so.services[name] = service
	so.status[name] = StatusNotStarted
	slog.Debug("Service registered", slog.String("service", name), slog.Any("dependencies", service.Dependencies()))
	return nil
}

// Status returns the state of a registered service.
func (so *ServiceOrchestrator) Status(name string) ServiceStatus {
	so.mu.Lock()
	defer so.mu.Unlock()
	return so.status[name]
}

// StartAll starts all services in dependency order. When one fails, the
// services already started are stopped again.
func (so *ServiceOrchestrator) StartAll(ctx context.Context) error {
	so.mu.Lock()
	defer so.mu.Unlock()

	order, err := so.calculateStartOrder()
	if err != nil {
		return derrors.InternalError("failed to calculate service start order").WithCause(err).Build()
	}
	slog.Info("Starting services", slog.Int("count", len(order)), slog.Any("order", order))

	for _, name := range order {
		if err := so.startService(ctx, name); err != nil {
			so.stopStarted(context.WithoutCancel(ctx))
			return err
		}
	}
	return nil
}

// StopAll stops the started services in reverse start order.
func (so *ServiceOrchestrator) StopAll(ctx context.Context) error {
	so.mu.Lock()
	defer so.mu.Unlock()

	if errs := so.stopStarted(ctx); len(errs) > 0 {
		return derrors.InternalError("some services failed to stop gracefully").WithCause(errs[0]).Build()
	}
	slog.Info("All services stopped")
	return nil
}

// calculateStartOrder topologically sorts services; ties are broken by name.
func (so *ServiceOrchestrator) calculateStartOrder() ([]string, error) {
	visited := make(map[string]bool)
	visiting := make(map[string]bool)
	var order []string

	var visit func(string) error
	visit = func(name string) error {
		if visiting[name] {
			return fmt.Errorf("circular dependency detected involving service: %s", name)
		}
		if visited[name] {
			return nil
		}
		visiting[name] = true

		service, exists := so.services[name]
		if !exists {
			return fmt.Errorf("service not found: %s", name)
		}
		for _, dep := range service.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}

		visiting[name] = false
		visited[name] = true
		order = append(order, name)
		return nil
	}

	names := make([]string, 0, len(so.services))
	for name := range so.services {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (so *ServiceOrchestrator) startService(ctx context.Context, name string) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, so.startTimeout)
	defer cancel()

	start := time.Now()
	if err := so.services[name].Start(timeoutCtx); err != nil {
		so.status[name] = StatusFailed
		return derrors.InternalError(fmt.Sprintf("failed to start service %s", name)).WithCause(err).Build()
	}
	so.status[name] = StatusRunning
	so.started = append(so.started, name)
	slog.Info("Service started", slog.String("service", name), logfields.Duration(time.Since(start)))
	return nil
}

func (so *ServiceOrchestrator) stopStarted(ctx context.Context) []error {
	var errs []error
	for i := len(so.started) - 1; i >= 0; i-- {
		name := so.started[i]
		timeoutCtx, cancel := context.WithTimeout(ctx, so.stopTimeout)
		err := so.services[name].Stop(timeoutCtx)
		cancel()
		if err != nil {
			so.status[name] = StatusFailed
			slog.Error("Error stopping service", slog.String("service", name), logfields.Error(err))
			errs = append(errs, err)
			continue
		}
		so.status[name] = StatusStopped
		slog.Debug("Service stopped", slog.String("service", name))
	}
	so.started = nil
	return errs
}
