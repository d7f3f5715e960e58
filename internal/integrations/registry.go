package integrations

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// ErrUnknownIntegration is returned when no integration has the requested name.
var ErrUnknownIntegration = errors.New("no integration registered with name")

// Integration is an outbound SaaS connection whose health can be checked.
type Integration interface {
	// Enabled reports whether credentials were configured.
	Enabled() bool
	// TestConnection calls the service and returns a human readable success message.
	TestConnection(ctx context.Context) (string, error)
}

// Status is the result of checking one integration.
type Status struct {
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

// Registry holds the configured integrations by name.
type Registry struct {
	integrations map[string]Integration
}

// NewRegistry creates a new integration registry.
func NewRegistry() *Registry {
	return &Registry{
		integrations: make(map[string]Integration),
	}
}

// Register adds an integration implementation to the registry.
func (r *Registry) Register(name string, integration Integration) {
	if _, exists := r.integrations[name]; exists {
		log.Printf("WARN [IntegrationRegistry] Integration '%s' is already registered. Overwriting.", name)
	}
	r.integrations[name] = integration
	log.Printf("[IntegrationRegistry] Registered integration: %s (enabled=%t)", name, integration.Enabled())
}

// Get retrieves an integration by name.
func (r *Registry) Get(name string) (Integration, error) {
	integration, exists := r.integrations[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntegration, name)
	}
	return integration, nil
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.integrations))
	for name := range r.integrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check tests a single integration by name, bounded by timeout.
func (r *Registry) Check(ctx context.Context, name string, timeout time.Duration) (Status, error) {
	integration, err := r.Get(name)
	if err != nil {
		return Status{}, err
	}
	s := Status{Name: name, Enabled: integration.Enabled()}
	if !s.Enabled {
		s.Message = "not configured"
		return s, nil
	}
	check(ctx, &s, integration, timeout)
	return s, nil
}

// CheckAll tests every enabled integration concurrently, each bounded by timeout.
func (r *Registry) CheckAll(ctx context.Context, timeout time.Duration) []Status {
	names := r.Names()
	out := make([]Status, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		integration := r.integrations[name]
		out[i] = Status{Name: name, Enabled: integration.Enabled()}
		if !out[i].Enabled {
			out[i].Message = "not configured"
			continue
		}

		wg.Add(1)
		go func(s *Status, integration Integration) {
			defer wg.Done()
			check(ctx, s, integration, timeout)
		}(&out[i], integration)
	}
	wg.Wait()
	return out
}

func check(ctx context.Context, s *Status, integration Integration, timeout time.Duration) {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := integration.TestConnection(checkCtx)
	if err != nil {
		log.Printf("WARN [IntegrationRegistry] %s connection test failed: %v", s.Name, err)
		s.Message = err.Error()
		return
	}
	s.Connected = true
	s.Message = msg
}
