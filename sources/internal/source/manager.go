package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/thingflow/thingflow/common/logging"
)

// Manager owns the event sources of one tenant engine and drives their
// lifecycle as a unit.
type Manager struct {
	tenant  string
	sources []*EventSource
	log     *logging.Logger
}

// NewManager creates an empty manager for a tenant.
func NewManager(tenant string, log *logging.Logger) *Manager {
	return &Manager{tenant: tenant, log: log.With(logging.Tenant(tenant))}
}

// Add registers an event source. Must be called before Start.
func (m *Manager) Add(s *EventSource) error {
	for _, existing := range m.sources {
		if existing.ID() == s.ID() {
			return fmt.Errorf("duplicate event source id %q", s.ID())
		}
	}
	m.sources = append(m.sources, s)
	return nil
}

// Sources returns the registered event sources in registration order.
func (m *Manager) Sources() []*EventSource {
	return m.sources
}

// Start brings up all sources. If any source fails, the ones already
// started are stopped before the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	for i, s := range m.sources {
		if err := s.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := m.sources[j].Stop(); stopErr != nil {
					m.log.ErrorContext(ctx, "failed to stop event source during rollback",
						logging.Source(m.sources[j].ID()), logging.Err(stopErr))
				}
			}
			return fmt.Errorf("start event source %q: %w", s.ID(), err)
		}
		m.log.InfoContext(ctx, "event source started", logging.Source(s.ID()))
	}
	return nil
}

// Stop shuts down all sources in reverse registration order.
func (m *Manager) Stop() error {
	var errs []error
	for i := len(m.sources) - 1; i >= 0; i-- {
		if err := m.sources[i].Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop event source %q: %w", m.sources[i].ID(), err))
		}
	}
	return errors.Join(errs...)
}
