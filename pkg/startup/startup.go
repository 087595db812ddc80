// Package startup brings the service's dependencies up and down in order.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

// Dependency is one unit of the boot sequence. DependsOn names the
// dependencies that must be started first.
type Dependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type status int

const (
	statusIdle status = iota
	statusStarting
	statusStarted
	statusStopped
	statusFailed
)

// Startup starts the registered dependencies in registration order, resolving
// DependsOn chains first, and stops them in reverse start order. A failed
// start attempt is retried as a whole with a fibonacci backoff; dependencies
// that already started are not started again.
type Startup struct {
	logger       ectologger.Logger
	dependencies map[string]Dependency
	statuses     map[string]status
	names        []string // registration order
	started      []string // successful start order
	maxAttempts  int
}

func NewStartup(logger ectologger.Logger, maxAttempts int) *Startup {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Startup{
		logger:       logger,
		dependencies: make(map[string]Dependency),
		statuses:     make(map[string]status),
		maxAttempts:  maxAttempts,
	}
}

// AddDependency registers a dependency. Registering the same name again
// replaces the earlier entry.
func (s *Startup) AddDependency(dependency Dependency) {
	name := dependency.GetName()
	if _, ok := s.dependencies[name]; !ok {
		s.names = append(s.names, name)
	}
	s.dependencies[name] = dependency
}

func (s *Startup) Start(ctx context.Context) error {
	var lastErr error

	a, b := 1, 1
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.logger.WithField("attempt", attempt).Infof("Beginning startup attempt %d", attempt)

		lastErr = nil
		for _, name := range s.names {
			if err := s.startDependency(ctx, name); err != nil {
				s.logger.WithError(err).Errorf("Startup dependency '%s' attempt %d failed", name, attempt)
				lastErr = err
				break
			}
		}

		if lastErr == nil {
			return nil
		}

		if attempt == s.maxAttempts {
			break
		}

		s.logger.Infof("Retrying in %d seconds (attempt %d/%d)", a, attempt, s.maxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(a) * time.Second):
		}
		a, b = b, a+b
	}

	return fmt.Errorf("startup failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Startup) startDependency(ctx context.Context, name string) error {
	switch s.statuses[name] {
	case statusStarted:
		return nil
	case statusStarting:
		return fmt.Errorf("dependency cycle through '%s'", name)
	}

	dependency, ok := s.dependencies[name]
	if !ok {
		return fmt.Errorf("unknown dependency '%s'", name)
	}

	s.statuses[name] = statusStarting
	for _, parent := range dependency.DependsOn() {
		if err := s.startDependency(ctx, parent); err != nil {
			s.statuses[name] = statusFailed
			return err
		}
	}

	s.logger.WithField("dependency", name).Infof("Starting dependency '%s'", name)
	if err := dependency.Start(ctx); err != nil {
		s.statuses[name] = statusFailed
		s.logger.WithError(err).WithField("dependency", name).Errorf("Failed to start dependency '%s'", name)
		return err
	}

	s.statuses[name] = statusStarted
	s.started = append(s.started, name)
	return nil
}

// Stop shuts the started dependencies down in reverse start order. A failing
// Stop does not keep the remaining dependencies from being stopped; the first
// error is returned.
func (s *Startup) Stop(ctx context.Context) error {
	var firstErr error

	for i := len(s.started) - 1; i >= 0; i-- {
		name := s.started[i]
		if s.statuses[name] != statusStarted {
			continue
		}

		s.logger.WithField("dependency", name).Infof("Stopping dependency '%s'", name)
		if err := s.dependencies[name].Stop(ctx); err != nil {
			s.logger.WithError(err).WithField("dependency", name).Errorf("Failed to stop dependency '%s'", name)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		s.statuses[name] = statusStopped
		s.logger.WithField("dependency", name).Infof("Dependency '%s' stopped", name)
	}

	return firstErr
}
