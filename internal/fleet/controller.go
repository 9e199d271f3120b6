// Package fleet starts and stops compute instances by role.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/timmy/textfleet/internal/capacity"
	"github.com/timmy/textfleet/internal/config"
	"github.com/timmy/textfleet/internal/logger"
)

// ErrUnknownRole is returned when no launch template exists for a role.
var ErrUnknownRole = errors.New("unknown fleet role")

// Controller provisions instances labelled with an opaque role.
type Controller interface {
	// Active counts instances of role that are starting or running
	Active(ctx context.Context, role string) (int, error)

	// Launch starts count new instances of role and returns their ids
	Launch(ctx context.Context, role string, count int) ([]string, error)

	// TerminateAll stops every instance of role and returns how many were targeted
	TerminateAll(ctx context.Context, role string) (int, error)
}

// Scaler serializes ensure-running decisions so that concurrent callers
// never launch past the hard cap together.
type Scaler struct {
	ctrl    Controller
	hardCap int
	mu      sync.Mutex
}

// NewScaler wraps a controller with a fleet-wide instance cap.
func NewScaler(ctrl Controller, hardCap int) *Scaler {
	return &Scaler{ctrl: ctrl, hardCap: hardCap}
}

// EnsureRunning grows role to min(required, hardCap) instances.
// Returns:
//   - []string: ids of newly launched instances, empty if none were needed.
//   - error: non-nil if counting or launching failed.
func (s *Scaler) EnsureRunning(ctx context.Context, role string, required int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.ctrl.Active(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("count %s instances: %w", role, err)
	}

	n := capacity.PlanIncrement(required, active, s.hardCap)
	if n == 0 {
		logger.CtxDebug(ctx, "Fleet %s has %d active, %d required: nothing to launch", role, active, required)
		return nil, nil
	}

	ids, err := s.ctrl.Launch(ctx, role, n)
	if err != nil {
		return ids, fmt.Errorf("launch %d %s instances: %w", n, role, err)
	}
	logger.With(logger.Fields{logger.FieldRole: role}).WithCount(len(ids)).
		Info(ctx, "Launched instances (active=%d required=%d cap=%d)", active, required, s.hardCap)
	return ids, nil
}

// TerminateAll stops every instance of role.
func (s *Scaler) TerminateAll(ctx context.Context, role string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.TerminateAll(ctx, role)
}

// HardCap returns the configured instance cap.
func (s *Scaler) HardCap() int {
	return s.hardCap
}

// NewController creates a Controller for the configured driver.
func NewController(ctx context.Context, cfg config.FleetConfig, awsCfg config.AWSConfig, env []string) (Controller, error) {
	switch cfg.Driver {
	case "", "ec2":
		return NewEC2Controller(ctx, cfg, awsCfg)
	case "docker":
		return NewDockerController(DockerConfig{
			Image:   cfg.DockerImage,
			Network: cfg.DockerNetwork,
			Env:     PassthroughEnv(env),
			Commands: map[string][]string{
				cfg.WorkerRole:  {"worker"},
				cfg.ManagerRole: {"manager"},
			},
		})
	case "memory":
		return NewMemoryController(), nil
	default:
		return nil, fmt.Errorf("unknown fleet driver %q", cfg.Driver)
	}
}
