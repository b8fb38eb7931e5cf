package engine

import (
	"context"

	"github.com/thordock/thordock/internal/supervisor"
)

// Process is a running mirroring process.
type Process interface {
	PID() int
	Terminate(ctx context.Context) error
}

// Launcher starts mirroring processes. onExit must be called exactly once
// when the process ends.
type Launcher interface {
	Launch(spec supervisor.Spec, onExit func(supervisor.ExitInfo)) (Process, error)
}

// SupervisorLauncher adapts a supervisor.Supervisor to Launcher.
func SupervisorLauncher(s *supervisor.Supervisor) Launcher {
	return supervisorLauncher{s}
}

type supervisorLauncher struct {
	s *supervisor.Supervisor
}

func (l supervisorLauncher) Launch(spec supervisor.Spec, onExit func(supervisor.ExitInfo)) (Process, error) {
	p, err := l.s.Start(spec, onExit)
	if err != nil {
		return nil, err
	}
	return p, nil
}
