package scheduler

import (
	"context"
	"fmt"
	"log"
	"os/exec"
)

// TrafficAdapter drives the external traffic or flood tool for one phase.
// Run blocks until the tool exits or the context is cancelled; the
// scheduler decides how long to wait.
type TrafficAdapter interface {
	Name() string
	Run(ctx context.Context) error
}

// ExecAdapter invokes an external command (hping3, slowhttptest, a benign
// traffic script). The tool is the collaborator; the adapter only supervises
// the process.
type ExecAdapter struct {
	name string
	argv []string
}

// NewExecAdapter wraps an argv; the first element is the binary.
func NewExecAdapter(name string, argv []string) (*ExecAdapter, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("adapter %s: empty command", name)
	}
	return &ExecAdapter{name: name, argv: argv}, nil
}

func (a *ExecAdapter) Name() string {
	return a.name
}

// Run starts the command and waits for it. Cancelling the context kills
// the process.
func (a *ExecAdapter) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, a.argv[0], a.argv[1:]...)
	log.Printf("Adapter %s: starting %v", a.name, a.argv)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// Killed at the phase boundary; not a tool failure.
			return nil
		}
		return fmt.Errorf("adapter %s: %w", a.name, err)
	}
	return nil
}
