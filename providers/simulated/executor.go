package simulated

import (
	"context"
	"strings"
	"sync"

	"command-center/core/executor"
	"command-center/core/models"
)

// ExecCall records one remote command
type ExecCall struct {
	Target    executor.Target
	Command   string
	PublicKey string
}

// Executor simulates remote hosts. Every command succeeds unless Handler
// says otherwise; an echo command prints its argument.
type Executor struct {
	mu      sync.Mutex
	Handler func(target executor.Target, command string) (*executor.Result, error)
	Calls   []ExecCall
}

// NewExecutor creates a simulated executor
func NewExecutor() *Executor {
	return &Executor{}
}

// Commands returns the commands run so far
func (e *Executor) Commands() []ExecCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ExecCall(nil), e.Calls...)
}

func (e *Executor) Execute(ctx context.Context, target executor.Target, keys *models.SshKeypair, command string) (*executor.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if keys == nil || keys.PrivateKey == "" {
		return nil, executor.ErrCredential
	}

	e.mu.Lock()
	e.Calls = append(e.Calls, ExecCall{Target: target, Command: command, PublicKey: keys.PublicKey})
	handler := e.Handler
	e.mu.Unlock()

	if handler != nil {
		return handler(target, command)
	}
	output := ""
	if rest, ok := strings.CutPrefix(command, "echo '"); ok && !strings.Contains(command, ">") {
		output = strings.TrimSuffix(rest, "'") + "\n"
	}
	return &executor.Result{ExitCode: 0, Output: output}, nil
}
