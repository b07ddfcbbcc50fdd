package tools

import (
	"context"
	"slices"
	"strings"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
	"github.com/cosmikwolf/sazid/internal/core/ports/driving"
	"github.com/cosmikwolf/sazid/internal/logger"
)

// Verify interface compliance.
var _ driving.ToolService = (*Dispatcher)(nil)

// Observer is notified of every invocation state transition.
type Observer func(inv domain.ToolInvocation, state domain.InvocationState)

// Dispatcher routes invocations to their tool: it validates arguments,
// builds the command and hands it to the executor. Nothing reaches the
// executor unless validation succeeded.
type Dispatcher struct {
	registry  *Registry
	validator *Validator
	executor  driven.CommandExecutor
	observer  Observer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithObserver sets a state transition observer.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// NewDispatcher creates a dispatcher over the registry.
func NewDispatcher(registry *Registry, validator *Validator, executor driven.CommandExecutor, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		validator: validator,
		executor:  executor,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Definitions returns registered tools sorted by name.
func (d *Dispatcher) Definitions() []domain.ToolDefinition {
	defs := d.registry.Definitions()
	slices.SortFunc(defs, func(a, b domain.ToolDefinition) int {
		return strings.Compare(a.Name, b.Name)
	})
	return defs
}

// Specs returns the registered tools as completion tool specs.
func (d *Dispatcher) Specs() []driven.ToolSpec {
	return Specs(d.Definitions())
}

// Dispatch validates and runs one invocation.
func (d *Dispatcher) Dispatch(ctx context.Context, inv domain.ToolInvocation) (*domain.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state := domain.StateReceived
	d.notify(inv, state)
	advance := func(next domain.InvocationState) {
		if !state.CanTransition(next) {
			logger.Error("tool %s: illegal transition %s -> %s", inv.Tool, state, next)
		}
		state = next
		d.notify(inv, state)
	}

	advance(domain.StateValidating)

	def, ok := d.registry.Lookup(inv.Tool)
	if !ok {
		advance(domain.StateRejected)
		names := d.registry.Names()
		slices.Sort(names)
		return domain.Rejected("unknown tool \"" + inv.Tool + "\"; available tools: " + strings.Join(names, ", ")), nil
	}

	args, err := d.validator.Validate(&def, inv.Arguments)
	if err != nil {
		advance(domain.StateRejected)
		logger.Debug("tool %s rejected: %v", def.Name, err)
		return domain.Rejected(err.Error()), nil
	}

	cmd, err := buildCommand(&def, args, d.validator)
	if err != nil {
		advance(domain.StateRejected)
		logger.Debug("tool %s rejected: %v", def.Name, err)
		return domain.Rejected(err.Error()), nil
	}

	advance(domain.StateExecuting)
	logger.Debug("tool %s: %s %s", def.Name, cmd.Program, strings.Join(cmd.Args, " "))

	res, err := d.executor.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if res.OK() {
		advance(domain.StateCompleted)
	} else {
		advance(domain.StateFailed)
	}
	logger.Debug("tool %s %s", def.Name, describeOutcome(res))
	return res, nil
}

func (d *Dispatcher) notify(inv domain.ToolInvocation, state domain.InvocationState) {
	if d.observer != nil {
		d.observer(inv, state)
	}
}
