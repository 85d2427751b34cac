package tools

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/koscakluka/convai-core/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTimeout = 30 * time.Second

var (
	ErrEmptyName      = errors.New("tool name cannot be empty")
	ErrNilTool        = errors.New("tool cannot be nil")
	ErrDuplicateName  = errors.New("tool already registered")
	ErrRegistryClosed = errors.New("tool registry closed")
)

type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("tool %q already registered", e.Name)
}

func (e *DuplicateNameError) Is(target error) bool { return target == ErrDuplicateName }

// Registry holds the tools of one session. It is safe for concurrent use;
// tools run outside of the registry lock.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	closed bool

	defaultTimeout time.Duration

	// ctx is cancelled by Close and bounds every execution.
	ctx    context.Context
	cancel context.CancelFunc
}

type RegistryOption func(*Registry)

// WithDefaultTimeout sets the timeout used when Execute is called without
// one.
func WithDefaultTimeout(timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		if timeout > 0 {
			r.defaultTimeout = timeout
		}
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		tools:          map[string]Tool{},
		defaultTimeout: DefaultTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Register(name string, tool Tool) error {
	if name == "" {
		return ErrEmptyName
	}
	if tool == nil {
		return ErrNilTool
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.tools[name]; ok {
		return &DuplicateNameError{Name: name}
	}
	r.tools[name] = tool
	return nil
}

// Unregister removes the tool and reports whether it was registered.
// Executions already running are not affected.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return false
	}
	delete(r.tools, name)
	return true
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Definitions lists the registered tools, with description and parameter
// schema for tools implementing [Describer].
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	definitions := make([]Definition, 0, len(r.tools))
	for name, tool := range r.tools {
		definition := Definition{Name: name}
		if described, ok := tool.(Describer); ok {
			definition.Description = described.Description()
			definition.Parameters = described.Schema()
		}
		definitions = append(definitions, definition)
	}
	slices.SortFunc(definitions, func(a, b Definition) int {
		return strings.Compare(a.Name, b.Name)
	})
	return definitions
}

// Execute runs the named tool with params and waits for it to finish, for
// the timeout to expire or for the registry to close. A timeout of zero or
// less uses the registry default.
//
// Failures are reported in the returned [Result], never as panics. A nil
// result means the tool completed without anything to send back.
func (r *Registry) Execute(ctx context.Context, name string, params events.Params, timeout time.Duration) *Result {
	ctx, span := tracer.Start(ctx, "execute tool", trace.WithAttributes(attribute.String("tool.name", name)))
	defer span.End()

	result := r.execute(ctx, name, params, timeout)

	executions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.outcome", result.outcomeLabel()),
	))
	if result != nil && !result.Success {
		span.SetAttributes(attribute.String("tool.failure", string(result.Failure)))
		span.SetStatus(codes.Error, result.Error)
		logger.Warn("tool execution failed",
			"tool", name,
			"failure", string(result.Failure),
			"error", result.Error)
	}
	return result
}

func (r *Registry) execute(ctx context.Context, name string, params events.Params, timeout time.Duration) *Result {
	r.mu.RLock()
	tool, ok := r.tools[name]
	closed := r.closed
	r.mu.RUnlock()

	if closed {
		return failed(FailureCancelled, "Tool '%s' cancelled: %v", name, ErrRegistryClosed)
	}
	if !ok {
		return failed(FailureNotFound, "Tool '%s' not found", name)
	}
	if err := Validate(params); err != nil {
		return failed(FailureInvalid, "%v", err)
	}

	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	type callResult struct {
		value    any
		err      error
		panicked any
	}
	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- callResult{panicked: recovered}
			}
		}()
		value, err := tool.Call(ctx, params)
		done <- callResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		switch {
		case res.panicked != nil:
			return failed(FailurePanicked, "Tool '%s' panicked: %v", name, res.panicked)
		case res.err != nil:
			if interrupted := r.interrupted(ctx, name, timeout); interrupted != nil {
				return interrupted
			}
			return failed(FailureFailed, "%v", res.err)
		case res.value == nil:
			return nil
		}

		output, err := formatOutput(res.value)
		if err != nil {
			return failed(FailureFailed, "%v", err)
		}
		return succeeded(output)

	case <-ctx.Done():
		return r.interrupted(ctx, name, timeout)
	}
}

// interrupted classifies a finished context, returning nil while ctx is
// still live.
func (r *Registry) interrupted(ctx context.Context, name string, timeout time.Duration) *Result {
	switch {
	case ctx.Err() == nil:
		return nil
	case r.ctx.Err() != nil:
		return failed(FailureCancelled, "Tool '%s' cancelled: %v", name, ErrRegistryClosed)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return failed(FailureTimeout, "Tool '%s' timed out after %s", name, timeout)
	default:
		return failed(FailureCancelled, "Tool '%s' cancelled: %v", name, ctx.Err())
	}
}

// Close cancels in-flight executions and removes every tool. Later
// registrations fail with [ErrRegistryClosed].
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.cancel()
	clear(r.tools)
}
