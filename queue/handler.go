package queue

import (
	"context"
	"fmt"
	"sync"
)

// JobHandler defines the interface for executing a specific job type.
// Domain packages implement this interface to handle their job types,
// keeping the queue infrastructure decoupled from domain logic.
type JobHandler interface {
	// Execute runs the job and returns any error encountered.
	// Handlers decode their own payload from job.Payload and must check
	// ctx.Done() periodically so shutdown can interrupt long work.
	Execute(ctx context.Context, job *Job) error

	// Name returns the handler name (e.g. "pipeline.run").
	// Used for handler registration and job routing.
	Name() string
}

// HandlerRegistry manages job handlers by name.
// Thread-safe for concurrent handler registration and lookup.
type HandlerRegistry struct {
	handlers map[string]JobHandler
	mu       sync.RWMutex
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]JobHandler),
	}
}

// Register adds a handler using its name.
// Panics if a handler is already registered with that name.
func (r *HandlerRegistry) Register(handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handlerName := handler.Name()
	if _, exists := r.handlers[handlerName]; exists {
		panic(fmt.Sprintf("handler already registered for name: %s", handlerName))
	}
	r.handlers[handlerName] = handler
}

// Get retrieves the handler for a handler name.
// Returns nil if no handler is registered.
func (r *HandlerRegistry) Get(handlerName string) JobHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[handlerName]
}

// Has checks if a handler is registered for a name.
func (r *HandlerRegistry) Has(handlerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[handlerName]
	return exists
}

// Names returns all registered handler names.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// JobExecutor executes a dequeued job.
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// RegistryExecutor adapts a HandlerRegistry to the JobExecutor interface.
type RegistryExecutor struct {
	registry *HandlerRegistry
}

// NewRegistryExecutor creates an executor backed by a handler registry.
func NewRegistryExecutor(registry *HandlerRegistry) *RegistryExecutor {
	return &RegistryExecutor{registry: registry}
}

// Execute implements JobExecutor by dispatching to registered handlers.
func (e *RegistryExecutor) Execute(ctx context.Context, job *Job) error {
	if job.HandlerName == "" {
		return fmt.Errorf("job missing handler_name")
	}

	handler := e.registry.Get(job.HandlerName)
	if handler == nil {
		return fmt.Errorf("no handler registered for handler name: %s", job.HandlerName)
	}

	return handler.Execute(ctx, job)
}
