package pipeline

import (
	"sync"

	"go.uber.org/zap"
)

// Factory builds the controller for a session.
type Factory func(session string) *Controller

// AttachFunc runs once for each newly created controller, before it is handed out.
type AttachFunc func(session string, c *Controller)

// Registry keeps one controller per session, created on first use.
type Registry struct {
	factory Factory
	attach  []AttachFunc
	logger  *zap.Logger

	mu          sync.Mutex
	controllers map[string]*Controller
	closed      bool
}

// NewRegistry returns an empty registry.
func NewRegistry(factory Factory, logger *zap.Logger, attach ...AttachFunc) *Registry {
	return &Registry{
		factory:     factory,
		attach:      attach,
		logger:      logger.Named("registry"),
		controllers: make(map[string]*Controller),
	}
}

// Get returns the controller for session, creating it if needed.
func (r *Registry) Get(session string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if c, ok := r.controllers[session]; ok {
		return c, nil
	}

	c := r.factory(session)
	for _, fn := range r.attach {
		fn(session, c)
	}
	r.controllers[session] = c
	r.logger.Debug("created pipeline controller", zap.String("session", session))
	return c, nil
}

// Len reports how many sessions have a controller.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}

// Close shuts down every controller. Later Get calls fail with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	controllers := r.controllers
	r.controllers = make(map[string]*Controller)
	r.mu.Unlock()

	for _, c := range controllers {
		c.Close()
	}
}
