package server

import (
	"context"
	"editor-rpc/message"
	"editor-rpc/middleware"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Handler runs one command. Its result is JSON encoded into the response;
// a returned error becomes the response's error string.
type Handler func(ctx context.Context, args map[string]any) (any, error)

var (
	ErrEmptyCommand     = errors.New("empty command name")
	ErrNilHandler       = errors.New("nil handler")
	ErrDuplicateCommand = errors.New("command already registered")
)

// Dispatcher routes requests to registered handlers through the middleware chain.
//
//	Dispatch → Middleware Chain → invoke (lookup + recover) → Handler
//
// Handlers may run concurrently; one failing or panicking handler only
// affects its own response.
type Dispatcher struct {
	log *zap.Logger

	mu          sync.RWMutex
	handlers    map[string]Handler
	middlewares []middleware.Middleware
	chain       middleware.HandlerFunc // rebuilt by Use
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		log:      logger.Named("dispatcher"),
		handlers: make(map[string]Handler),
	}
	d.chain = d.invoke
	return d
}

// Register makes handler available as command name.
func (d *Dispatcher) Register(name string, handler Handler) error {
	if name == "" {
		return ErrEmptyCommand
	}
	if handler == nil {
		return fmt.Errorf("%s: %w", name, ErrNilHandler)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrDuplicateCommand)
	}
	d.handlers[name] = handler
	return nil
}

// RegisterService registers every exported method of rcvr that looks like a
// Handler, under the method name with its first letter lowered:
//
//	func (s *Editor) EnsureImportUpdates(ctx context.Context, args map[string]any) (any, error)
//
// becomes command "ensureImportUpdates". It is an error if rcvr has no such method.
func (d *Dispatcher) RegisterService(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	for _, name := range svc.commands() {
		if err := d.Register(name, svc.handler(name)); err != nil {
			return fmt.Errorf("%s: %w", svc.name, err)
		}
	}
	return nil
}

// Use appends mw to the chain. Middlewares run in the order they were added.
func (d *Dispatcher) Use(mw middleware.Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middlewares = append(d.middlewares, mw)
	d.chain = middleware.Chain(d.middlewares...)(d.invoke)
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch answers req. It never returns nil and the response always carries req.ID.
func (d *Dispatcher) Dispatch(ctx context.Context, req *message.Request) *message.Response {
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	d.mu.RLock()
	chain := d.chain
	d.mu.RUnlock()

	resp := chain(ctx, req)
	if resp == nil {
		resp = message.NewError(req.ID, "no response")
	}
	resp.ID = req.ID
	return resp
}

// invoke is the innermost handler of the chain. Recovery lives here so a
// panic is caught even when a middleware runs the handler on another goroutine.
func (d *Dispatcher) invoke(ctx context.Context, req *message.Request) (resp *message.Response) {
	d.mu.RLock()
	handler, ok := d.handlers[req.Command]
	d.mu.RUnlock()
	if !ok {
		return message.NewError(req.ID, "Unknown command: "+req.Command)
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panicked",
				zap.String("command", req.Command),
				zap.String("id", req.ID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			resp = message.NewError(req.ID, fmt.Sprintf("handler panicked: %v", r))
		}
	}()

	result, err := handler(ctx, req.Arguments)
	if err != nil {
		return message.NewError(req.ID, err.Error())
	}
	resp, err = message.NewResult(req.ID, result)
	if err != nil {
		return message.NewError(req.ID, err.Error())
	}
	return resp
}
