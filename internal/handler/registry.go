// Package handler provides the discoverable set of subscribe and disconnect
// callbacks. Handlers are registered explicitly at process startup through a
// typed interface; there is no runtime introspection. After Freeze the
// registry is read-only, so dispatch reads need no locking.
package handler

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/real-rm/chatrelay/internal/auth"
	"github.com/real-rm/chatrelay/internal/metrics"
)

// SubscribeFunc is invoked when a gated subscribe matches its pattern.
// pathVars carries the named segments extracted from the destination.
type SubscribeFunc func(info auth.Info, pathVars map[string]string)

// DisconnectFunc is invoked unconditionally when a connection disconnects.
type DisconnectFunc func(info auth.Info)

// subscribeDescriptor binds a compiled topic template to its callback.
type subscribeDescriptor struct {
	pattern    string
	matcher    *regexp.Regexp
	paramNames []string
	target     SubscribeFunc
}

// Registry holds the registered subscribe and disconnect handlers.
type Registry struct {
	subscribes  []*subscribeDescriptor
	disconnects []DisconnectFunc
	sends       map[string]SendFunc
	frozen      bool
	mu          sync.Mutex
	logger      *zap.Logger
}

// NewRegistry creates an empty handler registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger.Named("handlers"),
	}
}

// RegisterSubscribe binds a topic template with named segments, e.g.
// "/topic/user/{userId}/messages", to a callback. Panics after Freeze.
func (r *Registry) RegisterSubscribe(pattern string, fn SubscribeFunc) error {
	desc, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	desc.target = fn

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("handler: RegisterSubscribe after Freeze")
	}
	r.subscribes = append(r.subscribes, desc)
	return nil
}

// RegisterDisconnect binds a disconnect callback. Panics after Freeze.
func (r *Registry) RegisterDisconnect(fn DisconnectFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("handler: RegisterDisconnect after Freeze")
	}
	r.disconnects = append(r.disconnects, fn)
}

// Freeze marks the registry read-only. Call once after startup wiring.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// DispatchSubscribe invokes every registered handler whose pattern matches
// the destination. A handler panic is recovered and logged; one failing
// handler must not block the others or the subscribe itself.
func (r *Registry) DispatchSubscribe(info auth.Info, destination string) int {
	matched := 0
	for _, desc := range r.subscribes {
		vars, ok := desc.match(destination)
		if !ok {
			continue
		}
		matched++
		r.invoke(desc.pattern, func() { desc.target(info, vars) })
	}
	return matched
}

// DispatchDisconnect invokes every disconnect handler with the connection's
// principal, with the same per-handler isolation.
func (r *Registry) DispatchDisconnect(info auth.Info) {
	for _, fn := range r.disconnects {
		r.invoke("disconnect", func() { fn(info) })
	}
}

// invoke runs one handler with panic isolation.
func (r *Registry) invoke(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.HandlerFailures.Inc()
			r.logger.Error("Handler panicked",
				zap.String("handler", name),
				zap.String("panic", fmt.Sprintf("%v", rec)))
		}
	}()
	fn()
}

// match tests a destination against the compiled template and extracts the
// named segments by positional group mapping.
func (d *subscribeDescriptor) match(destination string) (map[string]string, bool) {
	groups := d.matcher.FindStringSubmatch(destination)
	if groups == nil {
		return nil, false
	}
	vars := make(map[string]string, len(d.paramNames))
	for i, name := range d.paramNames {
		vars[name] = groups[i+1]
	}
	return vars, true
}

// compilePattern turns a segment template into an anchored regexp with one
// capture group per {name} placeholder.
func compilePattern(pattern string) (*subscribeDescriptor, error) {
	if pattern == "" || !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("handler: pattern %q must start with '/'", pattern)
	}

	var names []string
	var b strings.Builder
	b.WriteString("^")
	for _, segment := range strings.Split(strings.TrimPrefix(pattern, "/"), "/") {
		b.WriteString("/")
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			name := segment[1 : len(segment)-1]
			if name == "" {
				return nil, fmt.Errorf("handler: empty placeholder in pattern %q", pattern)
			}
			names = append(names, name)
			b.WriteString("([^/]+)")
			continue
		}
		b.WriteString(regexp.QuoteMeta(segment))
	}
	b.WriteString("$")

	matcher, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("handler: compile pattern %q: %w", pattern, err)
	}

	return &subscribeDescriptor{
		pattern:    pattern,
		matcher:    matcher,
		paramNames: names,
	}, nil
}
