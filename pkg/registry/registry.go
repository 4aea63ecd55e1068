package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomdev/loom/pkg/telemetry"
)

// Registry is the local dev registry. It serves packaged artifacts from the
// component root, executes registered plugins over HTTP, and emits
// diagnostics to subscribers.
type Registry struct {
	logger  zerolog.Logger
	config  Config
	metrics *telemetry.Metrics

	mu          sync.RWMutex
	plugins     map[string]Plugin
	declared    map[string]map[string]bool // component -> plugin set
	subscribers []func(Diagnostic)

	server   *http.Server
	listener net.Listener
}

// NewRegistry creates a registry from an immutable configuration snapshot.
// declaredPlugins maps each component name to the plugins its manifest
// declares; it feeds the plugin-not-declared diagnostic.
func NewRegistry(logger zerolog.Logger, cfg Config, declaredPlugins map[string][]string, metrics *telemetry.Metrics) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	declared := make(map[string]map[string]bool, len(declaredPlugins))
	for comp, plugins := range declaredPlugins {
		set := make(map[string]bool, len(plugins))
		for _, p := range plugins {
			set[p] = true
		}
		declared[comp] = set
	}

	return &Registry{
		logger:   logger.With().Str("component", "registry").Logger(),
		config:   cfg,
		metrics:  metrics,
		plugins:  make(map[string]Plugin),
		declared: declared,
	}, nil
}

// Config returns the configuration snapshot.
func (r *Registry) Config() Config {
	return r.config
}

// Register adds a plugin to the registry, invoking its registration hook.
func (r *Registry) Register(ctx context.Context, plugin Plugin) error {
	name := plugin.Name()
	if name == "" {
		return errors.New("plugin has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %s already registered", name)
	}

	if err := plugin.Register(ctx); err != nil {
		return fmt.Errorf("plugin %s registration hook failed: %w", name, err)
	}

	r.plugins[name] = plugin
	if r.metrics != nil {
		r.metrics.RecordPluginRegistered()
	}
	return nil
}

// Subscribe adds a diagnostic subscriber. Subscribers are invoked
// synchronously in registration order.
func (r *Registry) Subscribe(fn func(Diagnostic)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// emit delivers a diagnostic to all subscribers.
func (r *Registry) emit(d Diagnostic) {
	if r.metrics != nil {
		r.metrics.RecordDiagnostic(d.Kind.String())
	}

	r.mu.RLock()
	subscribers := append([]func(Diagnostic){}, r.subscribers...)
	r.mu.RUnlock()

	for _, fn := range subscribers {
		fn(d)
	}
}

// CheckComponents emits a diagnostic for every plugin a component declares
// that is absent from the running registry. The bootstrapper runs this once
// after mock registration.
func (r *Registry) CheckComponents() {
	var missing []Diagnostic
	r.mu.RLock()
	for comp, plugins := range r.declared {
		for plugin := range plugins {
			if _, ok := r.plugins[plugin]; !ok {
				missing = append(missing, Diagnostic{
					Kind:      DiagPluginNotRegistered,
					Plugin:    plugin,
					Component: comp,
				})
			}
		}
	}
	r.mu.RUnlock()

	for _, d := range missing {
		r.emit(d)
	}
}

// Start binds the listener and serves in the background. A bind failure is
// returned synchronously; use IsAddrInUse to recognize a port conflict.
func (r *Registry) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", r.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	r.listener = listener

	r.server = &http.Server{
		Handler:           r.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := r.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error().Err(err).Msg("Registry server stopped")
		}
	}()

	r.logger.Info().
		Str("url", r.config.BaseURL).
		Int("port", r.config.Port).
		Msg("Dev registry listening")

	return nil
}

// Close shuts the server down gracefully.
func (r *Registry) Close(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}

// routes builds the HTTP mux: packaged artifacts, plugin execution, health,
// and metrics.
func (r *Registry) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/components/", http.StripPrefix("/components/",
		http.FileServer(http.Dir(r.config.RootPath))))

	mux.HandleFunc("/plugins/", r.handlePlugin)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if r.metrics != nil {
		if h := r.metrics.Handler(); h != nil {
			mux.Handle("/metrics", h)
		}
	}

	return mux
}

// handlePlugin executes a registered plugin. The caller identifies itself
// with the X-Loom-Component header so plugin usage can be checked against
// the component's declared manifest.
func (r *Registry) handlePlugin(w http.ResponseWriter, req *http.Request) {
	name := strings.TrimPrefix(req.URL.Path, "/plugins/")
	if name == "" || strings.Contains(name, "/") {
		http.NotFound(w, req)
		return
	}
	caller := req.Header.Get("X-Loom-Component")

	r.mu.RLock()
	plugin, ok := r.plugins[name]
	r.mu.RUnlock()

	if !ok {
		r.emit(Diagnostic{Kind: DiagPluginNotRegistered, Plugin: name, Component: caller})
		http.Error(w, fmt.Sprintf("plugin %s not registered", name), http.StatusNotFound)
		return
	}

	if caller != "" && !r.declaredBy(caller, name) {
		r.emit(Diagnostic{Kind: DiagPluginNotDeclared, Plugin: name, Component: caller})
	}

	var input any
	if body, err := io.ReadAll(req.Body); err == nil && len(body) > 0 {
		_ = json.Unmarshal(body, &input)
	}

	result, err := plugin.Execute(req.Context(), input)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
}

// declaredBy reports whether the component's manifest declares the plugin.
func (r *Registry) declaredBy(comp, plugin string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.declared[comp]
	return ok && set[plugin]
}

// IsAddrInUse reports whether err is a listen failure caused by the address
// already being bound.
func IsAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
