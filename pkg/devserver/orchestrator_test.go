package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomdev/loom/pkg/component"
	"github.com/loomdev/loom/pkg/packaging"
	"github.com/loomdev/loom/pkg/watch"
)

type mockDiscoverer struct {
	components []component.Component
	err        error
}

func (m *mockDiscoverer) Discover(context.Context, string) ([]component.Component, error) {
	return m.components, m.err
}

type mockResolver struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockResolver) Ensure(_ context.Context, components []component.Component) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return component.DependencySet(components), nil
}

type mockWatcher struct {
	mu       sync.Mutex
	attached chan struct{}
	onEvent  func(watch.Event)
}

func newMockWatcher() *mockWatcher {
	return &mockWatcher{attached: make(chan struct{})}
}

func (m *mockWatcher) Watch(_ context.Context, _ []component.Component, _ string, onEvent func(watch.Event)) error {
	m.mu.Lock()
	m.onEvent = onEvent
	m.mu.Unlock()
	close(m.attached)
	return nil
}

func (m *mockWatcher) fire(e watch.Event) {
	m.mu.Lock()
	fn := m.onEvent
	m.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

type countingPackager struct {
	mu    sync.Mutex
	calls []string
}

func (p *countingPackager) Package(_ context.Context, componentDir string, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, filepath.Base(componentDir))
	return nil
}

func (p *countingPackager) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func testComponents() []component.Component {
	return []component.Component{
		{Path: "footer", Manifest: component.Manifest{Name: "footer", Dependencies: []string{"left-pad"}}},
		{Path: "header", Manifest: component.Manifest{Name: "header", Dependencies: []string{"left-pad"}}},
	}
}

func newOrchestrator(t *testing.T, d *mockDiscoverer, r *mockResolver, p packaging.Packager, w Watcher, opts Options) *Orchestrator {
	t.Helper()
	coordinator := packaging.NewCoordinator(zerolog.Nop(), p, opts.RootDir,
		packaging.WithRetryPolicy(packaging.RetryPolicy{Delay: 0}))
	return New(zerolog.Nop(), opts, d, r, coordinator, w, nil, nil)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRunHappyPath(t *testing.T) {
	// Scenario: two components package successfully, the registry starts on
	// the configured port with a mock plugin, and the watcher attaches.
	dir := t.TempDir()
	mockCfg := filepath.Join(dir, "loom.config.json")
	if err := os.WriteFile(mockCfg, []byte(`{"mocks":{"plugins":{"static":{"analytics":"disabled"}}}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	port := freePort(t)
	discoverer := &mockDiscoverer{components: testComponents()}
	resolver := &mockResolver{}
	packager := &countingPackager{}
	watcher := newMockWatcher()

	o := newOrchestrator(t, discoverer, resolver, packager, watcher, Options{
		RootDir:        dir,
		Port:           port,
		MockConfigPath: mockCfg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	select {
	case <-watcher.attached:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never attached")
	}

	if packager.count() != 2 {
		t.Errorf("expected both components packaged, got %d calls", packager.count())
	}
	if resolver.calls != 1 {
		t.Errorf("expected one dependency resolution, got %d", resolver.calls)
	}

	// The registry serves the configured mock plugin value.
	resp, err := http.Post(fmt.Sprintf("http://localhost:%d/plugins/analytics", port), "application/json", nil)
	if err != nil {
		t.Fatalf("registry not reachable: %v", err)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if body["result"] != "disabled" {
		t.Errorf("expected mock value disabled, got %v", body["result"])
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestRunNoComponentsIsFatal(t *testing.T) {
	discoverer := &mockDiscoverer{}
	resolver := &mockResolver{}
	packager := &countingPackager{}
	watcher := newMockWatcher()

	o := newOrchestrator(t, discoverer, resolver, packager, watcher, Options{RootDir: t.TempDir()})

	err := o.Run(context.Background())
	if !errors.Is(err, ErrNoComponents) {
		t.Fatalf("expected ErrNoComponents, got %v", err)
	}
	if resolver.calls != 0 || packager.count() != 0 {
		t.Error("no further steps may run after empty discovery")
	}
}

func TestRunDiscoveryErrorIsFatal(t *testing.T) {
	discoverer := &mockDiscoverer{err: errors.New("permission denied")}
	o := newOrchestrator(t, discoverer, &mockResolver{}, &countingPackager{}, newMockWatcher(), Options{RootDir: t.TempDir()})

	if err := o.Run(context.Background()); err == nil {
		t.Fatal("expected discovery error to surface")
	}
}

func TestRunInstallFailureIsFatal(t *testing.T) {
	discoverer := &mockDiscoverer{components: testComponents()}
	resolver := &mockResolver{err: errors.New("install failed")}
	packager := &countingPackager{}

	o := newOrchestrator(t, discoverer, resolver, packager, newMockWatcher(), Options{RootDir: t.TempDir()})

	if err := o.Run(context.Background()); err == nil {
		t.Fatal("expected install failure to surface")
	}
	if packager.count() != 0 {
		t.Error("packaging must not proceed without a satisfied dependency set")
	}
}

func TestWatchEventTriggersFullRepackage(t *testing.T) {
	// Scenario: a watched file changes while no packaging run is active;
	// exactly one new batch covers the full, unchanged component list.
	dir := t.TempDir()
	port := freePort(t)
	discoverer := &mockDiscoverer{components: testComponents()}
	packager := &countingPackager{}
	watcher := newMockWatcher()

	o := newOrchestrator(t, discoverer, &mockResolver{}, packager, watcher, Options{
		RootDir:        dir,
		Port:           port,
		MockConfigPath: filepath.Join(dir, "loom.config.json"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Run(ctx) }()

	<-watcher.attached
	waitFor(t, 5*time.Second, func() bool { return packager.count() == 2 }, "initial batch never finished")

	watcher.fire(watch.Event{Path: "header/index.js"})
	waitFor(t, 5*time.Second, func() bool { return packager.count() == 4 },
		"change event must repackage the full component list")
}

func TestWatchErrorIsLoggedOnly(t *testing.T) {
	dir := t.TempDir()
	discoverer := &mockDiscoverer{components: testComponents()}
	packager := &countingPackager{}
	watcher := newMockWatcher()

	o := newOrchestrator(t, discoverer, &mockResolver{}, packager, watcher, Options{
		RootDir:        dir,
		Port:           freePort(t),
		MockConfigPath: filepath.Join(dir, "loom.config.json"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Run(ctx) }()

	<-watcher.attached
	waitFor(t, 5*time.Second, func() bool { return packager.count() == 2 }, "initial batch never finished")

	watcher.fire(watch.Event{Err: errors.New("inotify overflow")})

	// No repackaging happens for error events.
	time.Sleep(100 * time.Millisecond)
	if packager.count() != 2 {
		t.Fatalf("watcher error must not trigger packaging, got %d calls", packager.count())
	}
}

func TestMockRegistrationFailureSkipsServerButKeepsWatcher(t *testing.T) {
	// A mock with an empty name fails registration; the server start is
	// skipped but the watcher still attaches.
	dir := t.TempDir()
	mockCfg := filepath.Join(dir, "loom.config.json")
	if err := os.WriteFile(mockCfg, []byte(`{"mocks":{"plugins":{"static":{"":"oops"}}}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	port := freePort(t)
	watcher := newMockWatcher()
	o := newOrchestrator(t, &mockDiscoverer{components: testComponents()}, &mockResolver{}, &countingPackager{}, watcher, Options{
		RootDir:        dir,
		Port:           port,
		MockConfigPath: mockCfg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Run(ctx) }()

	select {
	case <-watcher.attached:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher must attach even when mock registration fails")
	}

	if _, err := http.Get(fmt.Sprintf("http://localhost:%d/healthz", port)); err == nil {
		t.Fatal("server must not start when mock registration fails")
	}
}

func TestPortConflictIsNonFatal(t *testing.T) {
	// Another process holds the port: the bind failure is reported but the
	// watcher still attaches.
	occupied, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer occupied.Close()
	port := occupied.Addr().(*net.TCPAddr).Port

	dir := t.TempDir()
	watcher := newMockWatcher()
	o := newOrchestrator(t, &mockDiscoverer{components: testComponents()}, &mockResolver{}, &countingPackager{}, watcher, Options{
		RootDir:        dir,
		Port:           port,
		MockConfigPath: filepath.Join(dir, "loom.config.json"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Run(ctx) }()

	select {
	case <-watcher.attached:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher must attach after a bind failure")
	}
}
