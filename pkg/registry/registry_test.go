package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return NewConfig(t.TempDir(), DefaultPort, []string{"left-pad"})
}

func newTestRegistry(t *testing.T, declared map[string][]string) *Registry {
	t.Helper()
	r, err := NewRegistry(zerolog.Nop(), testConfig(t), declared, nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return r
}

func TestConfigDefaults(t *testing.T) {
	cfg := NewConfig("/tmp/components", 0, nil)
	if cfg.Port != DefaultPort {
		t.Errorf("expected default port %d, got %d", DefaultPort, cfg.Port)
	}
	if cfg.BaseURL != "http://localhost:3000" {
		t.Errorf("unexpected base URL %s", cfg.BaseURL)
	}
	if !cfg.Local || cfg.Environment != "dev" {
		t.Errorf("expected local dev config, got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := NewConfig("", 0, nil)
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure for empty root path")
	}
}

func TestStaticPluginAlwaysReturnsValue(t *testing.T) {
	plugin := StaticPlugin{PluginName: "analytics", Value: "disabled"}.Plugin()

	if plugin.Name() != "analytics" {
		t.Errorf("unexpected name %s", plugin.Name())
	}
	if err := plugin.Register(context.Background()); err != nil {
		t.Errorf("registration hook must succeed: %v", err)
	}
	for _, input := range []any{nil, "x", map[string]any{"a": 1}, 42} {
		result, err := plugin.Execute(context.Background(), input)
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if result != "disabled" {
			t.Errorf("expected fixed value regardless of input %v, got %v", input, result)
		}
	}
}

func TestLoadMocks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, MockConfigFileName)
	cfg := `{"mocks":{"plugins":{"static":{"analytics":"disabled","flags":{"beta":true}}}}}`
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	plugins, err := LoadMocks(path)
	if err != nil {
		t.Fatalf("LoadMocks failed: %v", err)
	}
	if len(plugins) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(plugins))
	}
	// Sorted by name.
	if plugins[0].PluginName != "analytics" || plugins[1].PluginName != "flags" {
		t.Errorf("unexpected order: %+v", plugins)
	}
	if plugins[0].Value != "disabled" {
		t.Errorf("unexpected value: %v", plugins[0].Value)
	}
}

func TestLoadMocksMissingFile(t *testing.T) {
	plugins, err := LoadMocks(filepath.Join(t.TempDir(), MockConfigFileName))
	if err != nil {
		t.Fatalf("missing file must not be an error: %v", err)
	}
	if plugins != nil {
		t.Errorf("expected empty set, got %+v", plugins)
	}
}

func TestLoadMocksMissingSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, MockConfigFileName)
	if err := os.WriteFile(path, []byte(`{"other":true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	plugins, err := LoadMocks(path)
	if err != nil {
		t.Fatalf("missing section must not be an error: %v", err)
	}
	if len(plugins) != 0 {
		t.Errorf("expected empty set, got %+v", plugins)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := newTestRegistry(t, nil)
	plugin := StaticPlugin{PluginName: "analytics", Value: 1}.Plugin()

	if err := r.Register(context.Background(), plugin); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := r.Register(context.Background(), plugin); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestPluginExecutionOverHTTP(t *testing.T) {
	r := newTestRegistry(t, map[string][]string{"header": {"analytics"}})
	if err := r.Register(context.Background(), StaticPlugin{PluginName: "analytics", Value: "disabled"}.Plugin()); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(r.routes())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/plugins/analytics", strings.NewReader(`{"page":"/"}`))
	req.Header.Set("X-Loom-Component", "header")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["result"] != "disabled" {
		t.Errorf("expected fixed mock value, got %v", body["result"])
	}
}

func TestDiagnosticsPluginNotRegistered(t *testing.T) {
	r := newTestRegistry(t, nil)

	var mu sync.Mutex
	var seen []Diagnostic
	r.Subscribe(func(d Diagnostic) {
		mu.Lock()
		seen = append(seen, d)
		mu.Unlock()
	})

	srv := httptest.NewServer(r.routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/plugins/missing", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0].Kind != DiagPluginNotRegistered || seen[0].Plugin != "missing" {
		t.Fatalf("unexpected diagnostics: %+v", seen)
	}
}

func TestDiagnosticsPluginNotDeclared(t *testing.T) {
	r := newTestRegistry(t, map[string][]string{"header": {}})
	if err := r.Register(context.Background(), StaticPlugin{PluginName: "analytics", Value: 1}.Plugin()); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var seen []Diagnostic
	r.Subscribe(func(d Diagnostic) {
		mu.Lock()
		seen = append(seen, d)
		mu.Unlock()
	})

	srv := httptest.NewServer(r.routes())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/plugins/analytics", nil)
	req.Header.Set("X-Loom-Component", "header")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0].Kind != DiagPluginNotDeclared || seen[0].Component != "header" {
		t.Fatalf("unexpected diagnostics: %+v", seen)
	}
}

func TestCheckComponentsEmitsMissingPlugins(t *testing.T) {
	r := newTestRegistry(t, map[string][]string{"footer": {"analytics"}})

	var seen []Diagnostic
	r.Subscribe(func(d Diagnostic) { seen = append(seen, d) })

	r.CheckComponents()
	if len(seen) != 1 || seen[0].Kind != DiagPluginNotRegistered || seen[0].Plugin != "analytics" {
		t.Fatalf("unexpected diagnostics: %+v", seen)
	}

	// Registering the plugin clears the diagnostic.
	seen = nil
	if err := r.Register(context.Background(), StaticPlugin{PluginName: "analytics", Value: 1}.Plugin()); err != nil {
		t.Fatal(err)
	}
	r.CheckComponents()
	if len(seen) != 0 {
		t.Fatalf("expected no diagnostics, got %+v", seen)
	}
}

func TestDiagnosticHints(t *testing.T) {
	hint := Diagnostic{Kind: DiagPluginNotRegistered, Plugin: "analytics"}.Hint()
	if !strings.Contains(hint, "analytics") || !strings.Contains(hint, MockConfigFileName) {
		t.Errorf("hint should name the plugin and the mock file: %s", hint)
	}

	hint = Diagnostic{Kind: DiagPluginNotDeclared, Plugin: "analytics", Component: "header"}.Hint()
	if !strings.Contains(hint, "header") || !strings.Contains(hint, "component.yaml") {
		t.Errorf("hint should name the component and manifest: %s", hint)
	}
}

func TestStartPortInUse(t *testing.T) {
	// Occupy a random free port, then point the registry at it.
	occupied, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer occupied.Close()

	cfg := NewConfig(t.TempDir(), occupied.Addr().(*net.TCPAddr).Port, nil)
	r, err := NewRegistry(zerolog.Nop(), cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	err = r.Start(context.Background())
	if err == nil {
		_ = r.Close(context.Background())
		t.Fatal("expected bind failure on occupied port")
	}
	if !IsAddrInUse(err) {
		t.Fatalf("expected address-in-use error, got %v", err)
	}
}

func TestStartAndServeHealth(t *testing.T) {
	free, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	port := free.Addr().(*net.TCPAddr).Port
	free.Close()

	cfg := NewConfig(t.TempDir(), port, nil)
	r, err := NewRegistry(zerolog.Nop(), cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = r.Close(context.Background()) }()

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/healthz", port))
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}
