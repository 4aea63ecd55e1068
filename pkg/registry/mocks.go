package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
)

// MockConfigFileName is the optional local configuration file read from the
// working directory.
const MockConfigFileName = "loom.config.json"

// mockConfig mirrors the recognized shape of the local configuration file.
type mockConfig struct {
	Mocks struct {
		Plugins struct {
			Static map[string]any `json:"static"`
		} `json:"plugins"`
	} `json:"mocks"`
}

// LoadMocks reads the optional mocks configuration at path and synthesizes
// one StaticPlugin per declared entry, sorted by name. A missing file or a
// missing mocks section yields an empty set, not an error.
func LoadMocks(path string) ([]StaticPlugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read mock configuration: %w", err)
	}

	var cfg mockConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	static := cfg.Mocks.Plugins.Static
	if len(static) == 0 {
		return nil, nil
	}

	plugins := make([]StaticPlugin, 0, len(static))
	for name, value := range static {
		plugins = append(plugins, StaticPlugin{PluginName: name, Value: value})
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].PluginName < plugins[j].PluginName
	})

	return plugins, nil
}
