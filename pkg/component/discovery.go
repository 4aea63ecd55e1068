package component

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Discoverer enumerates the components beneath a root directory.
// An empty result and an error are distinct outcomes; the orchestrator
// treats both as fatal.
type Discoverer interface {
	Discover(ctx context.Context, rootDir string) ([]Component, error)
}

// FSDiscoverer discovers components by scanning the immediate subdirectories
// of the root for a component manifest.
type FSDiscoverer struct {
	logger   zerolog.Logger
	validate *validator.Validate
}

// NewFSDiscoverer creates a filesystem-backed discoverer.
func NewFSDiscoverer(logger zerolog.Logger) *FSDiscoverer {
	return &FSDiscoverer{
		logger:   logger.With().Str("component", "discovery").Logger(),
		validate: validator.New(),
	}
}

// Discover scans rootDir for component directories. Results are sorted by
// path so packaging order is stable across runs.
func (d *FSDiscoverer) Discover(ctx context.Context, rootDir string) ([]Component, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read component root %s: %w", rootDir, err)
	}

	var components []Component
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}

		manifestPath := filepath.Join(rootDir, entry.Name(), ManifestFileName)
		if _, err := os.Stat(manifestPath); err != nil {
			// Not a component directory.
			continue
		}

		manifest, err := d.loadManifest(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("invalid manifest for %s: %w", entry.Name(), err)
		}

		components = append(components, Component{
			Path:     entry.Name(),
			Manifest: *manifest,
		})
	}

	sort.Slice(components, func(i, j int) bool {
		return components[i].Path < components[j].Path
	})

	d.logger.Debug().
		Int("count", len(components)).
		Str("root", rootDir).
		Msg("Component discovery finished")

	return components, nil
}

// loadManifest parses and validates a single component manifest.
func (d *FSDiscoverer) loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := d.validate.Struct(manifest); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}

	return &manifest, nil
}
