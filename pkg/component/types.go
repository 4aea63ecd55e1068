package component

import "path/filepath"

// ManifestFileName is the manifest file expected in every component directory.
const ManifestFileName = "component.yaml"

// Component is a discovered component. Its identity is the directory path
// relative to the configured root; no other state is tracked between
// packaging runs.
type Component struct {
	// Path is the component directory relative to the root.
	Path string `json:"path"`

	// Manifest is the parsed component manifest.
	Manifest Manifest `json:"manifest"`
}

// Name returns the component's declared name, falling back to the directory
// base name when the manifest leaves it empty.
func (c Component) Name() string {
	if c.Manifest.Name != "" {
		return c.Manifest.Name
	}
	return filepath.Base(c.Path)
}

// AbsPath returns the absolute component directory beneath root.
func (c Component) AbsPath(root string) string {
	return filepath.Join(root, c.Path)
}

// Manifest is the declared metadata of a component.
type Manifest struct {
	// Name is the component name.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Dependencies lists the runtime module names this component requires.
	Dependencies []string `yaml:"dependencies" json:"dependencies,omitempty"`

	// Plugins lists the registry plugins this component declares it uses.
	Plugins []string `yaml:"plugins" json:"plugins,omitempty"`
}

// DependencySet computes the deduplicated union of runtime module names
// declared across all components, preserving first-seen order.
func DependencySet(components []Component) []string {
	seen := make(map[string]bool)
	var set []string
	for _, c := range components {
		for _, dep := range c.Manifest.Dependencies {
			if dep == "" || seen[dep] {
				continue
			}
			seen[dep] = true
			set = append(set, dep)
		}
	}
	return set
}
