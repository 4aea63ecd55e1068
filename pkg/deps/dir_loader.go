package deps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DirLoader loads modules from a modules directory on disk. Successful loads
// are cached per process; Invalidate drops the cache entry so the next Load
// re-probes the filesystem.
type DirLoader struct {
	dir string

	mu    sync.Mutex
	cache map[string]bool
}

// NewDirLoader creates a loader rooted at the given modules directory.
func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{
		dir:   dir,
		cache: make(map[string]bool),
	}
}

// Load reports whether the module directory exists.
func (l *DirLoader) Load(ctx context.Context, module string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	cached := l.cache[module]
	l.mu.Unlock()
	if cached {
		return nil
	}

	info, err := os.Stat(filepath.Join(l.dir, module))
	if err != nil {
		return fmt.Errorf("module %s not found in %s: %w", module, l.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("module %s is not a directory", module)
	}

	l.mu.Lock()
	l.cache[module] = true
	l.mu.Unlock()
	return nil
}

// Invalidate drops the cached load of module.
func (l *DirLoader) Invalidate(module string) {
	l.mu.Lock()
	delete(l.cache, module)
	l.mu.Unlock()
}
