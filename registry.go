package appmigrate

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
)

// Application is a named source of migrations. Declaration files are read
// from FS, or from Dir when FS is nil; Definitions are registered in code
// and keyed by migration identifier.
type Application struct {
	Name        string
	Dir         string
	FS          fs.FS
	Definitions map[string]Definition
}

// Registry records the applications known to the engine. It is written
// once per application during startup and read-only after Snapshot.
type Registry struct {
	mu     sync.Mutex
	apps   []Application
	dirs   map[string]string
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{dirs: make(map[string]string)}
}

func (r *Registry) Register(app Application) error {
	app.Name = strings.TrimSpace(app.Name)
	if app.Name == "" {
		return fmt.Errorf("%w: application name is required", ErrInvalidConfig)
	}

	if app.Dir == "" && app.FS == nil && len(app.Definitions) == 0 {
		return fmt.Errorf("%w: application %q has no migrations source", ErrInvalidConfig, app.Name)
	}

	var dir string
	if app.Dir != "" {
		abs, err := filepath.Abs(app.Dir)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		dir = filepath.Clean(abs)
		app.Dir = dir
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %q", ErrRegistrySealed, app.Name)
	}

	for _, known := range r.apps {
		if known.Name == app.Name {
			return fmt.Errorf("%w: application %q", ErrAlreadyRegistered, app.Name)
		}
	}

	if dir != "" {
		if owner, ok := r.dirs[dir]; ok {
			return fmt.Errorf("%w: migrations directory %q is used by %q", ErrAlreadyRegistered, dir, owner)
		}
		r.dirs[dir] = app.Name
	}

	r.apps = append(r.apps, app)
	return nil
}

// Snapshot returns the registered applications in registration order and
// seals the registry.
func (r *Registry) Snapshot() []Application {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sealed = true
	out := make([]Application, len(r.apps))
	copy(out, r.apps)
	return out
}
