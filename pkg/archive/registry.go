package archive

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry is the catalog of configured cameras, the single source of truth
// for camera metadata. It is safe for concurrent use.
type Registry struct {
	log Log

	mu      sync.RWMutex
	cameras map[string]Camera
}

// NewRegistry creates an empty registry. log may be nil, in which case
// registrations are held in memory only.
func NewRegistry(log Log) *Registry {
	return &Registry{
		log:     log,
		cameras: make(map[string]Camera),
	}
}

// Register adds a camera or, when the name is already registered, updates
// its description and interval. The name is the immutable key. The camera
// is persisted before it becomes visible.
func (r *Registry) Register(ctx context.Context, cam Camera) error {
	if cam.Name == "" {
		return fmt.Errorf("register camera: name required")
	}
	if r.log != nil {
		if err := r.log.PutCamera(ctx, cam); err != nil {
			return fmt.Errorf("persist camera %q: %w", cam.Name, err)
		}
	}
	r.mu.Lock()
	r.cameras[cam.Name] = cam
	r.mu.Unlock()
	return nil
}

// Get returns the camera registered under name.
func (r *Registry) Get(name string) (Camera, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cam, ok := r.cameras[name]
	return cam, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cameras[name]
	return ok
}

// List returns all registered cameras ordered by name.
func (r *Registry) List() []Camera {
	r.mu.RLock()
	cams := make([]Camera, 0, len(r.cameras))
	for _, cam := range r.cameras {
		cams = append(cams, cam)
	}
	r.mu.RUnlock()

	sort.Slice(cams, func(i, j int) bool { return cams[i].Name < cams[j].Name })
	return cams
}

// Restore replaces the registry contents from durably persisted cameras,
// typically at cold start, without writing back to the log. It must
// complete before the registry is shared with other goroutines.
func (r *Registry) Restore(cams []Camera) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cameras = make(map[string]Camera, len(cams))
	for _, cam := range cams {
		if cam.Name == "" {
			continue
		}
		r.cameras[cam.Name] = cam
	}
}
