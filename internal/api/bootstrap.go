package api

import "sync"

// Bootstrapper is the process-wide registry of named API instances the
// transport layer dispatches on.
type Bootstrapper struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewBootstrapper creates an empty instance registry.
func NewBootstrapper() *Bootstrapper {
	return &Bootstrapper{instances: make(map[string]*Instance)}
}

// Register associates the instance with its name, replacing any previous
// registration.
func (b *Bootstrapper) Register(instance *Instance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.instances[instance.Name()] = instance
}

// Get returns the instance registered under the name.
func (b *Bootstrapper) Get(name string) (*Instance, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	instance, ok := b.instances[name]
	return instance, ok
}

// Names returns the registered instance names.
func (b *Bootstrapper) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.instances))
	for name := range b.instances {
		names = append(names, name)
	}
	return names
}
