// Package registry is the module-scoped adapter/executor registry described
// in §9: a lazily-initialized singleton with register/get/load/reset.
package registry

import (
	"fmt"
	"os"
	"sync"

	"github.com/kandev/agentengine/internal/agent/adapter"
	"github.com/kandev/agentengine/internal/agent/executor"
	"gopkg.in/yaml.v3"
)

// AdapterFactory constructs a fresh adapter.Adapter.
type AdapterFactory func() adapter.Adapter

// ExecutorFactory constructs a fresh executor.Executor.
type ExecutorFactory func() executor.Executor

type registration struct {
	adapterFactory  AdapterFactory
	executorFactory ExecutorFactory
}

// Registry holds every registered agent by name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

var (
	instance *Registry
	once     sync.Once
)

func singleton() *Registry {
	once.Do(func() {
		instance = &Registry{entries: make(map[string]registration)}
	})
	return instance
}

// Register adds name to the registry, overwriting any prior registration.
func Register(name string, af AdapterFactory, ef ExecutorFactory) {
	r := singleton()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = registration{adapterFactory: af, executorFactory: ef}
}

// Get returns fresh adapter and executor instances for name.
func Get(name string) (adapter.Adapter, executor.Executor, error) {
	r := singleton()
	r.mu.RLock()
	reg, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("registry: no agent registered as %q", name)
	}
	return reg.adapterFactory(), reg.executorFactory(), nil
}

// Names lists every registered agent name.
func Names() []string {
	r := singleton()
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	return names
}

// Profile is one agent's default configuration as loaded from a YAML
// profiles file.
type Profile struct {
	Name          string                 `yaml:"name"`
	DefaultConfig map[string]interface{} `yaml:"defaultConfig"`
}

// LoadProfiles reads a YAML file of agent default-config profiles.
func LoadProfiles(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read profiles: %w", err)
	}
	var profiles []Profile
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("registry: parse profiles: %w", err)
	}
	return profiles, nil
}

// Reset clears the registry. Test-only (§9).
func Reset() {
	r := singleton()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]registration)
}
