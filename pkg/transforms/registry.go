package transforms

import (
	"fmt"
	"slices"
	"sync"

	"github.com/nemanja-m/gotransform/pkg/core"
)

// Factory returns a fresh, unconfigured stage. It must return either a
// Transform or an Accumulator.
type Factory func() any

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

func Register(name string, factory Factory) error {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		return fmt.Errorf("transform already registered: %s", name)
	}
	registry[name] = factory
	return nil
}

// MustRegister is Register for use in init functions.
func MustRegister(name string, factory Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Describe returns the one-line description of a registered transform.
func Describe(name string) (string, error) {
	mu.RLock()
	factory, exists := registry[name]
	mu.RUnlock()
	if !exists {
		return "", core.Errorf(core.KindConfiguration, "transform not found: %s", name)
	}
	if d, ok := factory().(interface{ Describe() string }); ok {
		return d.Describe(), nil
	}
	return "", nil
}

// New builds, configures and validates the named stage.
func New(spec Spec) (any, error) {
	mu.RLock()
	factory, exists := registry[spec.Name]
	mu.RUnlock()
	if !exists {
		return nil, core.Errorf(core.KindConfiguration, "transform not found: %s", spec.Name)
	}

	stage := factory()
	type configurable interface {
		Configure(map[string]string) error
		Validate() error
	}
	c, ok := stage.(configurable)
	if !ok {
		return nil, core.Errorf(core.KindConfiguration, "transform %s is neither a Transform nor an Accumulator", spec.Name)
	}
	if _, isT := stage.(Transform); !isT {
		if _, isA := stage.(Accumulator); !isA {
			return nil, core.Errorf(core.KindConfiguration, "transform %s is neither a Transform nor an Accumulator", spec.Name)
		}
	}

	cfg := spec.Config
	if cfg == nil {
		cfg = map[string]string{}
	}
	if err := c.Configure(cfg); err != nil {
		return nil, core.NewError(core.KindConfiguration, fmt.Errorf("configure %s: %w", spec.Name, err))
	}
	if err := c.Validate(); err != nil {
		return nil, core.NewError(core.KindConfiguration, fmt.Errorf("validate %s: %w", spec.Name, err))
	}
	return stage, nil
}
