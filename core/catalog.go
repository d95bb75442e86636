package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory builds an implementation whose type is only known at runtime.
type Factory func(opts ServiceOptions) (any, error)

// Catalog maps implementation names to factories per service kind, so a
// configuration file can pick implementations by name.
type Catalog struct {
	mu        sync.RWMutex
	factories map[Kind]map[string]Factory
}

func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[Kind]map[string]Factory)}
}

func (c *Catalog) Register(kind Kind, name string, factory Factory) error {
	if c == nil {
		return fmt.Errorf("core: catalog is nil")
	}
	if factory == nil {
		return fmt.Errorf("core: factory is nil")
	}
	name = normalizeFactoryName(name)
	if name == "" {
		return fmt.Errorf("core: factory name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	byName, ok := c.factories[kind]
	if !ok {
		byName = make(map[string]Factory)
		c.factories[kind] = byName
	}
	if _, exists := byName[name]; exists {
		return fmt.Errorf("core: %s factory already registered: %s", kind, name)
	}
	byName[name] = factory
	return nil
}

func (c *Catalog) Lookup(kind Kind, name string) (Factory, bool) {
	if c == nil {
		return nil, false
	}
	name = normalizeFactoryName(name)
	if name == "" {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	factory, ok := c.factories[kind][name]
	return factory, ok
}

func (c *Catalog) Names(kind Kind) []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	names := make([]string, 0, len(c.factories[kind]))
	for name := range c.factories[kind] {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (c *Catalog) Build(kind Kind, name string, opts ServiceOptions) (any, error) {
	factory, ok := c.Lookup(kind, name)
	if !ok {
		return nil, BadInputError(fmt.Sprintf("core: no %s implementation named %q", kind, name))
	}
	return factory(opts)
}

// ConfigureNamed builds the catalog entry name for kind and installs it through
// the dynamic contract check.
func (s *Shell) ConfigureNamed(kind Kind, name string, opts ServiceOptions) error {
	if s == nil {
		return fmt.Errorf("core: shell is nil")
	}
	candidate, err := s.catalog.Build(kind, name, s.completeOptions(opts))
	if err != nil {
		return s.mapError(err)
	}
	return s.ConfigureDynamic(kind, candidate)
}

func normalizeFactoryName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}
