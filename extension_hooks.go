package appshell

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-appshell/core"
)

// FactoryPack adds named implementations of one subsystem kind to a catalog.
type FactoryPack struct {
	Name      string
	Kind      core.Kind
	Factories map[string]core.Factory
}

type CommandQueryBundleFactory func(facade *Facade) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	factoryPacks map[string]FactoryPack
	bundles      map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		factoryPacks: map[string]FactoryPack{},
		bundles:      map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterFactoryPack(pack FactoryPack) error {
	if h == nil {
		return fmt.Errorf("appshell: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("appshell: factory pack name is required")
	}
	if strings.TrimSpace(string(pack.Kind)) == "" {
		return fmt.Errorf("appshell: factory pack %q kind is required", name)
	}
	if len(pack.Factories) == 0 {
		return fmt.Errorf("appshell: factory pack %q has no factories", name)
	}

	normalized := FactoryPack{
		Name:      name,
		Kind:      pack.Kind,
		Factories: make(map[string]core.Factory, len(pack.Factories)),
	}
	for factoryName, factory := range pack.Factories {
		if factory == nil {
			return fmt.Errorf("appshell: factory pack %q contains nil factory %q", name, factoryName)
		}
		normalized.Factories[factoryName] = factory
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.factoryPacks[name]; exists {
		return fmt.Errorf("appshell: factory pack %q already registered", name)
	}
	h.factoryPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("appshell: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("appshell: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("appshell: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("appshell: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyFactoryPacks registers every pack into catalog, packs sorted by name and
// factories sorted within a pack. Applying the same pack twice fails on the
// duplicate factory name.
func (h *ExtensionHooks) ApplyFactoryPacks(catalog *core.Catalog) error {
	if h == nil {
		return nil
	}
	if catalog == nil {
		return fmt.Errorf("appshell: catalog is required")
	}

	for _, pack := range h.FactoryPacks() {
		names := make([]string, 0, len(pack.Factories))
		for name := range pack.Factories {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := catalog.Register(pack.Kind, name, pack.Factories[name]); err != nil {
				return fmt.Errorf("appshell: factory pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(facade *Facade) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if facade == nil {
		return nil, fmt.Errorf("appshell: facade is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		names = append(names, name)
		factories[name] = factory
	}
	h.mu.RUnlock()
	sort.Strings(names)

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](facade)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) FactoryPacks() []FactoryPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.factoryPacks))
	for name := range h.factoryPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]FactoryPack, 0, len(names))
	for _, name := range names {
		pack := h.factoryPacks[name]
		factories := make(map[string]core.Factory, len(pack.Factories))
		for factoryName, factory := range pack.Factories {
			factories[factoryName] = factory
		}
		out = append(out, FactoryPack{Name: pack.Name, Kind: pack.Kind, Factories: factories})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
