package dns

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/errdefs"
)

// Factory is a constructor function that stores register to create themselves.
type Factory func(log logr.Logger, settings map[string]string) (Store, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register is called by store packages in their init() to self-register.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("dns: store %q already registered", name))
	}
	factories[name] = f
}

// Registered returns the names of all registered stores, sorted.
func Registered() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewStore looks up the named store in the registry and creates it.
func NewStore(name string, log logr.Logger, settings map[string]string) (Store, error) {
	mu.Lock()
	f, ok := factories[name]
	mu.Unlock()
	if !ok {
		return nil, errdefs.Configuration("unsupported record store %q (registered: %v)", name, Registered())
	}
	return f(log, settings)
}
