package remote

import (
	"fmt"
	"sort"
	"sync"

	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/rs/zerolog"
)

// Factory is a constructor function that providers register to create themselves.
type Factory func(cfg config.ProviderConfig, logger zerolog.Logger) (Client, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register is called by provider implementations in their init() to self-register.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("remote: provider %q already registered", name))
	}
	factories[name] = f
}

// NewClient looks up the configured provider in the registry and creates it.
func NewClient(cfg config.ProviderConfig, logger zerolog.Logger) (Client, error) {
	mu.Lock()
	f, ok := factories[cfg.Name]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unsupported DNS provider: %q (registered: %v)", cfg.Name, Registered())
	}
	return f(cfg, logger.With().Str("provider", cfg.Name).Str("zone", cfg.ZoneID).Logger())
}

// Registered lists the registered provider names.
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
