// Package scraper is the shared driver for all site adapters. An adapter
// implements exactly one operation, CollectData; the framework owns
// filtering, standardization, persistence, stale detection, logging, and
// retry. Adapters never see the database.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/rescueradar/rescueradar/internal/fetch"
	"github.com/rescueradar/rescueradar/internal/orgconfig"
	"github.com/rescueradar/rescueradar/internal/types"
)

// Adapter collects the current listings from one source. Implementations
// must honor ctx and must not write anywhere; the Runner does the rest.
type Adapter interface {
	CollectData(ctx context.Context) ([]*types.RawAnimal, error)
}

// Descriptor names an adapter in the registry.
type Descriptor struct {
	// Key is the registry slug, matched against the org config's adapter
	// field.
	Key string

	// Name is the human-readable source name.
	Name string
}

// Env is what a factory gets to build an adapter: a client already paced for
// this organization, the shared browser handle, and the org's config.
type Env struct {
	Client  *fetch.Client
	Browser *fetch.Browser
	Config  *orgconfig.Config
	Logger  *slog.Logger
}

// Factory builds one adapter instance for one scrape.
type Factory func(env Env) Adapter

type registration struct {
	desc    Descriptor
	factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]registration)
)

// Register adds an adapter to the registry. Called from adapter package init
// functions; duplicate keys are a programming error and panic at startup.
func Register(desc Descriptor, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[desc.Key]; exists {
		panic(fmt.Sprintf("scraper: adapter %q registered twice", desc.Key))
	}
	registry[desc.Key] = registration{desc: desc, factory: factory}
}

// Lookup resolves a registry key to its factory.
func Lookup(key string) (Descriptor, Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[key]
	if !ok {
		return Descriptor{}, nil, fmt.Errorf("%w: %q", types.ErrUnknownAdapter, key)
	}
	return reg.desc, reg.factory, nil
}

// Keys returns the registered adapter keys, sorted.
func Keys() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
