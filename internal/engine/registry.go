package engine

import (
	"database/sql"
	"sync"
)

// Capability names a module may advertise in its capability-info table.
const (
	CapOpenDatabase = "open_database"
	CapSnapshot     = "snapshot"
)

// Capabilities is the capability-info table a loaded module exposes,
// mapping capability names to human-readable detail strings.
type Capabilities map[string]string

func (c Capabilities) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// Module is the minimum capability surface the adapter depends on: a
// factory for opening databases plus the capability-info table. Modules
// are registered as plain values and asserted against this interface at
// load time, so a module that compiles but lacks the surface is caught
// once, not at every call site.
type Module interface {
	OpenDatabase(path string) (*sql.DB, error)
	Capabilities() Capabilities
}

var (
	registryMu sync.RWMutex
	registry   = map[string]any{}
)

// Register makes an engine module available to the loader under the
// descriptor name. The value is deliberately untyped; Load performs the
// capability check.
func Register(name string, module any) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = module
}

func lookupModule(name string) (any, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	module, ok := registry[name]
	return module, ok
}
