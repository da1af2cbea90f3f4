package source

import (
	"context"
	"sync"
)

// DriverInfo describes a registered connector driver.
type DriverInfo struct {
	Type        string `json:"type"`         // "postgres", "mysql", "sqlserver"
	DisplayName string `json:"display_name"` // "PostgreSQL"
}

// DriverRegistration contains info plus the factory for creating connectors.
type DriverRegistration struct {
	Info    DriverInfo
	Factory func(ctx context.Context, cfg ConnConfig) (Connector, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DriverRegistration)
)

// Register is called by each driver's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg DriverRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredDrivers returns info for all registered drivers.
func RegisteredDrivers() []DriverInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DriverInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	return result
}

// GetDriverFactory returns the factory for a datasource type, or nil if the
// type is not registered.
func GetDriverFactory(dsType string) func(ctx context.Context, cfg ConnConfig) (Connector, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[dsType]; ok {
		return reg.Factory
	}
	return nil
}
