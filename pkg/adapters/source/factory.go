package source

import (
	"context"
	"fmt"

	"github.com/metacat-dev/metacat/pkg/apperrors"
)

// ConnectorFactory creates connectors from the driver registry. Services
// depend on this interface so tests can substitute fakes.
type ConnectorFactory interface {
	// NewConnector opens a connector for the given datasource type.
	NewConnector(ctx context.Context, dsType string, cfg ConnConfig) (Connector, error)

	// ListTypes returns info for all registered driver types.
	ListTypes() []DriverInfo
}

type registryFactory struct{}

// NewConnectorFactory returns a factory backed by the global registry.
func NewConnectorFactory() ConnectorFactory {
	return &registryFactory{}
}

func (f *registryFactory) NewConnector(ctx context.Context, dsType string, cfg ConnConfig) (Connector, error) {
	factory := GetDriverFactory(dsType)
	if factory == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedType, dsType)
	}
	return factory(ctx, cfg)
}

func (f *registryFactory) ListTypes() []DriverInfo {
	return RegisteredDrivers()
}

var _ ConnectorFactory = (*registryFactory)(nil)
