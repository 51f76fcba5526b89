//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
)

var CoreInfraSet = wire.NewSet(
	NewLogger,
	NewMetricsRegistry,
	NewMetrics,
	NewToolRegistry,
)

var SourceSet = wire.NewSet(
	NewBrowserSource,
	NewExtensionSource,
)

var AppSet = wire.NewSet(
	CoreInfraSet,
	SourceSet,
	NewGateway,
	wire.Struct(new(ApplicationOptions), "*"),
	NewApplication,
)
