//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
)

func InitializeApplication(cfg ServeConfig, logging LoggingConfig) (*Application, error) {
	wire.Build(AppSet)
	return nil, nil
}
