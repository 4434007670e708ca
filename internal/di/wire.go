//go:build wireinject
// +build wireinject

package di

import (
	"CopyRelay/pkg/config"
	"CopyRelay/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideRecorder,

		// Core state
		ProvideRegistry,
		ProvideSignalLog,
		ProvideReaper,

		// Optional services
		ProvideHub,
		ProvideLimiter,
		ProvideCache,
		ProvideArchive,
		ProvideQueue,

		// HTTP surface
		ProvideHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
