package main

import (
	"log/slog"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"eventreg/cmd/fx/httpfx"
	"eventreg/cmd/fx/infrafx"
	"eventreg/cmd/fx/modulesfx"
)

func main() {
	fx.New(
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger}
		}),
		infrafx.Module,
		modulesfx.Module,
		httpfx.Module,
	).Run()
}
