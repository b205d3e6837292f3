package main

import (
	"fmt"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
)

const (
	developmentEnvironment = "development"
	productionEnvironment  = "production"
)

// newLogger builds a zap logger: JSON in production, console otherwise
func newLogger(environment string) (*zap.Logger, error) {
	switch environment {
	case productionEnvironment:
		return zap.NewProduction()
	case developmentEnvironment, "":
		return zap.NewDevelopment()
	default:
		return nil, fmt.Errorf("unknown log environment %q", environment)
	}
}

// newSlogger routes slog records through zap
func newSlogger(logger *zap.Logger) *slog.Logger {
	return slog.New(zapslog.NewHandler(logger.Core()))
}
