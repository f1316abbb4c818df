package main

import (
	"go.uber.org/zap"

	"github.com/wippyai/engine-bridge/bridge"
	"github.com/wippyai/engine-bridge/capability"
	"github.com/wippyai/engine-bridge/config"
	"github.com/wippyai/engine-bridge/engine"
	"github.com/wippyai/engine-bridge/fetch"
	"github.com/wippyai/engine-bridge/transport"
	"github.com/wippyai/engine-bridge/variant"
)

// newLogger builds a logger writing to stderr; stdout carries protocol
// data in every subcommand.
func newLogger(c config.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewDevelopmentConfig()
	if c.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = level
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

func installLogger(l *zap.Logger) {
	bridge.SetLogger(l.Named("bridge"))
	capability.SetLogger(l.Named("capability"))
	engine.SetLogger(l.Named("engine"))
	fetch.SetLogger(l.Named("fetch"))
	transport.SetLogger(l.Named("transport"))
	variant.SetLogger(l.Named("variant"))
}
