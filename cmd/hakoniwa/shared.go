package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/config"
	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/lifecycle"
	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/registry"
	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/runtime/docker"
)

// app bundles the wired-up components every command needs.
type app struct {
	reg  *registry.Store
	rt   *docker.Adapter
	ctrl *lifecycle.Controller
}

func (a *app) Close() {
	if a.reg != nil {
		a.reg.Close()
	}
}

// newApp opens the registry, loads the fleet config and connects the Docker
// adapter. The caller must Close the returned app.
func newApp() (*app, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := loadFleetConfig(getEnv("HAKONIWA_CONFIG", "./hakoniwa.yaml"))
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(getEnv("HAKONIWA_DB", "./hakoniwa.db"))
	if err != nil {
		return nil, err
	}

	rt, err := docker.New()
	if err != nil {
		reg.Close()
		return nil, err
	}

	return &app{
		reg:  reg,
		rt:   rt,
		ctrl: lifecycle.NewController(reg, rt, cfg, lifecycle.ControllerConfig{Logger: logger}),
	}, nil
}

// loadFleetConfig reads the config file; a missing file resolves everything
// against built-in defaults.
func loadFleetConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &config.Config{}, nil
		}
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
