package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

// FileSettingsProvider serves domain.Settings read from a YAML file overlaid
// on the defaults. A missing or malformed file leaves the last good snapshot
// in place.
type FileSettingsProvider struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	current domain.Settings
}

func NewFileSettingsProvider(path string, logger *slog.Logger) *FileSettingsProvider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &FileSettingsProvider{
		path:    path,
		logger:  logger,
		current: domain.DefaultSettings(),
	}
	if err := p.Reload(context.Background()); err != nil {
		logger.Warn("settings_load_failed", "path", path, "error", err)
	}
	return p
}

func (p *FileSettingsProvider) Current() domain.Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *FileSettingsProvider) Reload(_ context.Context) error {
	if p.path == "" {
		return nil
	}
	raw, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		p.logger.Info("settings_file_missing", "path", p.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}

	settings, err := parseSettings(raw)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "reload settings", err)
	}

	p.mu.Lock()
	p.current = settings
	p.mu.Unlock()
	p.logger.Info("settings_reloaded", "path", p.path)
	return nil
}

func parseSettings(raw []byte) (domain.Settings, error) {
	settings := domain.DefaultSettings()
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return domain.Settings{}, fmt.Errorf("parse settings yaml: %w", err)
	}
	return settings.Normalize(), nil
}

// StaticSettings serves a fixed snapshot; Reload is a no-op.
type StaticSettings struct {
	Settings domain.Settings
}

func (s StaticSettings) Current() domain.Settings {
	return s.Settings
}

func (StaticSettings) Reload(context.Context) error {
	return nil
}
