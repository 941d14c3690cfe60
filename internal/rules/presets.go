package rules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/aigoflow/mmss-service/internal/models"
)

// PresetFile is the YAML layout of a rule preset file
type PresetFile struct {
	Rules []models.MetricRule `yaml:"rules"`
}

func isPresetFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// ParsePresets decodes a preset document
func ParsePresets(data []byte) ([]models.MetricRule, error) {
	var file PresetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule presets: %w", err)
	}
	for i, rule := range file.Rules {
		if err := Validate(rule); err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, rule.Name, err)
		}
	}
	return file.Rules, nil
}

// LoadFile replaces all rules previously loaded from path with its current contents
func (e *Engine) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read rule presets: %w", err)
	}
	presets, err := ParsePresets(data)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	source := filepath.Base(path)
	e.RemoveSource(source)
	for _, rule := range presets {
		rule.Source = source
		if _, err := e.Register(rule); err != nil {
			return 0, err
		}
	}
	return len(presets), nil
}

// LoadDir loads every *.yaml / *.yml file in dir. A missing dir is not an error.
func (e *Engine) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rules dir: %w", err)
	}
	total := 0
	for _, entry := range entries {
		if entry.IsDir() || !isPresetFile(entry.Name()) {
			continue
		}
		n, err := e.LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Watch reloads preset files in dir as they change until ctx is cancelled
func (e *Engine) Watch(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create rules dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch rules dir: %w", err)
	}
	slog.Info("Watching rule presets", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			e.handleFileEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Rule watcher error", "error", err)
		}
	}
}

func (e *Engine) handleFileEvent(event fsnotify.Event) {
	if !isPresetFile(event.Name) {
		return
	}
	source := filepath.Base(event.Name)

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		removed := e.RemoveSource(source)
		slog.Info("Rule presets removed", "file", source, "rules", removed)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		n, err := e.LoadFile(event.Name)
		if err != nil {
			slog.Warn("Rule presets reload failed", "file", source, "error", err)
			return
		}
		slog.Info("Rule presets reloaded", "file", source, "rules", n)
	}
}
