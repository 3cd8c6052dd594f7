package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"tgrelay/internal/security"

	"github.com/sirupsen/logrus"
)

// TemplateTarget receives reloaded prompt template text.
type TemplateTarget interface {
	Set(text string)
}

// TemplateWatcher watches the prompt template file and pushes new contents
// into the translator without a restart.
type TemplateWatcher struct {
	path     string
	interval time.Duration
	target   TemplateTarget
	logger   *logrus.Logger

	mu       sync.RWMutex
	current  string
	settle   time.Duration
	onReload []func(string)
}

// NewTemplateWatcher creates a watcher polling path every interval.
func NewTemplateWatcher(path string, interval time.Duration, target TemplateTarget, logger *logrus.Logger) *TemplateWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &TemplateWatcher{
		path:     path,
		interval: interval,
		target:   target,
		logger:   logger,
		settle:   100 * time.Millisecond,
	}
}

// Load reads the template once and applies it.
func (tw *TemplateWatcher) Load() error {
	if err := security.ValidateFilePath(tw.path); err != nil {
		return err
	}
	data, err := os.ReadFile(tw.path) // #nosec G304 - Path validated above
	if err != nil {
		return err
	}
	tw.apply(string(data))
	return nil
}

// LoadOptional is Load for a template that may not exist yet. A missing
// file leaves the current template in place and reports nil.
func (tw *TemplateWatcher) LoadOptional() error {
	err := tw.Load()
	if errors.Is(err, fs.ErrNotExist) {
		tw.logger.WithField("path", tw.path).Warn("Prompt template not found, using the current template")
		return nil
	}
	return err
}

// Start loads the template and polls for changes until ctx ends. A file
// that does not exist yet is picked up once it appears.
func (tw *TemplateWatcher) Start(ctx context.Context) error {
	// Stat before loading so a file created in between is still reloaded.
	stat, statErr := os.Stat(tw.path)
	if err := tw.LoadOptional(); err != nil {
		return err
	}
	var lastModTime time.Time
	if statErr == nil {
		lastModTime = stat.ModTime()
	}

	tw.logger.WithField("path", tw.path).Info("Prompt template watcher started")

	ticker := time.NewTicker(tw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			tw.logger.Info("Prompt template watcher stopping")
			return nil

		case <-ticker.C:
			stat, err := os.Stat(tw.path)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					tw.logger.WithError(err).Error("Failed to stat prompt template")
				}
				continue
			}
			if !stat.ModTime().After(lastModTime) {
				continue
			}
			lastModTime = stat.ModTime()

			// Let the writer finish before reading.
			time.Sleep(tw.settle)
			if err := tw.Load(); err != nil {
				tw.logger.WithError(err).Error("Failed to reload prompt template")
			}
		}
	}
}

// Current returns the last loaded template text.
func (tw *TemplateWatcher) Current() string {
	tw.mu.RLock()
	defer tw.mu.RUnlock()
	return tw.current
}

// OnReload registers a callback run after each change.
func (tw *TemplateWatcher) OnReload(fn func(string)) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.onReload = append(tw.onReload, fn)
}

func (tw *TemplateWatcher) apply(text string) {
	tw.mu.Lock()
	changed := tw.current != text
	tw.current = text
	callbacks := make([]func(string), len(tw.onReload))
	copy(callbacks, tw.onReload)
	tw.mu.Unlock()

	if !changed {
		return
	}
	tw.target.Set(text)
	tw.logger.WithField("size_bytes", len(text)).Info("Prompt template reloaded")

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					tw.logger.WithField("panic", r).Error("Template reload callback panicked")
				}
			}()
			cb(text)
		}()
	}
}
