package notify

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/observability"
)

// TemplateStore holds the active template set and swaps it atomically when
// the templates file changes
type TemplateStore struct {
	path    string
	logger  *observability.Logger
	current atomic.Pointer[TemplateSet]
}

// NewTemplateStore loads templates from path, or uses the built-in set when
// path is empty
func NewTemplateStore(path string, logger *observability.Logger) (*TemplateStore, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	s := &TemplateStore{path: path, logger: logger.WithComponent("templates")}
	if path == "" {
		s.current.Store(DefaultTemplates())
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the template for a status
func (s *TemplateStore) Get(status billing.InvoiceStatus) (Template, bool) {
	t, ok := s.current.Load().Templates[status]
	return t, ok
}

// Version returns the version label of the active set
func (s *TemplateStore) Version() string {
	return s.current.Load().Version
}

// Reload re-reads the templates file. On error the previous set stays active.
func (s *TemplateStore) Reload() error {
	set, err := LoadTemplates(s.path)
	if err != nil {
		return err
	}
	s.current.Store(set)
	return nil
}

// StartWatching reloads the templates whenever the file is written or
// replaced. The parent directory is watched so editors that save through a
// rename are picked up. Watching stops when ctx is done.
func (s *TemplateStore) StartWatching(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	go func() {
		defer watcher.Close()
		defer observability.RecoverPanic(s.logger, "template watcher")

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.WithError(err).Warn("Failed to reload templates, keeping previous set")
					continue
				}
				s.logger.WithField("version", s.Version()).Info("Templates reloaded")

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.WithError(err).Warn("Template watcher error")
			}
		}
	}()
	return nil
}
