package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"proctor/internal/model"
	"proctor/internal/route"
	"proctor/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// Assessment is one loaded library entry. Route is built once at load
// time to validate the document structure; sessions build their own.
type Assessment struct {
	ID    string
	File  string
	Test  *model.AssessmentTest
	Route *route.Route
}

// Library serves the assessment documents found under one directory,
// keyed by test identifier. Reload swaps the whole map, so readers
// always see a consistent set.
type Library struct {
	mu          sync.RWMutex
	path        string
	debounce    time.Duration
	assessments map[string]*Assessment

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	watching bool
}

// NewLibrary creates a library over the given directory. Nothing is
// loaded until Reload is called.
func NewLibrary(path string) *Library {
	return &Library{
		path:        path,
		debounce:    500 * time.Millisecond,
		assessments: make(map[string]*Assessment),
		stopCh:      make(chan struct{}),
	}
}

// Path returns the library directory.
func (l *Library) Path() string { return l.path }

// Reload scans the directory and replaces the loaded set. Files that
// fail to parse or validate are skipped with a warning; they never
// take down the rest of the library.
func (l *Library) Reload() error {
	files, err := l.listDocuments()
	if err != nil {
		return err
	}

	assessments := make(map[string]*Assessment, len(files))
	for _, file := range files {
		asmt, err := LoadAssessment(file)
		if err != nil {
			logging.Warn("Library", "skipping %s: %v", file, err)
			continue
		}
		if prev, ok := assessments[asmt.ID]; ok {
			logging.Warn("Library", "skipping %s: test %q already loaded from %s", file, asmt.ID, prev.File)
			continue
		}
		assessments[asmt.ID] = asmt
	}

	l.mu.Lock()
	l.assessments = assessments
	l.mu.Unlock()

	logging.Info("Library", "loaded %d assessments from %s", len(assessments), l.path)
	return nil
}

// listDocuments returns the YAML files under the library directory. A
// missing directory is an empty library, not an error.
func (l *Library) listDocuments() ([]string, error) {
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		logging.Warn("Library", "library directory %s does not exist", l.path)
		return nil, nil
	}

	yamlFiles, err := filepath.Glob(filepath.Join(l.path, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", l.path, err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(l.path, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", l.path, err)
	}
	return append(yamlFiles, ymlFiles...), nil
}

// LoadAssessment parses and validates a single assessment document.
// The scripted runner loads its test through here as well.
func LoadAssessment(file string) (*Assessment, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	test, err := model.Parse(data)
	if err != nil {
		return nil, err
	}
	r, err := route.Build(test)
	if err != nil {
		return nil, err
	}
	return &Assessment{ID: test.Identifier, File: file, Test: test, Route: r}, nil
}

// Get returns the assessment with the given test identifier.
func (l *Library) Get(id string) (*Assessment, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	asmt, ok := l.assessments[id]
	return asmt, ok
}

// List returns all loaded assessments ordered by identifier.
func (l *Library) List() []*Assessment {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Assessment, 0, len(l.assessments))
	for _, asmt := range l.assessments {
		out = append(out, asmt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of loaded assessments.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.assessments)
}

// Watch starts reloading the library when YAML files under its
// directory change. Rapid successive changes collapse into one reload.
func (l *Library) Watch(ctx context.Context) error {
	l.mu.Lock()
	if l.watching {
		l.mu.Unlock()
		return nil
	}

	if err := os.MkdirAll(l.path, 0755); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("failed to create library directory %s: %w", l.path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if err := watcher.Add(l.path); err != nil {
		watcher.Close()
		l.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", l.path, err)
	}

	l.watcher = watcher
	l.watching = true
	l.stopCh = make(chan struct{})
	l.mu.Unlock()

	go l.processEvents(ctx, watcher)

	logging.Info("Library", "watching %s for changes", l.path)
	return nil
}

// processEvents debounces filesystem events into whole-library reloads.
func (l *Library) processEvents(ctx context.Context, watcher *fsnotify.Watcher) {
	var pending *time.Timer
	stopPending := func() {
		if pending != nil {
			pending.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopPending()
			return

		case <-l.stopCh:
			stopPending()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isYAMLFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			stopPending()
			pending = time.AfterFunc(l.debounce, func() {
				if err := l.Reload(); err != nil {
					logging.Error("Library", err, "reloading after change to %s", event.Name)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("Library", err, "library watcher error")
		}
	}
}

// Close stops the watcher. A library that never watched closes as a
// no-op.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.watching {
		return nil
	}
	l.watching = false
	close(l.stopCh)

	if l.watcher != nil {
		if err := l.watcher.Close(); err != nil {
			return err
		}
		l.watcher = nil
	}
	return nil
}

// isYAMLFile checks if a file path is a YAML file.
func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
