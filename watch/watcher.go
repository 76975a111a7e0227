// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package watch ingests text documents as they appear or change in a
// directory tree.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/poiesic/medrag/ingestion"
	"github.com/poiesic/medrag/loader"
)

// DefaultDebounce is how long a file must be quiet before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

// ErrHandlerRequired is returned when New is called without a handler.
var ErrHandlerRequired = errors.New("document handler required")

// Handler receives each loaded document.
type Handler func(ctx context.Context, doc *ingestion.Document) error

// Watcher monitors directories and hands created or modified .txt and .md
// files to a Handler once writes to them settle.
type Watcher struct {
	watcher  *fsnotify.Watcher
	handle   Handler
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher) error

// WithDebounce sets the quiet period before a changed file is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) error {
		if d < 0 {
			return errors.New("debounce cannot be negative")
		}
		w.debounce = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) error {
		w.logger = logger.With("component", "watcher")
		return nil
	}
}

// New creates a Watcher. Call Add for each root, then Run.
func New(handle Handler, opts ...Option) (*Watcher, error) {
	if handle == nil {
		return nil, ErrHandlerRequired
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		handle:   handle,
		debounce: DefaultDebounce,
		logger:   slog.Default().With("component", "watcher"),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Add watches dir and every non-hidden directory below it.
func (w *Watcher) Add(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.logger.Debug("watching directory", "path", path)
		return nil
	})
}

// Run processes file events until ctx is cancelled or the watcher is closed.
// Pending ingestions are cancelled and awaited before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.drain()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// Close stops watching. A running Run returns.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.addCreatedDir(ctx, event.Name)
			return
		}
		w.schedule(ctx, event.Name)
	case event.Has(fsnotify.Write):
		w.schedule(ctx, event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.cancel(event.Name)
	}
}

// addCreatedDir watches a new directory and picks up files that were written
// into it before the watch was in place.
func (w *Watcher) addCreatedDir(ctx context.Context, dir string) {
	if strings.HasPrefix(filepath.Base(dir), ".") {
		return
	}
	if err := w.Add(dir); err != nil {
		w.logger.Warn("failed to watch directory", "path", dir, "error", err)
		return
	}
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			w.schedule(ctx, path)
		}
		return nil
	})
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	if !loader.Supported(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		if t.Stop() {
			t.Reset(w.debounce)
			return
		}
		// The timer already fired and its ingestion is running; start another.
	}
	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == timer {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
	w.pending[path] = timer
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok && t.Stop() {
		delete(w.pending, path)
		w.wg.Done()
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	doc, err := loader.Load(ctx, path)
	if err != nil {
		w.logger.Warn("failed to load document", "path", path, "error", err)
		return
	}
	if err := w.handle(ctx, doc); err != nil {
		w.logger.Error("failed to ingest document", "path", path, "error", err)
		return
	}
	w.logger.Info("ingested document", "path", path, "document", doc.ID)
}

// drain stops timers that have not fired and waits for running ingestions.
func (w *Watcher) drain() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
