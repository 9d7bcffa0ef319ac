// Package watch gives rematch-media's --watch mode a way to notice
// newly dropped files under recovered_files/ and trigger a re-index
// without a restart, grounded on BrianB-22-noodexx's
// internal/watcher.Watcher (event loop, create/write/remove dispatch,
// path validation) generalized from "ingest text files" to "re-run
// the resolver on media file changes."
package watch

import (
	"context"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"

	"chatgpt-export-corpus/internal/logging"
	"chatgpt-export-corpus/internal/mediaindex"
)

// OnChange is called once per qualifying filesystem event under the
// watched directory (events are not debounced), with the changed path
// that triggered it. It runs synchronously on Run's event loop, so a
// slow callback delays handling of later events.
type OnChange func(changed []string)

// Watcher watches a recovery directory for new or modified media files
// and invokes a callback so the pipeline can re-run resolution.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dir       string
	onChange  OnChange
	log       *logging.Logger
}

// New creates a Watcher rooted at dir (typically recovered_files/).
// The directory must already exist; callers that want to watch a
// directory created later should create it first.
func New(dir string, onChange OnChange, log *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{fsWatcher: fsw, dir: dir, onChange: onChange, log: log}, nil
}

// Run blocks, dispatching create/write/remove events for files whose
// extension is in the media set until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	if w.log != nil {
		w.log.Debugf("watching %s for recovered media files", w.dir)
	}
	for {
		select {
		case <-ctx.Done():
			w.fsWatcher.Close()
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warnf("watch error: %v", err)
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !w.isMediaCandidate(event.Name) {
		return
	}
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create,
		event.Op&fsnotify.Write == fsnotify.Write,
		event.Op&fsnotify.Remove == fsnotify.Remove:
		if w.log != nil {
			w.log.Debugf("recovery folder changed: %s (%s)", event.Name, event.Op)
		}
		if w.onChange != nil {
			w.onChange([]string{event.Name})
		}
	}
}

func (w *Watcher) isMediaCandidate(path string) bool {
	dot := strings.LastIndexByte(path, '.')
	if dot < 0 {
		return false
	}
	ext := strings.ToLower(path[dot:])
	return mediaindex.MediaExtensions[ext]
}

// Close stops the underlying fsnotify watcher without waiting for Run
// to observe ctx cancellation, used when a caller needs to tear down
// synchronously (e.g. test cleanup).
func (w *Watcher) Close() error {
	return w.fsWatcher.Close()
}
