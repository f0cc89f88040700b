// Package store implements the event-store contract from spec.md §4.1: a
// per-conversation append-only log, serialized so concurrent appenders
// for the same conversation never race, with independent conversations
// proceeding fully in parallel.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/AltairaLabs/miniagent/apperr"
	"github.com/AltairaLabs/miniagent/events"
)

// EventStore is the contract every conversation persistence backend
// implements, per spec.md §4.1.
type EventStore interface {
	Load(ctx context.Context, name string) ([]events.Event, error)
	Append(ctx context.Context, name string, newEvents []events.Event) error
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// appendRequest is one unit of work handed to a conversation's writer
// goroutine; result is delivered back on done.
type appendRequest struct {
	newEvents []events.Event
	done      chan error
}

// conversationWriter owns exclusive access to one conversation's file: a
// single goroutine drains reqs in arrival order, giving the serialized
// per-conversation append discipline spec.md §4.1 requires without a
// mutex held across file I/O.
type conversationWriter struct {
	reqs chan appendRequest
}

// FileStore persists each conversation as a YAML file under
// {baseDir}/{name}.yaml, rewriting the full sequence atomically on every
// append: write to a temp file, then rename into place.
type FileStore struct {
	baseDir string

	mu      sync.Mutex
	writers map[string]*conversationWriter
}

// NewFileStore constructs a FileStore rooted at baseDir, creating the
// directory if it does not already exist.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, apperr.New(apperr.KindSave, "store", "init", err)
	}
	return &FileStore{
		baseDir: baseDir,
		writers: make(map[string]*conversationWriter),
	}, nil
}

func (fs *FileStore) path(name string) string {
	return filepath.Join(fs.baseDir, name+".yaml")
}

// Load reads a conversation's full event log. A missing file is not an
// error: it decodes to an empty log, per spec.md §4.1.
func (fs *FileStore) Load(ctx context.Context, name string) ([]events.Event, error) {
	data, err := os.ReadFile(fs.path(name))
	if os.IsNotExist(err) {
		return []events.Event{}, nil
	}
	if err != nil {
		return nil, apperr.LoadError(name, err)
	}
	log, err := events.DecodeLog(data)
	if err != nil {
		return nil, apperr.LoadError(name, err)
	}
	return log, nil
}

// Exists reports whether a conversation has a log file on disk.
func (fs *FileStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := os.Stat(fs.path(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, apperr.LoadError(name, err)
	}
	return true, nil
}

// List enumerates every conversation name with a persisted log.
func (fs *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return nil, apperr.LoadError("*", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" {
			continue
		}
		names = append(names, entry.Name()[:len(entry.Name())-len(ext)])
	}
	return names, nil
}

// Append adds newEvents to the end of name's log, serialized through that
// conversation's dedicated writer goroutine so concurrent appenders for
// the same name never interleave, per spec.md §4.1.
func (fs *FileStore) Append(ctx context.Context, name string, newEvents []events.Event) error {
	w := fs.writerFor(name)
	req := appendRequest{newEvents: newEvents, done: make(chan error, 1)}

	select {
	case w.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (fs *FileStore) writerFor(name string) *conversationWriter {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if w, ok := fs.writers[name]; ok {
		return w
	}
	w := &conversationWriter{reqs: make(chan appendRequest, 64)}
	fs.writers[name] = w
	go fs.runWriter(name, w)
	return w
}

func (fs *FileStore) runWriter(name string, w *conversationWriter) {
	for req := range w.reqs {
		req.done <- fs.appendNow(name, req.newEvents)
	}
}

func (fs *FileStore) appendNow(name string, newEvents []events.Event) error {
	existing, err := os.ReadFile(fs.path(name))
	var log []events.Event
	switch {
	case os.IsNotExist(err):
		log = []events.Event{}
	case err != nil:
		return apperr.SaveError(name, err)
	default:
		log, err = events.DecodeLog(existing)
		if err != nil {
			return apperr.SaveError(name, err)
		}
	}

	log = append(log, newEvents...)

	encoded, err := events.EncodeLog(log)
	if err != nil {
		return apperr.SaveError(name, err)
	}

	if err := writeFileAtomic(fs.path(name), encoded); err != nil {
		return apperr.SaveError(name, err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file beside path and renames it
// into place, so readers only ever see the pre- or post-append state,
// never a partial write.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	return os.Rename(tempPath, path)
}
