// Package catalog serves records from a JSON catalog file held in memory.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/ubuntu/decorate"
	"github.com/ubuntu/recordfeed/internal/api"
	"github.com/ubuntu/recordfeed/internal/model"
)

// Catalog is a record provider backed by a JSON file holding an array of wire objects.
type Catalog struct {
	path    string
	decoder model.Decoder

	records []model.Record
	lock    sync.RWMutex

	log *slog.Logger
}

type options struct {
	keys   model.KeyMap
	logger *slog.Logger
}

// Options represents an optional function to override Catalog default values.
type Options func(*options)

// WithKeyMap sets the wire keys used in the catalog file.
func WithKeyMap(km model.KeyMap) Options {
	return func(o *options) {
		o.keys = km
	}
}

// WithLogger sets the logger of the catalog.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New returns an empty catalog reading from path. Call Load or Watch to fill it.
func New(path string, args ...Options) *Catalog {
	opts := options{
		logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Catalog{
		path:    filepath.Clean(path),
		decoder: model.NewDecoder(opts.keys),
		log:     opts.logger,
	}
}

// Load reads the catalog file and replaces the served records.
// On error, the previously loaded records are kept.
func (c *Catalog) Load() (err error) {
	defer decorate.OnError(&err, "could not load catalog %s", c.path)

	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}

	records, err := c.decoder.DecodeMany(data)
	if err != nil {
		return err
	}

	c.lock.Lock()
	c.records = records
	c.lock.Unlock()

	c.log.Info("Catalog loaded", "path", c.path, "records", len(records))
	return nil
}

// Watch loads the catalog, then reloads it each time the file changes.
//
// It returns two channels: one signaling successful reloads and another for unrecoverable watcher errors.
// Both are closed once ctx is done.
func (c *Catalog) Watch(ctx context.Context) (changes <-chan struct{}, errs <-chan error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	// Watch the directory: editors and atomic writes replace the file.
	dir := filepath.Dir(c.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", dir, err)
	}
	c.log.Info("Watching catalog directory", "dir", dir)

	if err := c.Load(); err != nil {
		c.log.Warn("Error loading initial catalog", "error", err)
	}

	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				c.log.Info("Catalog watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != c.path {
					continue
				}

				c.log.Debug("Catalog file changed, reloading", "op", event.Op.String())
				if err := c.Load(); err != nil {
					c.log.Warn("Error reloading catalog", "error", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
					return
				}
				c.log.Warn("Watcher error", "error", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}

// Record returns the first record with the given id.
func (c *Catalog) Record(ctx context.Context, id string) (model.Record, error) {
	target := c.path + "#" + id
	if id == "" {
		return model.Record{}, fmt.Errorf("%w: empty record id", api.ErrMalformedTarget)
	}
	if err := ctx.Err(); err != nil {
		return model.Record{}, &api.TransportError{Target: target, Err: err}
	}

	c.lock.RLock()
	defer c.lock.RUnlock()

	for _, r := range c.records {
		if r.ID == id {
			return r, nil
		}
	}
	return model.Record{}, &api.RemoteError{Target: target, StatusCode: http.StatusNotFound, Err: api.ErrNotFound}
}

// Records returns, in catalog order, the records whose canonical keys all match q exactly.
func (c *Catalog) Records(ctx context.Context, q api.Query) ([]model.Record, error) {
	for k := range q {
		if _, ok := (model.Record{}).Value(k); !ok {
			return nil, fmt.Errorf("%w: unsupported filter key %q", api.ErrMalformedTarget, k)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, &api.TransportError{Target: c.path + "?" + q.Encode(), Err: err}
	}

	c.lock.RLock()
	defer c.lock.RUnlock()

	matches := make([]model.Record, 0, len(c.records))
	for _, r := range c.records {
		if match(r, q) {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

// Len returns the number of records currently served.
func (c *Catalog) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.records)
}

func match(r model.Record, q api.Query) bool {
	for k, want := range q {
		if v, _ := r.Value(k); v != want {
			return false
		}
	}
	return true
}
