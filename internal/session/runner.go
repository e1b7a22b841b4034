package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"streetsketch/core-go/internal/document"
)

// Fetcher retrieves a remote document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Runner guards a Coordinator for concurrent callers. Loads are serialized
// against each other: the slow part (fetching, reading storage) runs
// without holding the session, then the parsed document is applied under
// the session lock. A later load always applies after an earlier one.
type Runner struct {
	log    zerolog.Logger
	loadMu sync.Mutex
	mu     sync.Mutex
	c      *Coordinator
	fetch  Fetcher
	lib    Library
}

func NewRunner(log zerolog.Logger, c *Coordinator, fetch Fetcher, lib Library) *Runner {
	return &Runner{log: log, c: c, fetch: fetch, lib: lib}
}

// Do runs fn with exclusive access to the coordinator.
func (r *Runner) Do(fn func(c *Coordinator) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.c)
}

func (r *Runner) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.c.Snapshot()
}

func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.c.Close()
}

// LoadFile applies a document read from a user-selected file.
func (r *Runner) LoadFile(ctx context.Context, data []byte) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	return r.apply(ctx, SourceFile, data)
}

// LoadRemote fetches a document by URL and applies it.
func (r *Runner) LoadRemote(ctx context.Context, url string) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	if r.fetch == nil {
		return r.fail(SourceRemote, document.NetworkFailure(errors.New("no fetcher configured"), nil))
	}
	data, err := r.fetch.Fetch(ctx, url)
	if err != nil {
		return r.fail(SourceRemote, document.NetworkFailure(err, data))
	}
	return r.apply(ctx, SourceRemote, data)
}

// LoadShareLink decodes a share-link fragment and applies it.
func (r *Runner) LoadShareLink(ctx context.Context, fragment string) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	data, err := document.DecodeShareLink(fragment)
	if err != nil {
		return r.fail(SourceShare, err)
	}
	return r.apply(ctx, SourceShare, data)
}

// OpenMap loads a map from the library by title.
func (r *Runner) OpenMap(ctx context.Context, title string) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	if r.lib == nil {
		return r.fail(SourceLibrary, document.StorageUnavailable(errors.New("no map library configured")))
	}
	data, err := r.lib.LoadMap(ctx, title)
	if err != nil {
		return r.fail(SourceLibrary, document.StorageUnavailable(err))
	}
	return r.apply(ctx, SourceLibrary, data)
}

type StartupOptions struct {
	// MapURL is the remote document named by the ?map= query parameter.
	MapURL string
	// Fragment is the share-link URL fragment.
	Fragment string
}

// Startup tries the remote URL, then the share fragment, then the last map
// selected in the library. It returns the source that loaded, or "" when
// nothing did and the caller should apply its default view. Failed steps
// are recorded and fall through to the next one.
func (r *Runner) Startup(ctx context.Context, opts StartupOptions) (string, error) {
	var errs []error

	if opts.MapURL != "" {
		err := r.LoadRemote(ctx, opts.MapURL)
		if err == nil {
			return SourceRemote, nil
		}
		errs = append(errs, err)
	}
	if opts.Fragment != "" {
		err := r.LoadShareLink(ctx, opts.Fragment)
		if err == nil {
			return SourceShare, nil
		}
		errs = append(errs, err)
	}
	if r.lib != nil {
		title, err := r.lib.LastSelected(ctx)
		switch {
		case err != nil:
			errs = append(errs, r.fail(SourceLibrary, document.StorageUnavailable(err)))
		case title != "":
			err := r.OpenMap(ctx, title)
			if err == nil {
				return SourceLibrary, nil
			}
			errs = append(errs, err)
		}
	}

	r.log.Debug().Int("failures", len(errs)).Msg("startup loaded no document")
	return "", errors.Join(errs...)
}

func (r *Runner) apply(ctx context.Context, source string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.c.LoadDocument(source, data)
}

func (r *Runner) fail(source string, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.c.metrics.ObserveDocumentLoad(source, outcome(err))
	r.c.Report(err)
	r.log.Warn().Err(err).Str("source", source).Msg("document load failed")
	return err
}
