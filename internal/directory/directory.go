// Package directory lists the threads visible to the current user.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"

	"github.com/campusdesk/desk/internal/api"
	"github.com/campusdesk/desk/internal/db"
	"github.com/campusdesk/desk/internal/types"
)

// Source fetches listings from the server.
type Source interface {
	ListMyThreads(ctx context.Context, tag types.StatusTag, order types.DateOrder) ([]types.Thread, error)
	ListAdminThreads(ctx context.Context, query api.AdminQuery) (types.AdminThreadPage, error)
}

// BoardSource is implemented by sources that can read the public board.
type BoardSource interface {
	ListBoard(ctx context.Context, tag types.StatusTag, order types.DateOrder) ([]types.BoardPost, error)
}

// Cache keeps the last good listing per scope between runs.
type Cache interface {
	Put(scope string, threads []types.Thread) error
	Get(scope string) ([]types.Thread, error)
	UpdateTag(id int64, tag types.StatusTag) error
}

// Directory holds the last successful listing.
type Directory struct {
	source Source
	cache  Cache
	logger *slog.Logger

	mu      sync.RWMutex
	threads []types.Thread
	page    types.AdminThreadPage
}

// New builds a directory. cache and logger may be nil.
func New(source Source, cache Cache, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Directory{source: source, cache: cache, logger: logger}
}

// ListMine fetches the caller's threads. On failure the previous list is kept.
func (d *Directory) ListMine(ctx context.Context, filter Filter) ([]types.Thread, error) {
	if err := filter.compile(); err != nil {
		return nil, err
	}
	threads, err := d.source.ListMyThreads(ctx, filter.Tag, filter.Order)
	if err != nil {
		return nil, err
	}
	d.store(db.ScopeMine, threads)
	threads = filter.Apply(threads)

	d.mu.Lock()
	d.threads = threads
	d.mu.Unlock()
	return cloneThreads(threads), nil
}

// ListAdmin fetches one page of every user's threads.
func (d *Directory) ListAdmin(ctx context.Context, filter Filter, page, size int) (types.AdminThreadPage, error) {
	if err := filter.compile(); err != nil {
		return types.AdminThreadPage{}, err
	}
	result, err := d.source.ListAdminThreads(ctx, api.AdminQuery{Tag: filter.Tag, Order: filter.Order, Page: page, Size: size})
	if err != nil {
		return types.AdminThreadPage{}, err
	}
	d.store(db.ScopeAdmin, result.Threads)
	result.Threads = filter.Apply(result.Threads)

	d.mu.Lock()
	d.threads = result.Threads
	d.page = result
	d.mu.Unlock()
	result.Threads = cloneThreads(result.Threads)
	return result, nil
}

// ListBoard fetches published threads. Only ADOPT and REJECT filter the
// board; posts are cached under the board scope without touching the
// current list.
func (d *Directory) ListBoard(ctx context.Context, filter Filter) ([]types.BoardPost, error) {
	board, ok := d.source.(BoardSource)
	if !ok {
		return nil, errors.New("directory: source cannot read the public board")
	}
	if err := filter.compile(); err != nil {
		return nil, err
	}
	posts, err := board.ListBoard(ctx, filter.Tag, filter.Order)
	if err != nil {
		return nil, err
	}
	threads := make([]types.Thread, len(posts))
	for i, post := range posts {
		threads[i] = post.Thread
	}
	d.store(db.ScopeBoard, threads)
	return filter.ApplyPosts(posts), nil
}

// Threads returns the current list.
func (d *Directory) Threads() []types.Thread {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneThreads(d.threads)
}

// Page returns the last admin page metadata.
func (d *Directory) Page() types.AdminThreadPage {
	d.mu.RLock()
	defer d.mu.RUnlock()
	page := d.page
	page.Threads = cloneThreads(page.Threads)
	return page
}

// Cached loads the cached listing for scope into the directory, filtered.
func (d *Directory) Cached(scope string, filter Filter) ([]types.Thread, error) {
	if d.cache == nil {
		return nil, nil
	}
	if err := filter.compile(); err != nil {
		return nil, err
	}
	threads, err := d.cache.Get(scope)
	if err != nil {
		return nil, err
	}
	threads = filter.Apply(threads)
	d.mu.Lock()
	d.threads = threads
	d.mu.Unlock()
	return cloneThreads(threads), nil
}

// UpdateTag applies a server-confirmed tag change to the current list and cache.
func (d *Directory) UpdateTag(id int64, tag types.StatusTag) {
	d.mu.Lock()
	for i := range d.threads {
		if d.threads[i].ID == id {
			d.threads[i].Tag = tag
		}
	}
	d.mu.Unlock()
	if d.cache != nil {
		if err := d.cache.UpdateTag(id, tag); err != nil {
			d.logger.Warn("thread cache update failed", "thread", id, "err", err)
		}
	}
}

func (d *Directory) store(scope string, threads []types.Thread) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Put(scope, threads); err != nil {
		d.logger.Warn("thread cache write failed", "scope", scope, "err", err)
	}
}

func cloneThreads(threads []types.Thread) []types.Thread {
	if threads == nil {
		return nil
	}
	out := make([]types.Thread, len(threads))
	copy(out, threads)
	return out
}

// SQLCache stores listings in the local database.
type SQLCache struct {
	DB *sql.DB
}

func (c SQLCache) Put(scope string, threads []types.Thread) error {
	return db.UpsertThreads(c.DB, scope, threads)
}

func (c SQLCache) Get(scope string) ([]types.Thread, error) {
	cached, err := db.GetCachedThreads(c.DB, scope)
	if err != nil {
		return nil, err
	}
	threads := make([]types.Thread, len(cached))
	for i, row := range cached {
		threads[i] = row.Thread
	}
	return threads, nil
}

func (c SQLCache) UpdateTag(id int64, tag types.StatusTag) error {
	return db.UpdateCachedTag(c.DB, id, tag)
}
