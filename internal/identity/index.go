package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/counselops/reconcile/internal/scanner"
)

// IndexOptions tunes the paged build of the username index.
type IndexOptions struct {
	PageSize    int
	Parallelism int

	// Progress, when set, receives the running number of indexed users.
	Progress func(done, total int64)
}

// DefaultIndexOptions mirror the provider page size the platform has
// always been scanned with.
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{PageSize: 100, Parallelism: 6}
}

// Index maps usernames to the identity-provider record ids carrying
// them. It is built once per run by fully paging the provider, then read
// concurrently by the checks; it is immutable after BuildIndex returns.
//
// Multiple ids under one username are kept in arrival order, which is
// non-deterministic under parallel paging. Callers must only rely on the
// count; any decision that needs the actual records does a fresh exact
// lookup against the provider instead.
type Index struct {
	byUsername map[string][]string
	total      int
}

// BuildIndex pages the whole provider and indexes every user that has a
// username. Records without one are skipped.
func BuildIndex(ctx context.Context, p Provider, opts IndexOptions) (*Index, error) {
	if opts.PageSize <= 0 || opts.Parallelism <= 0 {
		def := DefaultIndexOptions()
		if opts.PageSize <= 0 {
			opts.PageSize = def.PageSize
		}
		if opts.Parallelism <= 0 {
			opts.Parallelism = def.Parallelism
		}
	}

	total, err := p.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting identity provider users: %w", err)
	}

	idx := &Index{byUsername: make(map[string][]string, total), total: total}
	var mu sync.Mutex
	progress := scanner.NewProgress(func(done int64) {
		if opts.Progress != nil {
			opts.Progress(done, int64(total))
		}
	})

	err = scanner.Scan(ctx, total, opts.PageSize, opts.Parallelism, 0, func(ctx context.Context, chunk int) error {
		first, max := scanner.Window(0, chunk, opts.PageSize)
		users, err := p.ListPage(ctx, first, max)
		if err != nil {
			return fmt.Errorf("listing identity provider users at offset %d: %w", first, err)
		}
		for _, u := range users {
			progress.Add()
			if u.Username == "" {
				continue
			}
			mu.Lock()
			idx.byUsername[u.Username] = append(idx.byUsername[u.Username], u.ID)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// Count returns how many identity-provider records carry the username:
// 0 means not found, 1 unique, more than 1 ambiguous.
func (ix *Index) Count(username string) int {
	return len(ix.byUsername[username])
}

// Size returns the number of distinct usernames indexed.
func (ix *Index) Size() int {
	return len(ix.byUsername)
}

// Total returns the provider's user count at build time, including
// records skipped for having no username.
func (ix *Index) Total() int {
	return ix.total
}
