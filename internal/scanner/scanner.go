// Package scanner walks large external record sets in fixed-size chunks
// with bounded parallelism. It is the pagination backbone for the identity
// index build and the user scans: callers supply a chunk function that
// fetches and processes one page, and the scanner fans the chunks out
// without ever having more than the configured number in flight.
package scanner

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ChunkFunc fetches and processes the chunk with the given index. The
// window covered by chunk c starts at record skip + c*chunkSize and spans
// at most chunkSize records; Window computes it.
type ChunkFunc func(ctx context.Context, chunk int) error

// Chunks returns the number of chunks needed to cover total records after
// skipping the first skip of them.
func Chunks(total, chunkSize, skip int) int {
	remaining := total - skip
	if remaining <= 0 {
		return 0
	}
	return (remaining + chunkSize - 1) / chunkSize
}

// Window returns the offset and maximum size of the page belonging to the
// given chunk index.
func Window(skip, chunk, chunkSize int) (first, max int) {
	return skip + chunk*chunkSize, chunkSize
}

// Scan invokes fn once per chunk with at most parallelism chunks in
// flight, and waits for all of them. Processing order across chunks is
// undefined. The first error aborts the scan: remaining chunk functions
// are not started, in-flight ones see a canceled context, and the error
// is returned.
func Scan(ctx context.Context, total, chunkSize, parallelism, skip int, fn ChunkFunc) error {
	chunks := Chunks(total, chunkSize, skip)
	if chunks == 0 {
		return nil
	}
	if parallelism < 1 {
		parallelism = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for c := 0; c < chunks; c++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, c)
		})
	}
	return g.Wait()
}

// Progress is a concurrency-safe processed-record counter. Chunk
// functions call Add after each record; the observer receives the running
// total. Counts from concurrent chunks may reach the observer out of
// numeric order; the counter itself is monotonic.
type Progress struct {
	n       atomic.Int64
	observe func(done int64)
}

// NewProgress returns a progress counter reporting to observe, which may
// be nil.
func NewProgress(observe func(done int64)) *Progress {
	return &Progress{observe: observe}
}

// Add increments the counter by one and reports the new total.
func (p *Progress) Add() int64 {
	done := p.n.Add(1)
	if p.observe != nil {
		p.observe(done)
	}
	return done
}

// Done returns the current total.
func (p *Progress) Done() int64 {
	return p.n.Load()
}
