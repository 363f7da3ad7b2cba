// pkg/chunk/drain.go

package chunk

import "context"

// DrainFunc receives one chunk. A chunk is removed only after it returns nil.
type DrainFunc func(seq int64, content string) error

type DrainOptions struct {
	Limit       int  // at most this many chunks, 0 means all
	IncludeOpen bool // seal the open chunk first so it is taken too
}

// Drain hands the chunks of c to fn oldest first and removes each one that fn
// accepted. It returns the number of removed chunks. The first error from fn,
// from storage or from ctx stops it; the chunk being handled stays in place.
func Drain(ctx context.Context, c *Cache, opts DrainOptions, fn DrainFunc) (int, error) {
	if opts.IncludeOpen {
		if err := c.Seal(ctx); err != nil {
			return 0, err
		}
	}
	var n int
	for opts.Limit <= 0 || n < opts.Limit {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		seq, content, ok, err := c.OldestChunk(ctx)
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		// the open chunk is still written by Append
		if seq >= c.Sequence() {
			return n, nil
		}
		if err = fn(seq, content); err != nil {
			return n, err
		}
		if err = c.RemoveOldestChunk(ctx); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
