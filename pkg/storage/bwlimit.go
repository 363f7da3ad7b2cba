// pkg/storage/bwlimit.go

package storage

import (
	"context"
	"time"

	"github.com/juju/ratelimit"
)

type bwlimit struct {
	Storage
	upLimit   *ratelimit.Bucket
	downLimit *ratelimit.Bucket
}

// NewLimited throttles the bytes written by SetItem to `up` and read by
// GetItem to `down` bytes per second. A limit <= 0 disables that direction.
func NewLimited(s Storage, up, down int64) Storage {
	bw := &bwlimit{s, nil, nil}
	if up > 0 {
		bw.upLimit = ratelimit.NewBucketWithRate(float64(up), up)
	}
	if down > 0 {
		bw.downLimit = ratelimit.NewBucketWithRate(float64(down), down)
	}
	return bw
}

func wait(ctx context.Context, b *ratelimit.Bucket, n int64) error {
	if b == nil || n == 0 {
		return nil
	}
	// a single item may be larger than the bucket
	for n > 0 {
		c := n
		if c > b.Capacity() {
			c = b.Capacity()
		}
		if d := b.Take(c); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		n -= c
	}
	return nil
}

func (p *bwlimit) GetItem(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := p.Storage.GetItem(ctx, key)
	if err == nil && ok {
		err = wait(ctx, p.downLimit, int64(len(v)))
	}
	return v, ok, err
}

func (p *bwlimit) SetItem(ctx context.Context, key, value string) error {
	if err := wait(ctx, p.upLimit, int64(len(value))); err != nil {
		return err
	}
	return p.Storage.SetItem(ctx, key, value)
}

func (p *bwlimit) Close() error {
	return Close(p.Storage)
}
