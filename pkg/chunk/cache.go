// pkg/chunk/cache.go

package chunk

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"logcache/pkg/storage"
)

const unconfigured = -1

// Cache accumulates records into the open chunk and writes it through to
// storage after every append. All methods are serialized by one mutex, so a
// Cache may be shared by goroutines; two Caches must not share a namespace.
type Cache struct {
	mu        sync.Mutex
	store     storage.Storage
	maxLength int
	sep       string
	log       logrus.FieldLogger

	seq int64
	buf string
}

// NewCache returns a Cache over store. Configure must be called before use.
func NewCache(store storage.Storage, conf *Config) *Cache {
	c := conf.withDefaults()
	return &Cache{
		store:     store,
		maxLength: c.MaxLength,
		sep:       c.Separator,
		log:       c.Logger,
		seq:       unconfigured,
	}
}

// fail logs err with the operation name and returns it tagged with kind.
func (c *Cache) fail(op string, kind, err error) error {
	e := &Error{Op: op, Kind: kind, Err: err}
	c.log.WithField("op", op).Errorf("%s", e)
	return e
}

// Configure applies conf to the storage and resumes after the newest chunk
// found there, or at 0 when there is none.
func (c *Cache) Configure(ctx context.Context, conf *storage.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Debugf("configure %s started", c.store.Name())
	if err := c.store.Configure(ctx, conf); err != nil {
		return c.fail("configure", ErrConfiguration, err)
	}
	seqs, err := c.chunks(ctx)
	if err != nil {
		return c.fail("configure", ErrConfiguration, err)
	}
	if len(seqs) > 0 {
		c.seq = seqs[len(seqs)-1] + 1
	} else {
		c.seq = 0
	}
	c.buf = ""
	c.log.Debugf("configure ended, %d chunks found, next chunk is %d", len(seqs), c.seq)
	return nil
}

// locked
func (c *Cache) chunks(ctx context.Context) ([]int64, error) {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return sequences(keys), nil
}

// locked
func (c *Cache) flush(ctx context.Context) error {
	c.log.Debugf("flush chunk %d, %d bytes", c.seq, len(c.buf))
	return c.store.SetItem(ctx, EncodeKey(c.seq), c.buf)
}

// locked
func (c *Cache) seal(ctx context.Context) error {
	if err := c.flush(ctx); err != nil {
		return err
	}
	c.seq++
	c.buf = ""
	return nil
}

// Append adds record to the open chunk, joined by sep[0] if given or by the
// configured separator. When the open chunk and record together exceed the
// maximum length, the open chunk is sealed first and record starts the next
// one. A record longer than the maximum gets a chunk of its own, after the
// open chunk is sealed even when it is empty.
//
// When Append fails the record may already be in the buffer and is written by
// the next successful flush, so Append must not be retried with the same record.
func (c *Cache) Append(ctx context.Context, record string, sep ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq == unconfigured {
		return c.fail("append", ErrNotConfigured, nil)
	}
	// an oversized record seals even an empty chunk and gets the next one alone
	if len(c.buf)+len(record) > c.maxLength {
		if err := c.seal(ctx); err != nil {
			return c.fail("append", ErrAppend, err)
		}
	}
	if len(c.buf) > 0 {
		s := c.sep
		if len(sep) > 0 && sep[0] != "" {
			s = sep[0]
		}
		c.buf += s + record
	} else {
		c.buf = record
	}
	if err := c.flush(ctx); err != nil {
		return c.fail("append", ErrAppend, err)
	}
	return nil
}

// AppendObject appends the JSON encoding of v, separated by a comma.
func (c *Cache) AppendObject(ctx context.Context, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return c.fail("appendObject", ErrSerialization, err)
	}
	return c.Append(ctx, string(data), ",")
}

// Seal closes the open chunk if it holds anything, so that it is never
// written again and the next append starts a new chunk.
func (c *Cache) Seal(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq == unconfigured {
		return c.fail("seal", ErrNotConfigured, nil)
	}
	if c.buf == "" {
		return nil
	}
	if err := c.seal(ctx); err != nil {
		return c.fail("seal", ErrAppend, err)
	}
	return nil
}

// GetOldestChunk returns the content of the chunk with the lowest sequence.
// ok is false when there is no chunk.
func (c *Cache) GetOldestChunk(ctx context.Context) (content string, ok bool, err error) {
	_, content, ok, err = c.oldest(ctx)
	return
}

// OldestChunk is GetOldestChunk that also returns the sequence of the chunk.
func (c *Cache) OldestChunk(ctx context.Context) (seq int64, content string, ok bool, err error) {
	return c.oldest(ctx)
}

func (c *Cache) oldest(ctx context.Context) (int64, string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seqs, err := c.chunks(ctx)
	if err != nil {
		return 0, "", false, c.fail("getOldestChunk", ErrStorage, err)
	}
	if len(seqs) == 0 {
		return 0, "", false, nil
	}
	content, ok, err := c.store.GetItem(ctx, EncodeKey(seqs[0]))
	if err != nil {
		return 0, "", false, c.fail("getOldestChunk", ErrStorage, err)
	}
	return seqs[0], content, ok, nil
}

// RemoveOldestChunk deletes the chunk with the lowest sequence, if any.
// The sequence of the open chunk is not changed.
func (c *Cache) RemoveOldestChunk(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	seqs, err := c.chunks(ctx)
	if err != nil {
		return c.fail("removeOldestChunk", ErrStorage, err)
	}
	if len(seqs) == 0 {
		return nil
	}
	if err = c.store.RemoveItem(ctx, EncodeKey(seqs[0])); err != nil {
		return c.fail("removeOldestChunk", ErrStorage, err)
	}
	c.log.Debugf("removed chunk %d", seqs[0])
	return nil
}

// Clear removes every key of the storage namespace. The in-memory sequence
// and buffer are kept; call Configure again before appending.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Clear(ctx); err != nil {
		return c.fail("clear", ErrStorage, err)
	}
	c.log.Warnf("storage %s is cleared, configure again before appending", c.store.Name())
	return nil
}

// Chunks returns the sequences of the chunks in storage, oldest first.
func (c *Cache) Chunks(ctx context.Context) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seqs, err := c.chunks(ctx)
	if err != nil {
		return nil, c.fail("chunks", ErrStorage, err)
	}
	return seqs, nil
}

// Sequence returns the sequence of the open chunk, or -1 before Configure.
func (c *Cache) Sequence() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Sequence: c.seq, BufferLength: len(c.buf), MaxLength: c.maxLength}
}
