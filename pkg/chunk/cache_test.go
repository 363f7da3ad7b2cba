// pkg/chunk/cache_test.go

package chunk

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logcache/pkg/storage"
)

var errInjected = errors.New("injected failure")

// faultyStore fails the operations named in fail.
type faultyStore struct {
	storage.Storage
	mu   sync.Mutex
	fail map[string]bool
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Storage: storage.NewMemStore(), fail: make(map[string]bool)}
}

func (f *faultyStore) failing(op string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = on
}

func (f *faultyStore) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[op] {
		return errInjected
	}
	return nil
}

func (f *faultyStore) Configure(ctx context.Context, conf *storage.Config) error {
	if err := f.check("configure"); err != nil {
		return err
	}
	return f.Storage.Configure(ctx, conf)
}

func (f *faultyStore) Keys(ctx context.Context) ([]string, error) {
	if err := f.check("keys"); err != nil {
		return nil, err
	}
	return f.Storage.Keys(ctx)
}

func (f *faultyStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := f.check("get"); err != nil {
		return "", false, err
	}
	return f.Storage.GetItem(ctx, key)
}

func (f *faultyStore) SetItem(ctx context.Context, key, value string) error {
	if err := f.check("set"); err != nil {
		return err
	}
	return f.Storage.SetItem(ctx, key, value)
}

func (f *faultyStore) RemoveItem(ctx context.Context, key string) error {
	if err := f.check("remove"); err != nil {
		return err
	}
	return f.Storage.RemoveItem(ctx, key)
}

func (f *faultyStore) Clear(ctx context.Context) error {
	if err := f.check("clear"); err != nil {
		return err
	}
	return f.Storage.Clear(ctx)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestCache(t *testing.T, store storage.Storage, maxLength int) *Cache {
	t.Helper()
	c := NewCache(store, &Config{MaxLength: maxLength, Logger: quietLogger()})
	require.NoError(t, c.Configure(context.Background(), nil))
	return c
}

func get(t *testing.T, s storage.Storage, key string) string {
	t.Helper()
	v, ok, err := s.GetItem(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok, "key %s is missing", key)
	return v
}

func chunkKeys(t *testing.T, s storage.Storage) []string {
	t.Helper()
	keys, err := s.Keys(context.Background())
	require.NoError(t, err)
	var out []string
	for _, n := range sequences(keys) {
		out = append(out, EncodeKey(n))
	}
	return out
}

func TestNewCacheDefaults(t *testing.T) {
	c := NewCache(storage.NewMemStore(), nil)
	st := c.Stats()
	assert.EqualValues(t, -1, st.Sequence)
	assert.Equal(t, DefaultMaxLength, st.MaxLength)
	assert.Equal(t, DefaultSeparator, c.sep)
	assert.NotNil(t, c.log)
}

func TestAppendWithinOneChunk(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	c := newTestCache(t, store, 100)

	require.NoError(t, c.Append(ctx, "a"))
	require.NoError(t, c.Append(ctx, "b"))
	require.NoError(t, c.Append(ctx, "c", "|"))
	require.NoError(t, c.Append(ctx, "d", ""))

	assert.Equal(t, []string{"_0"}, chunkKeys(t, store))
	assert.Equal(t, "a,b|c,d", get(t, store, "_0"))
	assert.EqualValues(t, 0, c.Sequence())
}

func TestAppendWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	c := newTestCache(t, store, 100)

	for i, rec := range []string{"x", "y", "z"} {
		require.NoError(t, c.Append(ctx, rec))
		assert.Equal(t, c.buf, get(t, store, "_0"), "after append %d", i)
	}
}

func TestAppendSealsFullChunk(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	c := newTestCache(t, store, 10)

	require.NoError(t, c.Append(ctx, "aaaa"))
	// 4+4 <= 10, stays in _0
	require.NoError(t, c.Append(ctx, "bbbb"))
	// 9+3 > 10, seals _0
	require.NoError(t, c.Append(ctx, "ccc"))
	require.NoError(t, c.Append(ctx, "dddddd"))
	// 10+1 > 10, seals _1
	require.NoError(t, c.Append(ctx, "e"))

	assert.Equal(t, []string{"_0", "_1", "_2"}, chunkKeys(t, store))
	assert.Equal(t, "aaaa,bbbb", get(t, store, "_0"))
	assert.Equal(t, "ccc,dddddd", get(t, store, "_1"))
	assert.Equal(t, "e", get(t, store, "_2"))
	assert.EqualValues(t, 2, c.Sequence())
}

func TestAppendComparesBufferBeforeSeparator(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	c := newTestCache(t, store, 4)

	require.NoError(t, c.Append(ctx, "ab"))
	// 2+2 is not over 4 although the joined chunk is 5 bytes long
	require.NoError(t, c.Append(ctx, "cd"))
	assert.Equal(t, []string{"_0"}, chunkKeys(t, store))
	assert.Equal(t, "ab,cd", get(t, store, "_0"))
}

func TestAppendOversizedRecord(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	c := newTestCache(t, store, 3)

	require.NoError(t, c.Append(ctx, "toolong"))
	assert.EqualValues(t, 1, c.Sequence())
	assert.Equal(t, "", get(t, store, "_0"), "the empty open chunk is sealed")
	assert.Equal(t, "toolong", get(t, store, "_1"))

	require.NoError(t, c.Append(ctx, "x"))
	require.NoError(t, c.Append(ctx, "another"))

	assert.Equal(t, []string{"_0", "_1", "_2", "_3"}, chunkKeys(t, store))
	assert.Equal(t, "x", get(t, store, "_2"))
	assert.Equal(t, "another", get(t, store, "_3"))
	assert.EqualValues(t, 3, c.Sequence())
}

func TestConfigureRecoversSequence(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	require.NoError(t, store.Configure(ctx, nil))
	for _, k := range []string{"_0", "_3", "_7", "meta"} {
		require.NoError(t, store.SetItem(ctx, k, k))
	}

	c := newTestCache(t, store, 100)
	assert.EqualValues(t, 8, c.Sequence())

	require.NoError(t, c.Append(ctx, "new"))
	assert.Equal(t, "new", get(t, store, "_8"))
	assert.Equal(t, "_7", get(t, store, "_7"), "sealed chunks are never appended to")
}

func TestConfigureUsesNumericOrder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	require.NoError(t, store.Configure(ctx, nil))
	for _, k := range []string{"_9", "_10", "_2"} {
		require.NoError(t, store.SetItem(ctx, k, k))
	}
	c := newTestCache(t, store, 100)
	assert.EqualValues(t, 11, c.Sequence())
}

func TestRestartKeepsKeysIncreasing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	c := newTestCache(t, store, 5)
	for _, rec := range []string{"aaa", "bbb", "ccc"} {
		require.NoError(t, c.Append(ctx, rec))
	}
	assert.EqualValues(t, 2, c.Sequence())

	// a new process resumes after the last written chunk
	c2 := newTestCache(t, store, 5)
	assert.EqualValues(t, 3, c2.Sequence())
	require.NoError(t, c2.Append(ctx, "ddd"))
	assert.Equal(t, []string{"_0", "_1", "_2", "_3"}, chunkKeys(t, store))
	assert.Equal(t, "ccc", get(t, store, "_2"))
}

func TestConfigureErrors(t *testing.T) {
	for _, op := range []string{"configure", "keys"} {
		t.Run(op, func(t *testing.T) {
			store := newFaultyStore()
			store.failing(op, true)
			c := NewCache(store, &Config{Logger: quietLogger()})
			err := c.Configure(context.Background(), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.ErrorIs(t, err, errInjected)
			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, "configure", e.Op)
			assert.EqualValues(t, -1, c.Sequence())
		})
	}
}

func TestAppendBeforeConfigure(t *testing.T) {
	store := storage.NewMemStore()
	c := NewCache(store, &Config{Logger: quietLogger()})
	err := c.Append(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, c.Seal(context.Background()), ErrNotConfigured)

	keys, err := store.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys, "nothing is written under an invalid key")
}

func TestAppendFlushError(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	c := newTestCache(t, store, 100)
	require.NoError(t, c.Append(ctx, "a"))

	store.failing("set", true)
	err := c.Append(ctx, "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAppend)
	assert.ErrorIs(t, err, errInjected)
	assert.Equal(t, "a", get(t, store, "_0"))

	// the record stays buffered and is written by the next flush
	store.failing("set", false)
	require.NoError(t, c.Append(ctx, "c"))
	assert.Equal(t, "a,b,c", get(t, store, "_0"))
}

func TestAppendSealError(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	c := newTestCache(t, store, 3)
	require.NoError(t, c.Append(ctx, "aa"))

	store.failing("set", true)
	err := c.Append(ctx, "bb")
	assert.ErrorIs(t, err, ErrAppend)
	assert.EqualValues(t, 0, c.Sequence(), "a failed seal does not advance")

	store.failing("set", false)
	require.NoError(t, c.Append(ctx, "bb"))
	assert.Equal(t, "aa", get(t, store, "_0"))
	assert.Equal(t, "bb", get(t, store, "_1"))
}

type unmarshalable struct {
	C chan int
}

func TestAppendObject(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	c := NewCache(store, &Config{MaxLength: 100, Separator: "\n", Logger: quietLogger()})
	require.NoError(t, c.Configure(ctx, nil))

	require.NoError(t, c.AppendObject(ctx, map[string]int{"a": 1}))
	require.NoError(t, c.Append(ctx, "plain"))
	require.NoError(t, c.AppendObject(ctx, struct {
		B string `json:"b"`
	}{"x"}))

	content, ok, err := c.GetOldestChunk(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "{\"a\":1}\nplain,{\"b\":\"x\"}", content)

	err = c.AppendObject(ctx, unmarshalable{C: make(chan int)})
	assert.ErrorIs(t, err, ErrSerialization)
	assert.Equal(t, content, get(t, store, "_0"))
}

func TestGetOldestChunk(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	c := newTestCache(t, store, 100)

	_, ok, err := c.GetOldestChunk(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "no chunk yet")

	require.NoError(t, store.SetItem(ctx, "_5", "five"))
	require.NoError(t, store.SetItem(ctx, "_2", "two"))
	require.NoError(t, store.SetItem(ctx, "meta", "m"))

	content, ok, err := c.GetOldestChunk(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", content)

	seq, content, ok, err := c.OldestChunk(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 2, seq)
	assert.Equal(t, "two", content)
}

func TestRemoveOldestChunk(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	c := newTestCache(t, store, 100)
	require.NoError(t, c.RemoveOldestChunk(ctx), "no chunk is a no-op")

	require.NoError(t, store.SetItem(ctx, "_5", "five"))
	require.NoError(t, store.SetItem(ctx, "_2", "two"))
	require.NoError(t, store.SetItem(ctx, "meta", "m"))
	before := c.Sequence()

	require.NoError(t, c.RemoveOldestChunk(ctx))
	assert.Equal(t, []string{"_5"}, chunkKeys(t, store))
	assert.Equal(t, "five", get(t, store, "_5"))
	assert.Equal(t, "m", get(t, store, "meta"))
	assert.Equal(t, before, c.Sequence())
}

func TestStorageErrorsAreTagged(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	c := newTestCache(t, store, 100)
	require.NoError(t, c.Append(ctx, "a"))

	check := func(op string, err error) {
		t.Helper()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStorage)
		assert.ErrorIs(t, err, errInjected)
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, op, e.Op)
		assert.Contains(t, err.Error(), op)
	}

	store.failing("keys", true)
	_, _, err := c.GetOldestChunk(ctx)
	check("getOldestChunk", err)
	check("removeOldestChunk", c.RemoveOldestChunk(ctx))
	_, err = c.Chunks(ctx)
	check("chunks", err)
	store.failing("keys", false)

	store.failing("get", true)
	_, _, err = c.GetOldestChunk(ctx)
	check("getOldestChunk", err)

	store.failing("remove", true)
	check("removeOldestChunk", c.RemoveOldestChunk(ctx))

	store.failing("clear", true)
	check("clear", c.Clear(ctx))
}

func TestClearNeedsConfigure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	c := newTestCache(t, store, 3)
	require.NoError(t, c.Append(ctx, "aa"))
	require.NoError(t, c.Append(ctx, "bb"))
	require.NoError(t, store.SetItem(ctx, "meta", "m"))

	require.NoError(t, c.Clear(ctx))
	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys, "non-chunk keys are cleared too")
	assert.EqualValues(t, 1, c.Sequence(), "clear keeps the in-memory sequence")

	require.NoError(t, c.Configure(ctx, nil))
	assert.EqualValues(t, 0, c.Sequence())
	require.NoError(t, c.Append(ctx, "cc"))
	assert.Equal(t, "cc", get(t, store, "_0"))
}

func TestSeal(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	c := newTestCache(t, store, 100)

	require.NoError(t, c.Seal(ctx))
	assert.EqualValues(t, 0, c.Sequence(), "an empty chunk is not sealed")

	require.NoError(t, c.Append(ctx, "a"))
	require.NoError(t, c.Seal(ctx))
	assert.EqualValues(t, 1, c.Sequence())
	require.NoError(t, c.Append(ctx, "b"))
	assert.Equal(t, "a", get(t, store, "_0"))
	assert.Equal(t, "b", get(t, store, "_1"))
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	c := newTestCache(t, store, 64)

	const writers, records = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < records; i++ {
				assert.NoError(t, c.Append(ctx, "rec"))
			}
		}()
	}
	wg.Wait()

	var total int
	for _, k := range chunkKeys(t, store) {
		v := get(t, store, k)
		assert.LessOrEqual(t, len(v), 64+3)
		total += len(strings.Split(v, ","))
	}
	assert.Equal(t, writers*records, total)
}

func TestErrorMessage(t *testing.T) {
	e := &Error{Op: "append", Kind: ErrAppend, Err: errInjected}
	assert.Equal(t, "append: injected failure", e.Error())
	e = &Error{Op: "append", Kind: ErrNotConfigured}
	assert.Equal(t, "append: cache is not configured", e.Error())
	assert.False(t, errors.Is(e, ErrAppend))
}
