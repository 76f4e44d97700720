package symbolcache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/codenav/src/codenav/entity"
	"github.com/uber/codenav/src/codenav/internal/clock"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const _symbols = `[{"name":"foo","kind":12,"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":15}},"selectionRange":{"start":{"line":0,"character":4},"end":{"line":0,"character":7}}}]`

type countingLoader struct {
	calls atomic.Int32
	raw   string
	err   error
	gate  chan struct{}
}

func (l *countingLoader) load(ctx context.Context) (json.RawMessage, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	if l.err != nil {
		return nil, l.err
	}
	return json.RawMessage(l.raw), nil
}

func newCache() (*Cache, tally.TestScope) {
	stats := tally.NewTestScope("", nil)
	return New(clock.New(), stats), stats
}

func TestGet(t *testing.T) {
	c, stats := newCache()
	ctx := context.Background()
	doc := entity.Document{Path: "/repo/main.py", Text: []byte("def foo(): pass\n")}
	loader := &countingLoader{raw: _symbols}

	first, err := c.Get(ctx, doc, loader.load)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "foo", first[0].Name)
	assert.Equal(t, "foo", first[0].NamePath)
	assert.Equal(t, "def foo(): pass", first[0].Body)
	assert.Equal(t, int32(1), loader.calls.Load())

	// Unchanged content hits the cache and returns the identical slice.
	second, err := c.Get(ctx, doc, loader.load)
	require.NoError(t, err)
	assert.Equal(t, int32(1), loader.calls.Load())
	assert.Same(t, &first[0], &second[0])

	// Changed content misses.
	doc.Text = []byte("def foo(): return 1\n")
	_, err = c.Get(ctx, doc, loader.load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.calls.Load())
	assert.Equal(t, 1, c.Len())

	counters := stats.Snapshot().Counters()
	assert.Equal(t, int64(1), counters["symbol_cache.hits+"].Value())
	assert.Equal(t, int64(2), counters["symbol_cache.misses+"].Value())
}

func TestGetErrors(t *testing.T) {
	c, _ := newCache()
	ctx := context.Background()
	doc := entity.Document{Path: "/repo/main.py", Text: []byte("def foo(): pass\n")}

	failing := &countingLoader{err: errors.New("sample")}
	_, err := c.Get(ctx, doc, failing.load)
	assert.EqualError(t, err, "sample")
	assert.Equal(t, 0, c.Len())

	malformed := &countingLoader{raw: `{"not":"a list"}`}
	_, err = c.Get(ctx, doc, malformed.load)
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())

	// Failures are not cached.
	ok := &countingLoader{raw: _symbols}
	symbols, err := c.Get(ctx, doc, ok.load)
	require.NoError(t, err)
	assert.Len(t, symbols, 1)
}

func TestGetCollapsesConcurrentMisses(t *testing.T) {
	c, _ := newCache()
	doc := entity.Document{Path: "/repo/main.py", Text: []byte("def foo(): pass\n")}
	loader := &countingLoader{raw: _symbols, gate: make(chan struct{})}

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]entity.Symbol, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			symbols, err := c.Get(context.Background(), doc, loader.load)
			assert.NoError(t, err)
			results[i] = symbols
		}(i)
	}

	require.Eventually(t, func() bool { return loader.calls.Load() == 1 }, time.Second, time.Millisecond)
	// Give the remaining callers time to join the in-flight load.
	time.Sleep(20 * time.Millisecond)
	close(loader.gate)
	wg.Wait()

	assert.Equal(t, int32(1), loader.calls.Load())
	for _, r := range results {
		require.Len(t, r, 1)
		assert.Equal(t, "foo", r[0].Name)
	}
}

func TestInvalidateAndClear(t *testing.T) {
	c, _ := newCache()
	ctx := context.Background()
	loader := &countingLoader{raw: _symbols}

	a := entity.Document{Path: "/repo/a.py", Text: []byte("def foo(): pass\n")}
	b := entity.Document{Path: "/repo/b.py", Text: []byte("def foo(): pass\n")}
	_, err := c.Get(ctx, a, loader.load)
	require.NoError(t, err)
	_, err = c.Get(ctx, b, loader.load)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	symbols, stored, ok := c.Peek(a.Path)
	assert.True(t, ok)
	assert.Len(t, symbols, 1)
	assert.False(t, stored.IsZero())

	c.Invalidate(a.Path)
	assert.Equal(t, 1, c.Len())
	_, _, ok = c.Peek(a.Path)
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, err = c.Get(ctx, b, loader.load)
	require.NoError(t, err)
	assert.Equal(t, int32(3), loader.calls.Load())
}
