package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestCache_FreshAndStale(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(time.Minute)
	c.now = clock.Now

	c.Put("u1", []Item{{ID: "a"}})
	got, ok := c.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "a", got[0].ID)

	clock.Advance(59 * time.Second)
	_, ok = c.Get("u1")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("u1")
	assert.False(t, ok, "entry at exactly the ttl is stale")
	assert.Equal(t, 0, c.Len(), "stale entry is evicted on read")
}

func TestCache_PutCopiesInput(t *testing.T) {
	c := NewCache(0)
	assert.Equal(t, DefaultCacheTTL, c.TTL())

	items := []Item{{ID: "a"}}
	c.Put("u1", items)
	items[0].ID = "mutated"

	got, ok := c.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "a", got[0].ID)
}

func TestCache_InvalidateAndClear(t *testing.T) {
	c := NewCache(time.Minute)
	c.Put("u1", nil)
	c.Put("u2", nil)

	c.Invalidate("u1")
	_, ok := c.Get("u1")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_PutIfGeneration(t *testing.T) {
	c := NewCache(time.Minute)

	gen := c.Generation("u1")
	c.Put("u1", []Item{{ID: "fresh"}})
	assert.False(t, c.PutIfGeneration("u1", gen, []Item{{ID: "stale"}}), "a put since gen was read wins")
	got, ok := c.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "fresh", got[0].ID)

	gen = c.Generation("u1")
	c.Invalidate("u1")
	assert.False(t, c.PutIfGeneration("u1", gen, []Item{{ID: "stale"}}))
	_, ok = c.Get("u1")
	assert.False(t, ok)

	gen = c.Generation("u1")
	c.Clear()
	assert.False(t, c.PutIfGeneration("u1", gen, nil))

	gen = c.Generation("u1")
	assert.True(t, c.PutIfGeneration("u1", gen, []Item{{ID: "rebuilt"}}))
	got, ok = c.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "rebuilt", got[0].ID)

	other := c.Generation("u2")
	c.Put("u1", nil)
	assert.True(t, c.PutIfGeneration("u2", other, nil), "generations are per user")
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache(time.Millisecond)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i%3)
			for j := 0; j < 200; j++ {
				switch j % 4 {
				case 0:
					c.Put(user, []Item{{ID: fmt.Sprint(j)}})
				case 1:
					c.Get(user)
				case 2:
					c.Invalidate(user)
				default:
					c.Len()
				}
			}
		}(i)
	}
	wg.Wait()
}
