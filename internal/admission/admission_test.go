package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/bladelsp/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newController(extraction, hover int) *Controller {
	return New(config.Admission{ExtractionPermits: extraction, HoverPermits: hover, LowWaterRatio: 0.25})
}

func TestAcquireBoundsConcurrency(t *testing.T) {
	c := newController(2, 8)
	var running, peak atomic.Int32

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			release, err := c.Acquire(context.Background(), Extraction)
			if err != nil {
				return err
			}
			defer release()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.LessOrEqual(t, peak.Load(), int32(2))
	snap := c.Snapshot()
	assert.EqualValues(t, 10, snap.Extraction.Acquired)
	assert.EqualValues(t, 0, snap.Extraction.InUse)
	assert.Positive(t, snap.Extraction.Waited)
}

func TestPoolsAreIndependent(t *testing.T) {
	c := newController(1, 1)
	release, err := c.Acquire(context.Background(), Extraction)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	hoverRelease, err := c.Acquire(ctx, Hover)
	require.NoError(t, err)
	hoverRelease()
}

func TestAcquireHonorsContext(t *testing.T) {
	c := newController(1, 1)
	release, err := c.Acquire(context.Background(), Extraction)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Acquire(ctx, Extraction)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 0, c.Snapshot().Extraction.Waiting)

	release()
	release() // second call is a no-op
	assert.EqualValues(t, 1, c.Available(Extraction))
}

func TestUnderLoad(t *testing.T) {
	c := newController(4, 16)
	assert.False(t, c.UnderLoad())

	var releases []func()
	for i := 0; i < 3; i++ {
		r, err := c.Acquire(context.Background(), Extraction)
		require.NoError(t, err)
		releases = append(releases, r)
	}
	assert.False(t, c.UnderLoad(), "one of four permits free is the low-water mark")

	r, err := c.Acquire(context.Background(), Extraction)
	require.NoError(t, err)
	releases = append(releases, r)
	assert.True(t, c.UnderLoad())
	assert.True(t, c.Snapshot().UnderLoad)

	for _, r := range releases {
		r()
	}
	assert.False(t, c.UnderLoad())
}

func TestUnderLoadFromHoverPool(t *testing.T) {
	c := newController(4, 16)
	var mu sync.Mutex
	var releases []func()
	for i := 0; i < 13; i++ {
		r, err := c.Acquire(context.Background(), Hover)
		require.NoError(t, err)
		mu.Lock()
		releases = append(releases, r)
		mu.Unlock()
	}
	assert.True(t, c.UnderLoad())
	for _, r := range releases {
		r()
	}
}

func TestDefaults(t *testing.T) {
	c := New(config.Admission{})
	assert.EqualValues(t, 1, c.Available(Extraction))
	assert.EqualValues(t, 1, c.Available(Hover))
	assert.Equal(t, "extraction", Extraction.String())
	assert.Equal(t, "hover", Hover.String())
}
