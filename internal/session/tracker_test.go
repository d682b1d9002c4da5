package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.UnixMilli(1_700_000_000_000)

func TestOnOpened_KeepsExistingStart(t *testing.T) {
	tr := NewTracker()
	tr.OnOpened(1, "https://a.com", base)
	tr.OnOpened(1, "https://a.com/next", base.Add(5*time.Second))

	st, ok := tr.Get(1)
	require.True(t, ok)
	assert.Equal(t, base, st.StartedAt)
	assert.Equal(t, "https://a.com/next", st.URL)
}

func TestOnActivated_ReturnsDurationAndResets(t *testing.T) {
	tr := NewTracker()
	tr.OnOpened(1, "https://a.com", base)

	d := tr.OnActivated(1, "https://a.com", base.Add(3*time.Second))
	assert.Equal(t, 3*time.Second, d)

	st, _ := tr.Get(1)
	assert.Equal(t, base.Add(3*time.Second), st.StartedAt)

	d = tr.OnActivated(1, "https://a.com", base.Add(4*time.Second))
	assert.Equal(t, time.Second, d)
}

func TestOnActivated_UntrackedStartsSession(t *testing.T) {
	tr := NewTracker()
	d := tr.OnActivated(9, "https://a.com", base)

	assert.Equal(t, time.Duration(0), d)
	assert.Equal(t, 1, tr.Len())
}

func TestOnClosed_MeasuresFromLastActivation(t *testing.T) {
	tr := NewTracker()
	tr.OnOpened(1, "https://a.com", base)
	tr.OnActivated(1, "https://a.com", base.Add(10*time.Second))

	d, tracked := tr.OnClosed(1, base.Add(12*time.Second))
	assert.True(t, tracked)
	assert.Equal(t, 2*time.Second, d, "duration since last activation, not since creation")

	_, ok := tr.Get(1)
	assert.False(t, ok)
}

func TestOnClosed_Untracked(t *testing.T) {
	tr := NewTracker()
	d, tracked := tr.OnClosed(4, base)
	assert.False(t, tracked)
	assert.Equal(t, time.Duration(0), d)
}

func TestDurationsNeverNegative(t *testing.T) {
	tr := NewTracker()
	tr.OnOpened(1, "https://a.com", base)

	d := tr.OnActivated(1, "https://a.com", base.Add(-time.Minute))
	assert.Equal(t, time.Duration(0), d)

	tr.OnActivated(1, "https://a.com", base)
	d, _ = tr.OnClosed(1, base.Add(-time.Second))
	assert.Equal(t, time.Duration(0), d)
}

func TestOnNavigated_KeepsStart(t *testing.T) {
	tr := NewTracker()
	tr.OnOpened(1, "https://a.com", base)
	tr.OnNavigated(1, "https://b.com")
	tr.OnNavigated(2, "https://ignored.com")

	st, _ := tr.Get(1)
	assert.Equal(t, "https://b.com", st.URL)
	assert.Equal(t, base, st.StartedAt)
	assert.Equal(t, 1, tr.Len())
}

func TestPruneOrphans(t *testing.T) {
	tr := NewTracker()
	for id := 1; id <= 4; id++ {
		tr.OnOpened(id, "https://a.com", base)
	}

	removed := tr.PruneOrphans([]int{2, 4, 99})
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, tr.Len())

	_, ok := tr.Get(1)
	assert.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			tr.OnOpened(id, "https://a.com", base)
			tr.OnActivated(id, "https://a.com", base.Add(time.Second))
			tr.OnClosed(id, base.Add(2*time.Second))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, tr.Len())
}
