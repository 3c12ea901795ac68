package changeset

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/osm-edit-engine/internal/osm"
)

func TestOpenAssignsIncreasingIDs(t *testing.T) {
	r := NewRegistry()

	first := r.Open(osm.Changeset{User: "alice"})
	second := r.Open(osm.Changeset{User: "bob"})

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)

	cs, ok := r.Get(first)
	require.True(t, ok)
	assert.True(t, cs.Open)
	assert.Equal(t, "alice", cs.User)
	assert.False(t, cs.CreatedAt.IsZero())
}

func TestCloseIsIdempotent(t *testing.T) {
	r := NewRegistry()
	id := r.Open(osm.Changeset{})

	assert.True(t, r.Close(id))
	assert.False(t, r.Close(id))
	assert.False(t, r.Close(999))

	cs, ok := r.Get(id)
	require.True(t, ok)
	assert.False(t, cs.Open)
	assert.False(t, cs.ClosedAt.IsZero())
	assert.False(t, r.IsOpen(id))
}

func TestUpdateOverwritesTags(t *testing.T) {
	r := NewRegistry()
	id := r.Open(osm.Changeset{Tags: map[string]string{"comment": "initial"}})

	require.True(t, r.Update(id, map[string]string{"comment": "revised", "source": "survey"}))

	cs, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, "revised", cs.Tags["comment"])
	assert.Equal(t, "survey", cs.Tags["source"])

	assert.False(t, r.Update(999, nil))
}

func TestConcurrentOpensNeverCollide(t *testing.T) {
	r := NewRegistry()

	const openers = 32
	const perOpener = 50

	var wg sync.WaitGroup
	ids := make(chan int64, openers*perOpener)
	for i := 0; i < openers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perOpener; j++ {
				ids <- r.Open(osm.Changeset{})
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		require.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, openers*perOpener)
}

func TestFastForward(t *testing.T) {
	r := NewRegistry()
	r.FastForward(10)

	assert.Equal(t, int64(11), r.Open(osm.Changeset{}))

	// Never moves backwards.
	r.FastForward(5)
	assert.Equal(t, int64(12), r.Open(osm.Changeset{}))
}

func TestAllSorted(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		r.Open(osm.Changeset{})
	}

	all := r.All()
	require.Len(t, all, 5)
	for i, cs := range all {
		assert.Equal(t, int64(i+1), cs.ID)
	}
}

func TestRestoreRecoversChangesetClosed(t *testing.T) {
	r := NewRegistry()

	require.True(t, r.Restore(osm.Changeset{ID: 7, UID: 3, User: "alice"}))

	cs, ok := r.Get(7)
	require.True(t, ok)
	assert.False(t, cs.Open)
	assert.Equal(t, "alice", cs.User)

	// The counter moved past the restored id.
	assert.Equal(t, int64(8), r.Open(osm.Changeset{User: "bob"}))
}

func TestRestoreLeavesKnownChangesetsAlone(t *testing.T) {
	r := NewRegistry()
	id := r.Open(osm.Changeset{User: "alice"})

	assert.False(t, r.Restore(osm.Changeset{ID: id, User: "mallory"}))

	cs, ok := r.Get(id)
	require.True(t, ok)
	assert.True(t, cs.Open)
	assert.Equal(t, "alice", cs.User)
}
