package peers

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_UpsertIsUniquePerAddress(t *testing.T) {
	d := NewDirectory("10.0.0.1")

	created, err := d.Upsert("10.0.0.2", "alice", 12346)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = d.Upsert("10.0.0.2", "alice", 12346)
	require.NoError(t, err)
	assert.False(t, created)

	created, err = d.Upsert("10.0.0.2", "alice-renamed", 12000)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, 1, d.Len())
	rec, found := d.Get("10.0.0.2")
	require.True(t, found)
	assert.Equal(t, Record{Address: "10.0.0.2", Name: "alice-renamed", Port: 12000}, rec)
}

func TestDirectory_RejectsSelfAndEmpty(t *testing.T) {
	d := NewDirectory("10.0.0.1")

	_, err := d.Upsert("10.0.0.1", "me", 12346)
	assert.ErrorIs(t, err, ErrSelfAddress)

	_, err = d.Upsert("", "nobody", 12346)
	assert.ErrorIs(t, err, ErrEmptyAddress)

	assert.Zero(t, d.Len())
	assert.Equal(t, "10.0.0.1", d.Local())
}

func TestDirectory_SnapshotOrder(t *testing.T) {
	d := NewDirectory("10.0.0.1")

	_, ok := d.First()
	assert.False(t, ok)

	for _, addr := range []string{"10.0.0.9", "10.0.0.3", "10.0.0.5"} {
		_, err := d.Upsert(addr, "peer-"+addr, 12346)
		require.NoError(t, err)
	}

	snapshot := d.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "10.0.0.3", snapshot[0].Address)
	assert.Equal(t, "10.0.0.5", snapshot[1].Address)
	assert.Equal(t, "10.0.0.9", snapshot[2].Address)

	first, ok := d.First()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.3", first.Address)

	// снимок не связан с внутренним состоянием
	snapshot[0].Name = "changed"
	rec, _ := d.Get("10.0.0.3")
	assert.Equal(t, "peer-10.0.0.3", rec.Name)
}

func TestDirectory_ConcurrentUpsert(t *testing.T) {
	d := NewDirectory("10.0.0.1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := fmt.Sprintf("10.0.1.%d", i%10)
			_, _ = d.Upsert(addr, "peer", 12346)
			_ = d.Snapshot()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, d.Len())
}
