package h2disp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamTableInsertRejectsDuplicate(t *testing.T) {
	table := &StreamTable{}

	_, err := table.insert(1, &fakeHandler{})
	require.NoError(t, err)

	_, err = table.insert(1, &fakeHandler{})
	require.Error(t, err)

	var dup *DuplicateStreamError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, uint32(1), dup.ID)
}

func TestStreamTableRemoveIsCompareAndDelete(t *testing.T) {
	table := &StreamTable{}
	entry, err := table.insert(3, &fakeHandler{})
	require.NoError(t, err)

	stale := &streamEntry{kind: entryOpen}
	require.False(t, table.remove(3, stale), "remove must not delete on a stale token")

	require.True(t, table.remove(3, entry))
	_, ok := table.load(3)
	require.False(t, ok)
}

func TestStreamTableHighWaterIsMonotonic(t *testing.T) {
	table := &StreamTable{}
	e5, _ := table.insert(5, &fakeHandler{})
	e9, _ := table.insert(9, &fakeHandler{})

	require.True(t, table.remove(9, e9))
	require.Equal(t, uint32(9), table.HighWater())

	require.True(t, table.remove(5, e5))
	require.Equal(t, uint32(9), table.HighWater(), "high water must never regress")
}

func TestStreamTableCasReplace(t *testing.T) {
	table := &StreamTable{}
	open, _ := table.insert(1, &fakeHandler{})

	terminal := &streamEntry{kind: entryLocalReset}
	require.True(t, table.casReplace(1, open, terminal))

	// A second attempt against the now-stale `open` token must fail.
	other := &streamEntry{kind: entryFailed}
	require.False(t, table.casReplace(1, open, other))

	got, ok := table.load(1)
	require.True(t, ok)
	require.Equal(t, terminal, got)
}

func TestStreamTableRangeOpenOnlyVisitsOpenEntries(t *testing.T) {
	table := &StreamTable{}
	openEntry, _ := table.insert(1, &fakeHandler{})
	terminalEntry := &streamEntry{kind: entryLocalReset}
	table.m.Store(uint32(3), terminalEntry)

	visited := map[uint32]*streamEntry{}
	var mu sync.Mutex
	table.rangeOpen(func(id uint32, e *streamEntry) {
		mu.Lock()
		visited[id] = e
		mu.Unlock()
	})

	require.Len(t, visited, 1)
	require.Equal(t, openEntry, visited[1])
}

func TestStreamTableLen(t *testing.T) {
	table := &StreamTable{}
	require.Equal(t, 0, table.Len())

	table.insert(1, &fakeHandler{})
	table.insert(2, &fakeHandler{})
	require.Equal(t, 2, table.Len())
}
