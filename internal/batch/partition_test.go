package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-insights-go/internal/types"
)

func TestPartition_ChunkCount(t *testing.T) {
	tests := []struct {
		items, size, want int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{45, 20, 3},
		{7, 1, 7},
		{5, 0, 5},
	}
	for _, tt := range tests {
		chunks, missing := Partition(makeItems(tt.items), tt.size, allExist)
		assert.Len(t, chunks, tt.want, "items=%d size=%d", tt.items, tt.size)
		assert.Empty(t, missing)
	}
}

func TestPartition_DisjointCoverInOrder(t *testing.T) {
	items := makeItems(45)
	chunks, _ := Partition(items, 20, allExist)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Items, 20)
	assert.Len(t, chunks[1].Items, 20)
	assert.Len(t, chunks[2].Items, 5)

	var flat []types.WorkItem
	seen := map[string]bool{}
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		for _, it := range c.Items {
			assert.False(t, seen[it.FileName], "%s appears in more than one chunk", it.FileName)
			seen[it.FileName] = true
			flat = append(flat, it)
		}
	}
	assert.Equal(t, items, flat)
	assert.Equal(t, "f21.mp3", chunks[1].Items[0].FileName)
}

func TestPartition_ExcludesMissingFiles(t *testing.T) {
	items := makeItems(5)
	exists := func(p string) bool { return p != "/audio/f02.mp3" && p != "/audio/f04.mp3" }

	chunks, missing := Partition(items, 2, exists)
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"f01.mp3", "f03.mp3"}, chunks[0].FileNames())
	assert.Equal(t, []string{"f05.mp3"}, chunks[1].FileNames())
	assert.Equal(t, []types.WorkItem{items[1], items[3]}, missing)
}
