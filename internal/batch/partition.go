package batch

import (
	"os"

	"survey-insights-go/internal/types"
)

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Partition drops items whose file is missing and splits the rest, in catalog
// order, into consecutive chunks of at most size items. Chunk i holds the
// filtered items [i*size, min((i+1)*size, len)).
func Partition(items []types.WorkItem, size int, exists func(string) bool) ([]types.Chunk, []types.WorkItem) {
	if size < 1 {
		size = 1
	}
	if exists == nil {
		exists = FileExists
	}

	var present, missing []types.WorkItem
	for _, it := range items {
		if exists(it.FilePath) {
			present = append(present, it)
		} else {
			missing = append(missing, it)
		}
	}

	chunks := make([]types.Chunk, 0, (len(present)+size-1)/size)
	for start := 0; start < len(present); start += size {
		end := min(start+size, len(present))
		chunks = append(chunks, types.Chunk{
			Index: len(chunks),
			Items: present[start:end:end],
		})
	}
	return chunks, missing
}
