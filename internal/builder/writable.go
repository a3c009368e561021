package builder

import "path/filepath"

// isWritable is swapped out in tests
var isWritable = dirWritable

// dirWritable reports whether the current user may create dir (or write into it
// if it already exists), judged by its closest existing ancestor.
func dirWritable(dir string) bool {
	dir = filepath.Clean(dir)
	for !exists(dir) {
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
	return accessWritable(dir)
}
