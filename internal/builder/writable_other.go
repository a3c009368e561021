//go:build !unix

package builder

import "os"

func accessWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".mgen-access-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}
