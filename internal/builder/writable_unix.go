//go:build unix

package builder

import "golang.org/x/sys/unix"

func accessWritable(dir string) bool {
	return unix.Access(dir, unix.W_OK) == nil
}
