package platform

import (
	"os"
	"runtime"
)

// Modes used for status folders and the records written into them.
const (
	DirPerm  os.FileMode = 0o755
	FilePerm os.FileMode = 0o644
)

// Chmod sets file permissions. On Windows this is a no-op because Windows
// does not support Unix-style permission bits.
func Chmod(path string, mode os.FileMode) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	return os.Chmod(path, mode)
}

// OwnerWritable reports whether mode lets its owner create and rename files
// in a directory. Always true on Windows.
func OwnerWritable(mode os.FileMode) bool {
	if runtime.GOOS == "windows" {
		return true
	}
	return mode.Perm()&0o300 == 0o300
}
