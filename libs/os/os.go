package os

import (
	"fmt"
	"os"
)

// Exit prints s and exits with status 1.
func Exit(s string) {
	fmt.Println(s)
	os.Exit(1)
}

// EnsureDir creates dir with mode, and any missing parents, if it does not
// exist yet.
func EnsureDir(dir string, mode os.FileMode) error {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, mode); err != nil {
			return fmt.Errorf("could not create directory %v: %w", dir, err)
		}
	case err != nil:
		return fmt.Errorf("could not stat directory %v: %w", dir, err)
	case !info.IsDir():
		return fmt.Errorf("%v is not a directory", dir)
	}
	return nil
}

func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}
