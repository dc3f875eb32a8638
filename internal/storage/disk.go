package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// PathSizes returns the on-disk size of each named path and their sum. A path
// may be a file or a directory. Missing paths count as zero.
func PathSizes(named map[string]string) (map[string]int64, int64, error) {
	sizes := make(map[string]int64, len(named))
	var total int64
	for name, p := range named {
		if p == "" {
			sizes[name] = 0
			continue
		}
		n, err := pathSize(p)
		if err != nil {
			return nil, 0, err
		}
		sizes[name] = n
		total += n
	}
	return sizes, total, nil
}

func pathSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
