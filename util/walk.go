package util

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
)

// WalkRegularFiles walks the tree rooted at root and calls fn for every regular file.
//
// The context's done status is checked before each entry so a cancelled walk stops promptly with ctx.Err().
// Directories, symlinks, and other irregular entries are skipped.
func WalkRegularFiles(ctx context.Context, root string, fn func(path string, d fs.DirEntry) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			// ctx.Err is not supposed to return nil here if ctx.Done() is closed.
			if err = ctx.Err(); err == nil {
				return filepath.SkipAll
			}

			return err
		default:
		}

		switch {
		case err != nil:
			return fmt.Errorf("walk dir error: %w", err)
		case d.Type().IsRegular():
			return fn(path, d)
		default:
			return nil
		}
	})
}

// DirSize returns the total size in bytes of every regular file under root.
func DirSize(root string) (size int64, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil, d.IsDir(), !d.Type().IsRegular():
			return err
		default:
			fi, err := d.Info()
			if err != nil {
				return err
			}

			size += fi.Size()
			return nil
		}
	})

	return
}
