package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-ini/ini"
)

// Loader can be used for loading .sqz configuration as well as overridden with default settings.
type Loader struct {
	cfg *ini.File
}

// Load will traverse the directory hierarchy upwards to find the first ".sqz" file available and load its contents
// into the Loader.
//
// The name of the .sqz file is returned, or "" when no ancestor directory has one.
func (l *Loader) Load(ctx context.Context) (string, error) {
	var (
		path        = filepath.Join(".", ".sqz")
		fi          os.FileInfo
		err         error
		cur, parent string
	)

	if cur, err = os.Getwd(); err != nil {
		return "", err
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		if fi, err = os.Stat(path); err == nil && !fi.IsDir() {
			break
		}
		if err != nil && !os.IsNotExist(err) {
			return "", err
		}

		// a directory named .sqz is skipped the same way a missing file is.
		parent = filepath.Dir(cur)
		if parent == cur || parent == "." || parent == "/" {
			return "", nil
		}

		path = filepath.Join(parent, ".sqz")
		cur = parent
	}

	l.cfg, err = ini.Load(path)
	if err != nil {
		l.cfg = ini.Empty()
		return path, err
	}

	return path, nil
}

// DefaultLoader is the default Loader instance for package-level methods.
var DefaultLoader = &Loader{cfg: ini.Empty()}

// Load calls Loader.Load on the DefaultLoader instance.
func Load(ctx context.Context) (string, error) {
	return DefaultLoader.Load(ctx)
}
