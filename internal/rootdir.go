package internal

import (
	"path/filepath"
	"regexp"
	"strings"
)

var sep = regexp.MustCompile(`[\\/]`)

// RootDir can be used to remove the root prefix of an archive entry path.
type RootDir string

// Join trims the root prefix from path then joins it onto base with filepath.Join.
func (r RootDir) Join(base, path string) string {
	return filepath.Join(base, strings.TrimPrefix(path, string(r)))
}

// FindRootDir returns the common root directory of the given entry names in an archive.
//
// Given these three names (archive entry paths are always relative, normally using `/` as separator):
//
//	test/a.txt
//	test/path/b.txt
//	test/another/path/c.txt
//
// The common root directory of those entries is "test/". The returned value is empty if the given entries have no
// common root directory.
func FindRootDir(names []string) (rootDir RootDir) {
	fn := NewRootDirFinder()

	var ok bool
	for _, name := range names {
		rootDir, ok = fn(name)
		if !ok {
			break
		}
	}

	return
}

// NewRootDirFinder returns a function that can be fed entry names one at a time to compute the common root.
//
// NewRootDirFinder is a functional variant of FindRootDir. It returns the root dir so far and a boolean indicating
// whether a common root is still possible. As soon as the returned boolean value is false, the search can stop since
// there is no common root and subsequent calls will keep returning `"", false`.
func NewRootDirFinder() func(string) (rootDir RootDir, hasRoot bool) {
	noRoot, root := false, ""

	return func(name string) (RootDir, bool) {
		if noRoot {
			return "", false
		}

		paths := sep.Split(name, 2)
		if len(paths) == 1 {
			// this is a file at top level so there is no root for sure.
			noRoot = true
			return "", false
		}

		switch root {
		case paths[0]:
		case "":
			root = paths[0]
		default:
			noRoot = true
			return "", false
		}

		return RootDir(root + "/"), true
	}
}
