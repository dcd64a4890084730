// Package pipe classifies the endpoints of a compress or decompress operation so the caller can pick a transfer
// strategy.
package pipe

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// Kind describes what an endpoint points at.
type Kind int

const (
	// Unknown marks endpoints that cannot be classified, including paths that do not exist yet.
	Unknown Kind = iota
	// File marks paths that stat to a regular file.
	File
	// Dir marks paths that stat to a directory.
	Dir
	// Buffer marks in-memory endpoints ([]byte or *bytes.Buffer).
	Buffer
)

func (k Kind) String() string {
	switch k {
	case File:
		return "FILE"
	case Dir:
		return "DIRECTORY"
	case Buffer:
		return "BUFFER"
	default:
		return "UNKNOWN"
	}
}

// Pipe is the classification of one input/output endpoint pair.
//
// Left describes the input, Right the output. The nine Left×Right combinations each select a distinct transfer
// strategy: FILE→DIRECTORY extracts into the directory, BUFFER→BUFFER stays entirely in memory, DIRECTORY→* walks
// the tree one file at a time, and so on.
type Pipe struct {
	// InputPath and OutputPath are absolute when the corresponding endpoint is path-like, empty otherwise.
	InputPath  string
	OutputPath string

	// Left and Right classify the input and output endpoints.
	Left  Kind
	Right Kind

	// InputBytes holds the input when Left is Buffer.
	InputBytes []byte

	// OutputBuffer is the caller's buffer when the output endpoint was passed as *bytes.Buffer.
	OutputBuffer *bytes.Buffer
}

// Resolve classifies both endpoints of an operation.
//
// Each side is tested in order: an in-memory buffer ([]byte or *bytes.Buffer), then an existing regular file, then an
// existing directory. Everything else, including paths that do not exist yet, is Unknown. Path-like values are
// normalized to absolute paths even when unclassifiable, so a caller may still create the path afterwards.
func Resolve(in, out any) (p Pipe, err error) {
	switch v := in.(type) {
	case []byte:
		p.Left, p.InputBytes = Buffer, v
	case *bytes.Buffer:
		p.Left = Buffer
		if v != nil {
			p.InputBytes = v.Bytes()
		}
	case string:
		if p.InputPath, p.Left, err = classifyPath(v); err != nil {
			return
		}
	}

	switch v := out.(type) {
	case []byte:
		p.Right = Buffer
	case *bytes.Buffer:
		p.Right, p.OutputBuffer = Buffer, v
	case string:
		if p.OutputPath, p.Right, err = classifyPath(v); err != nil {
			return
		}
	}

	return
}

func classifyPath(path string) (string, Kind, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", Unknown, fmt.Errorf("resolve absolute path error: %w", err)
	}

	fi, err := os.Stat(abs)
	switch {
	case err != nil:
		return abs, Unknown, nil
	case fi.IsDir():
		return abs, Dir, nil
	case fi.Mode().IsRegular():
		return abs, File, nil
	default:
		return abs, Unknown, nil
	}
}
