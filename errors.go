package sqz

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned by both operations of the UNSUPPORTED sentinel format, which is what signature
// detection resolves to when the leading bytes of an input match no registered format.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ErrEncryptedEntry is returned when a PKZIP archive contains entries encrypted with ZipCrypto or AE-x, which
// [archive/zip] cannot decrypt. Use an external tool to extract those archives.
var ErrEncryptedEntry = errors.New("archive contains encrypted entries")

// InsecurePathError is returned when extracting an archive entry whose name would escape the destination directory.
type InsecurePathError struct {
	// Name is the offending entry name exactly as it appears in the archive.
	Name string
}

func (e *InsecurePathError) Error() string {
	return fmt.Sprintf("insecure entry path %q escapes destination directory", e.Name)
}
