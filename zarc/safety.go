package zarc

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

// Default safety limits applied by the zero value of Limits.
const (
	// DefaultMaxEntries is the maximum number of entries an untrusted archive may declare.
	DefaultMaxEntries = 100

	// DefaultMaxUncompressedSize is the maximum total declared uncompressed size of an untrusted archive, 25 MiB.
	DefaultMaxUncompressedSize int64 = 25 * 1024 * 1024

	// DefaultBombRatio is the multiplier over DefaultMaxUncompressedSize beyond which an oversized archive is
	// treated as a decompression bomb rather than merely a large archive.
	DefaultBombRatio int64 = 1000
)

// Violation sentinels wrapped by ValidationError; test with errors.Is.
var (
	ErrEmptyArchive   = errors.New("archive is empty")
	ErrTooManyEntries = errors.New("archive declares too many entries")
	ErrSizeExceeded   = errors.New("archive exceeds the uncompressed size limit")
	ErrBombSuspected  = errors.New("archive looks like a decompression bomb")
)

// ValidationError is returned by Analyzer.Check when an untrusted archive fails a safety check.
//
// It wraps one of the violation sentinels so callers can branch with errors.Is while still getting a descriptive
// message. Safety failures are fatal: the archive must not have any entry read from it.
type ValidationError struct {
	// Violation is one of ErrEmptyArchive, ErrTooManyEntries, ErrSizeExceeded, or ErrBombSuspected.
	Violation error
	// Detail describes the measured value against its limit.
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Violation.Error()
	}

	return fmt.Sprintf("%v: %s", e.Violation, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Violation
}

// Limits holds the thresholds used by the archive safety checks.
//
// The zero value applies the package defaults. The thresholds were historically hardcoded; they are configuration
// surface now so deployments handling known-large archives can raise them per call or via the config file.
type Limits struct {
	// MaxEntries caps the declared entry count. Zero means DefaultMaxEntries.
	MaxEntries int

	// MaxUncompressedSize caps the total declared uncompressed size in bytes. Zero means
	// DefaultMaxUncompressedSize.
	MaxUncompressedSize int64

	// BombRatio is the multiplier over MaxUncompressedSize beyond which the archive is flagged as a bomb.
	// Zero means DefaultBombRatio.
	BombRatio int64
}

func (l Limits) maxEntries() int {
	if l.MaxEntries > 0 {
		return l.MaxEntries
	}

	return DefaultMaxEntries
}

func (l Limits) maxUncompressedSize() int64 {
	if l.MaxUncompressedSize > 0 {
		return l.MaxUncompressedSize
	}

	return DefaultMaxUncompressedSize
}

func (l Limits) bombRatio() int64 {
	if l.BombRatio > 0 {
		return l.BombRatio
	}

	return DefaultBombRatio
}

// Analyzer runs structural and size-based safety checks against untrusted archive buffers.
//
// The zero value is ready for use and applies the default Limits. All checks read only central directory metadata;
// no entry data is ever decompressed.
type Analyzer struct {
	Limits Limits
}

// IsEmptyArchive reports whether buf is nil, too small to be a ZIP file, or declares no entries.
func (a Analyzer) IsEmptyArchive(buf []byte) bool {
	if len(buf) <= MinArchiveSize {
		return true
	}

	return a.entryCount(buf) <= 0
}

// ExceedsEntryLimit reports whether buf declares more entries than the configured maximum.
func (a Analyzer) ExceedsEntryLimit(buf []byte) bool {
	return a.entryCount(buf) > a.Limits.maxEntries()
}

// TotalUncompressedSize sums the declared uncompressed size of every entry, clamping each entry to >= 0.
//
// Returns 0 if buf has no readable central directory.
func (a Analyzer) TotalUncompressedSize(buf []byte) (total int64) {
	_, headers, err := ScanBuffer(buf)
	if err != nil {
		return 0
	}

	for fh, err := range headers {
		if err != nil {
			break
		}

		total += max(0, int64(fh.UncompressedSize))
	}

	return total
}

// ExceedsSizeLimit reports whether the total declared uncompressed size is over the configured maximum.
func (a Analyzer) ExceedsSizeLimit(buf []byte) bool {
	return a.TotalUncompressedSize(buf) > a.Limits.maxUncompressedSize()
}

// IsPotentialBomb reports whether buf looks like a decompression bomb.
//
// An archive is flagged only when it is over the size limit AND its total declared uncompressed size exceeds
// BombRatio times that limit. The ratio distinguishes legitimately large archives from engineered payloads.
func (a Analyzer) IsPotentialBomb(buf []byte) bool {
	limit := a.Limits.maxUncompressedSize()
	total := a.TotalUncompressedSize(buf)

	return total > limit && total > limit*a.Limits.bombRatio()
}

// Violation checks a declared entry count and total uncompressed size against the limits.
//
// It returns a *ValidationError wrapping ErrEmptyArchive, ErrTooManyEntries, ErrBombSuspected, or ErrSizeExceeded
// for the first violated check, nil when both measurements are within bounds. A size violation escalates to
// ErrBombSuspected when the bomb ratio is also exceeded. Container formats other than ZIP can use this directly
// with counts taken from their own metadata.
func (l Limits) Violation(entries int, total int64) error {
	if entries <= 0 {
		return &ValidationError{
			Violation: ErrEmptyArchive,
			Detail:    "archive declares no entries",
		}
	}

	if limit := l.maxEntries(); entries > limit {
		return &ValidationError{
			Violation: ErrTooManyEntries,
			Detail:    fmt.Sprintf("%d entries, limit is %d", entries, limit),
		}
	}

	if limit := l.maxUncompressedSize(); total > limit {
		if total > limit*l.bombRatio() {
			return &ValidationError{
				Violation: ErrBombSuspected,
				Detail: fmt.Sprintf("declares %s uncompressed, more than %d times the %s limit",
					humanize.IBytes(uint64(total)), l.bombRatio(), humanize.IBytes(uint64(limit))),
			}
		}

		return &ValidationError{
			Violation: ErrSizeExceeded,
			Detail: fmt.Sprintf("declares %s uncompressed, limit is %s",
				humanize.IBytes(uint64(total)), humanize.IBytes(uint64(limit))),
		}
	}

	return nil
}

// Check validates buf against every safety check in order: empty archive, entry count, uncompressed size.
//
// A size violation escalates to ErrBombSuspected when the bomb ratio is also exceeded; otherwise it reports
// ErrSizeExceeded. Returns nil only when every check passes. Check must complete successfully before any entry is
// read from an untrusted buffer.
func (a Analyzer) Check(buf []byte) error {
	if len(buf) <= MinArchiveSize {
		return &ValidationError{
			Violation: ErrEmptyArchive,
			Detail:    fmt.Sprintf("%d bytes cannot hold a ZIP file", len(buf)),
		}
	}

	n := a.entryCount(buf)
	if n <= 0 {
		return &ValidationError{
			Violation: ErrEmptyArchive,
			Detail:    "no entries in central directory",
		}
	}

	return a.Limits.Violation(n, a.TotalUncompressedSize(buf))
}

// CheckReader validates the archive readable from src, whose total size must be given, the same way Check validates
// a buffer.
//
// Only central directory metadata is read; no entry data is decompressed. The read position of src is unspecified
// afterwards, so callers should seek before reusing it.
func (a Analyzer) CheckReader(src io.ReadSeeker, size int64) error {
	if size <= MinArchiveSize {
		return &ValidationError{
			Violation: ErrEmptyArchive,
			Detail:    fmt.Sprintf("%d bytes cannot hold a ZIP file", size),
		}
	}

	r, headers, err := Scan(src, size)
	if err != nil {
		return &ValidationError{
			Violation: ErrEmptyArchive,
			Detail:    "no readable central directory",
		}
	}

	var total int64
	for fh, err := range headers {
		if err != nil {
			return fmt.Errorf("scan central directory error: %w", err)
		}

		total += max(0, int64(fh.UncompressedSize))
	}

	return a.Limits.Violation(int(r.CDCount), total)
}

// entryCount returns the declared record count from the end of central directory record, or -1 if buf has none.
func (a Analyzer) entryCount(buf []byte) int {
	r, _, err := ScanBuffer(buf)
	if err != nil {
		return -1
	}

	return int(r.CDCount)
}

// IsEmptyArchive calls Analyzer.IsEmptyArchive with default Limits.
func IsEmptyArchive(buf []byte) bool {
	return Analyzer{}.IsEmptyArchive(buf)
}

// ExceedsEntryLimit calls Analyzer.ExceedsEntryLimit with default Limits.
func ExceedsEntryLimit(buf []byte) bool {
	return Analyzer{}.ExceedsEntryLimit(buf)
}

// TotalUncompressedSize calls Analyzer.TotalUncompressedSize with default Limits.
func TotalUncompressedSize(buf []byte) int64 {
	return Analyzer{}.TotalUncompressedSize(buf)
}

// ExceedsSizeLimit calls Analyzer.ExceedsSizeLimit with default Limits.
func ExceedsSizeLimit(buf []byte) bool {
	return Analyzer{}.ExceedsSizeLimit(buf)
}

// IsPotentialBomb calls Analyzer.IsPotentialBomb with default Limits.
func IsPotentialBomb(buf []byte) bool {
	return Analyzer{}.IsPotentialBomb(buf)
}

// Check calls Analyzer.Check with default Limits.
func Check(buf []byte) error {
	return Analyzer{}.Check(buf)
}
