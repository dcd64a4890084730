package zarc

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/krolaw/zipstream"
)

// ErrRawUnsupported is returned by Entry.OpenRaw when the underlying archive library cannot expose an entry's stored
// bytes without decompressing them.
var ErrRawUnsupported = errors.New("underlying archive reader cannot expose raw entry bytes")

// Entry is a uniform read-only view over a single archive entry.
//
// Implementations adapt one specific archive library each and are selected when the archive is opened; the view never
// probes the underlying value at call time. Entries are not independently mutable and must not outlive the reader
// that produced them.
type Entry interface {
	// Name returns the entry's full path inside the archive, always with forward slashes.
	Name() string

	// Header returns the entry's metadata. Fields the underlying library does not expose are zero.
	Header() FileHeader

	// IsDir reports whether the entry names a directory.
	IsDir() bool

	// Mode returns the entry's file mode bits mapped from its external attributes.
	Mode() os.FileMode

	// Comment returns the entry's comment, if any.
	Comment() string

	// Extra returns the entry's extra field bytes, if any.
	Extra() []byte

	// Open opens the entry's uncompressed contents for reading. Caller closes.
	Open() (io.ReadCloser, error)

	// OpenRaw opens the entry's stored (still compressed) bytes, or returns ErrRawUnsupported when the underlying
	// library only hands out decompressed data.
	OpenRaw() (io.Reader, error)
}

// Entries opens src as a ZIP archive and returns an iterator over its entries.
//
// When src is an *os.File or otherwise seekable, the stdlib archive/zip reader is used and entries may be opened in
// any order. Any other io.Reader is read sequentially through zipstream; that is the path for archives arriving over
// a network body, a process pipe, or stdin, where nothing can be buffered or statted first. On it, each entry must be
// fully consumed before the iterator advances, and headers come from the local file headers, so sizes can stay zero
// for entries written with data descriptors. The adapter is chosen here, once.
func Entries(src io.Reader) (iter.Seq2[Entry, error], error) {
	if f, ok := src.(*os.File); ok {
		fi, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat archive file error: %w", err)
		}

		return fromReaderAt(f, fi.Size())
	}

	type sizedReaderAt interface {
		io.ReaderAt
		Size() int64
	}
	if ra, ok := src.(sizedReaderAt); ok {
		return fromReaderAt(ra, ra.Size())
	}

	return fromStream(src), nil
}

func fromReaderAt(src io.ReaderAt, size int64) (iter.Seq2[Entry, error], error) {
	zr, err := zip.NewReader(src, size)
	if err != nil {
		return nil, fmt.Errorf("open zip reader error: %w", err)
	}

	return func(yield func(Entry, error) bool) {
		for _, f := range zr.File {
			if !yield(&zipFileEntry{f: f}, nil) {
				return
			}
		}
	}, nil
}

func fromStream(src io.Reader) iter.Seq2[Entry, error] {
	zr := zipstream.NewReader(src)

	return func(yield func(Entry, error) bool) {
		for {
			fh, err := zr.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("stream zip entry error: %w", err))
				return
			}

			if !yield(&streamEntry{fh: fh, r: zr}, nil) {
				return
			}
		}
	}
}

// zipFileEntry adapts archive/zip's *zip.File.
type zipFileEntry struct {
	f *zip.File
}

var _ Entry = &zipFileEntry{}

func (e *zipFileEntry) Name() string {
	return e.f.Name
}

func (e *zipFileEntry) Header() FileHeader {
	return headerFromZip(&e.f.FileHeader)
}

func (e *zipFileEntry) IsDir() bool {
	return e.f.FileInfo().IsDir()
}

func (e *zipFileEntry) Mode() os.FileMode {
	return e.f.Mode()
}

func (e *zipFileEntry) Comment() string {
	return e.f.Comment
}

func (e *zipFileEntry) Extra() []byte {
	return e.f.Extra
}

func (e *zipFileEntry) Open() (io.ReadCloser, error) {
	return e.f.Open()
}

func (e *zipFileEntry) OpenRaw() (io.Reader, error) {
	return e.f.OpenRaw()
}

// streamEntry adapts one position of a sequential zipstream reader.
type streamEntry struct {
	fh *zip.FileHeader
	r  io.Reader
}

var _ Entry = &streamEntry{}

func (e *streamEntry) Name() string {
	return e.fh.Name
}

func (e *streamEntry) Header() FileHeader {
	return headerFromZip(e.fh)
}

func (e *streamEntry) IsDir() bool {
	return e.fh.FileInfo().IsDir()
}

func (e *streamEntry) Mode() os.FileMode {
	return e.fh.Mode()
}

func (e *streamEntry) Comment() string {
	return e.fh.Comment
}

func (e *streamEntry) Extra() []byte {
	return e.fh.Extra
}

func (e *streamEntry) Open() (io.ReadCloser, error) {
	return io.NopCloser(e.r), nil
}

func (e *streamEntry) OpenRaw() (io.Reader, error) {
	return nil, ErrRawUnsupported
}

// headerFromZip maps a zip.FileHeader onto the central directory view.
//
// DiskNumStart, InternalAttrs, and Offset are not surfaced by archive/zip and stay zero; headers obtained from Scan
// carry the real values.
func headerFromZip(fh *zip.FileHeader) FileHeader {
	return FileHeader{
		CreatorVersion:   fh.CreatorVersion,
		ReaderVersion:    fh.ReaderVersion,
		Flags:            fh.Flags,
		Method:           fh.Method,
		Modified:         fh.Modified,
		ModifiedTime:     fh.ModifiedTime,
		ModifiedDate:     fh.ModifiedDate,
		CRC32:            fh.CRC32,
		CompressedSize:   uint32(min(fh.CompressedSize64, 0xffffffff)),
		UncompressedSize: uint32(min(fh.UncompressedSize64, 0xffffffff)),
		ExternalAttrs:    fh.ExternalAttrs,
		Name:             fh.Name,
		Comment:          fh.Comment,
		Extra:            fh.Extra,
	}
}
