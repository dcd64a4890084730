package sqz

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Reserved format names. Both resolve through Registry.Format but are never returned by Registry.Formats, and
// AddFormat rejects them.
const (
	// DefaultName resolves to the registry's default format.
	DefaultName = "DEFAULT"

	// UnsupportedName resolves to the sentinel format whose operations always fail with ErrUnsupportedFormat.
	UnsupportedName = "UNSUPPORTED"
)

// Registry holds an append-only, ordered collection of formats.
//
// Signature detection tests formats in registration order and returns the first match, so register more specific
// signatures before catch-alls. A Registry is safe for concurrent use. Most callers want DefaultRegistry; create
// separate registries to sandbox custom formats.
type Registry struct {
	mu          sync.RWMutex
	ordered     []*Format
	names       map[string]*Format
	def         *Format
	unsupported *Format
	sniffLen    int
}

// NewRegistry returns an empty registry.
//
// Until a format is added, the default format is the UNSUPPORTED sentinel.
func NewRegistry() *Registry {
	r := &Registry{names: map[string]*Format{}}

	f := &Format{Name: UnsupportedName}
	fail := func(ctx context.Context, in, out any, opts *Options) (Result, error) {
		return Result{}, ErrUnsupportedFormat
	}
	f.Compress = op(f, fail)
	f.Decompress = op(f, fail)
	r.unsupported = f

	return r
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the shared registry holding the built-in formats, created on first use.
//
// The built-ins are registered in detection order: GZIP, PKZIP, DEFLATE, BROTLI, ZSTD, XZ, SEVENZIP. GZIP is the
// default format.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r := NewRegistry()
		for _, f := range []*Format{
			newGzipFormat(),
			newPKZipFormat(),
			newDeflateFormat(),
			newBrotliFormat(),
			newZstdFormat(),
			newXzFormat(),
			newSevenZipFormat(),
		} {
			if err := r.AddFormat(f); err != nil {
				panic(err)
			}
		}

		defaultRegistry = r
	})

	return defaultRegistry
}

// AddFormat registers f under its case-normalized name.
//
// The name must be non-blank, not one of the reserved sentinel names, and not registered yet; violating any of these
// returns an error and leaves the registry unchanged, so an existing format can never be overwritten. A format
// missing one of its operations gets a stub that fails with a descriptive error. The first format added becomes the
// registry's default until SetDefault changes it.
func (r *Registry) AddFormat(f *Format) error {
	if f == nil {
		return errors.New("add format error: nil format")
	}

	name := strings.ToUpper(strings.TrimSpace(f.Name))
	switch name {
	case "":
		return errors.New("add format error: blank name")
	case DefaultName, UnsupportedName:
		return fmt.Errorf("add format error: name %q is reserved", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.names[name]; ok {
		return fmt.Errorf("add format error: %q is already registered", name)
	}

	f.Name = name
	if f.Compress == nil {
		f.Compress = op(f, unsupportedOp(name, "compression"))
	}
	if f.Decompress == nil {
		f.Decompress = op(f, unsupportedOp(name, "decompression"))
	}

	r.names[name] = f
	r.ordered = append(r.ordered, f)
	for _, sig := range f.Signatures {
		if len(sig) > r.sniffLen {
			r.sniffLen = len(sig)
		}
	}
	if r.def == nil {
		r.def = f
	}

	return nil
}

func unsupportedOp(name, verb string) opImpl {
	return func(ctx context.Context, in, out any, opts *Options) (Result, error) {
		return Result{}, fmt.Errorf("%w: %s does not support %s", ErrUnsupportedFormat, name, verb)
	}
}

// Format returns the format registered under name (case-insensitive).
//
// The reserved names DEFAULT and UNSUPPORTED resolve to the registry's default format and the failing sentinel
// respectively.
func (r *Registry) Format(name string) (*Format, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))

	r.mu.RLock()
	defer r.mu.RUnlock()

	switch name {
	case DefaultName:
		return r.defLocked(), true
	case UnsupportedName:
		return r.unsupported, true
	}

	f, ok := r.names[name]
	return f, ok
}

// Formats returns the registered formats in registration order, excluding the DEFAULT and UNSUPPORTED sentinels,
// narrowed by the given predicates if any.
func (r *Registry) Formats(filters ...func(*Format) bool) []*Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	formats := make([]*Format, 0, len(r.ordered))
next:
	for _, f := range r.ordered {
		for _, keep := range filters {
			if !keep(f) {
				continue next
			}
		}

		formats = append(formats, f)
	}

	return formats
}

// Default returns the registry's default format, or the UNSUPPORTED sentinel if the registry is empty.
func (r *Registry) Default() *Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.defLocked()
}

func (r *Registry) defLocked() *Format {
	if r.def != nil {
		return r.def
	}

	return r.unsupported
}

// SetDefault changes which registered format the DEFAULT name resolves to.
func (r *Registry) SetDefault(name string) error {
	name = strings.ToUpper(strings.TrimSpace(name))

	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.names[name]
	if !ok {
		return fmt.Errorf("set default format error: %q is not registered", name)
	}

	r.def = f
	return nil
}

// Unsupported returns the sentinel format whose operations always fail with ErrUnsupportedFormat.
func (r *Registry) Unsupported() *Format {
	return r.unsupported
}

// FromBuffer detects the format of buf by matching its leading bytes against every registered signature in
// registration order.
//
// Detection needs at least 2 leading bytes; anything shorter, or matching no signature, resolves to the UNSUPPORTED
// sentinel.
func (r *Registry) FromBuffer(buf []byte) *Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(buf) >= minSniffLen {
		for _, f := range r.ordered {
			if f.Matches(buf) {
				return f
			}
		}
	}

	return r.unsupported
}

// FromFile detects the format of the named file from its leading bytes.
//
// Files shorter than the longest registered signature are still matched against whatever bytes they have. The
// UNSUPPORTED sentinel is returned alongside any error opening or reading the file.
func (r *Registry) FromFile(name string) (*Format, error) {
	src, err := os.Open(name)
	if err != nil {
		return r.unsupported, fmt.Errorf("open file error: %w", err)
	}
	defer src.Close()

	r.mu.RLock()
	n := max(r.sniffLen, minSniffLen)
	r.mu.RUnlock()

	buf := make([]byte, n)
	switch n, err = io.ReadFull(src, buf); {
	case err == nil, errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return r.FromBuffer(buf[:n]), nil
	default:
		return r.unsupported, fmt.Errorf("read file signature error: %w", err)
	}
}

// FromExt returns the first registered format whose file name extension v ends with; v may be a bare extension
// (".gz") or a full path ("reports/2024.csv.gz").
func (r *Registry) FromExt(v string) (*Format, bool) {
	v = strings.ToLower(v)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.ordered {
		if ext := f.Options.Extension; ext != "" && strings.HasSuffix(v, ext) {
			return f, true
		}
	}

	return nil, false
}

// Resolve returns the format to use for v, which may be:
//
//   - nil: the default format;
//   - a *Format: itself;
//   - a string: a format name, then a file name extension, then the default format;
//   - a []byte or *bytes.Buffer: whatever FromBuffer detects, possibly the UNSUPPORTED sentinel.
func (r *Registry) Resolve(v any) *Format {
	switch v := v.(type) {
	case *Format:
		if v != nil {
			return v
		}

		return r.Default()
	case string:
		if f, ok := r.Format(v); ok {
			return f
		}
		if f, ok := r.FromExt(v); ok {
			return f
		}

		return r.Default()
	case []byte:
		return r.FromBuffer(v)
	case *bytes.Buffer:
		if v != nil {
			return r.FromBuffer(v.Bytes())
		}

		return r.Default()
	default:
		return r.Default()
	}
}
