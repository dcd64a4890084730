package sqz

import (
	"bytes"
	"context"
	"io"
)

// minSniffLen is the fewest leading bytes signature detection needs before any format can match.
const minSniffLen = 2

// OpFunc is the signature shared by the Compress and Decompress operations of every Format.
//
// The in and out arguments each accept a path (string), a []byte, or a *bytes.Buffer. Paths are classified against
// the filesystem (regular file, directory, or not existing yet) and the combination of both endpoints selects the
// transfer strategy; see the package-level Compress and Decompress for the common entry points.
type OpFunc func(ctx context.Context, in, out any, optFns ...func(*Options)) (Result, error)

// Format describes one compression codec or archive container.
//
// A Format is immutable once registered; do not modify its fields after handing it to a Registry.
type Format struct {
	// Name is the registry key, always upper-case (e.g. "GZIP", "PKZIP").
	Name string

	// Signatures holds the magic-byte prefixes identifying this format's outputs.
	//
	// Detection matches the leading bytes of an input against every signature in order. A format with no
	// signatures can never be detected by sniffing.
	Signatures [][]byte

	// Container reports whether the format archives multiple entries (PKZIP, SEVENZIP) rather than compressing a
	// single stream.
	Container bool

	// Options holds the format's default options; callers override per call via option functions.
	Options Options

	// Compress compresses in to out.
	Compress OpFunc

	// Decompress decompresses in to out.
	Decompress OpFunc
}

// Matches reports whether the leading bytes in p start with any of the format's signatures.
//
// Detection needs at least 2 leading bytes; shorter slices never match.
func (f *Format) Matches(p []byte) bool {
	if len(p) < minSniffLen {
		return false
	}

	for _, sig := range f.Signatures {
		if bytes.HasPrefix(p, sig) {
			return true
		}
	}

	return false
}

// opImpl is the inner implementation of an operation, called after options have been merged.
type opImpl func(ctx context.Context, in, out any, opts *Options) (Result, error)

// op adapts impl into an OpFunc that merges f's default options with the caller's option functions and notifies
// observers exactly once when the operation settles.
func op(f *Format, impl opImpl) OpFunc {
	return func(ctx context.Context, in, out any, optFns ...func(*Options)) (Result, error) {
		opts := newOptions(f, optFns...)
		return opts.settle(impl(ctx, in, out, opts))
	}
}

// encoderFunc opens a compressing io.WriteCloser around dst.
type encoderFunc func(dst io.Writer, opts *Options) (io.WriteCloser, error)

// decoderFunc opens a decompressing io.ReadCloser around src.
type decoderFunc func(src io.Reader, opts *Options) (io.ReadCloser, error)

// newStreamFormat builds the Format for a single-stream codec out of its encoder and decoder constructors.
func newStreamFormat(name, ext string, signatures [][]byte, enc encoderFunc, dec decoderFunc) *Format {
	f := &Format{
		Name:       name,
		Signatures: signatures,
		Options:    Options{Extension: ext},
	}
	f.Compress = op(f, compressStream(f, enc))
	f.Decompress = op(f, decompressStream(f, dec))

	return f
}
