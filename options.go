package sqz

import (
	"archive/zip"
	"compress/flate"
	"io"

	"github.com/nguyengg/sqz/passlock"
	"github.com/nguyengg/sqz/util"
	"github.com/nguyengg/sqz/zarc"
)

// Options customises a single compress or decompress operation.
//
// Every Format carries its own default Options; the option functions passed to an operation are applied on top of a
// copy, so an Options value never outlives the call that merged it.
type Options struct {
	// Extension is the file name extension of the format's outputs, including the leading dot (".gz").
	//
	// Compressing into a directory appends it to the source name; decompressing strips it to recover the original
	// name. It also participates in Registry.Resolve when detection by signature is not possible.
	Extension string

	// DeleteSource removes the source file or directory after the operation completes successfully.
	//
	// The source is never touched when the operation fails or when the output cannot be verified as fully written.
	DeleteSource bool

	// UnwrapRoot skips the archive's root directory while extracting if every entry lives under the same one.
	//
	// An archive containing a/b.txt and a/c/d.txt extracts as b.txt and c/d.txt.
	UnwrapRoot bool

	// Comment is written as the archive-level comment by container formats that support one.
	Comment string

	// Encoding names the character encoding of entry names written by container formats. Default "utf-8"; any
	// other value marks entry names as non-UTF-8 in the archive.
	Encoding string

	// MaxConcurrency customises the concurrency level.
	//
	// Applicable only for codecs that support it (e.g. zstd). The zero value lets the encoder use its default.
	MaxConcurrency int

	// BufferSize is the length of the copy buffer. Default to util.DefaultBufferSize.
	BufferSize int

	// Limits overrides the archive safety thresholds. The zero value applies the zarc defaults.
	Limits zarc.Limits

	// Filter keeps only the files or archive entries whose name it accepts; nil keeps everything.
	//
	// Names are slash-separated and relative to the archive or directory root.
	Filter func(name string) bool

	// Protection supplies the passphrase for protected archives without ever holding it in plaintext.
	//
	// The passphrase is recovered with passlock right before the transfer needs it. WithPassphrase bypasses
	// Protection for callers that already have the plaintext.
	Protection *passlock.Protection

	// Observers are notified exactly once when the operation settles, successfully or not.
	Observers []func(Result, error)

	// NewProgressWriter returns a writer that observes the bytes read from the named input, or nil to disable
	// progress reporting for that input. Size is -1 when unknown. The writer is closed when the transfer finishes.
	NewProgressWriter func(name string, size int64) io.WriteCloser

	// NewZipWriter allows customization of the zip.Writer being used by container compression.
	//
	// Default to a [zip.NewWriter].
	NewZipWriter func(w io.Writer) *zip.Writer

	passphrase string
}

// WithDeleteSource makes the operation remove its source after verified success.
func WithDeleteSource(options *Options) {
	options.DeleteSource = true
}

// WithUnwrapRoot makes extraction skip the archive's root directory if every entry shares the same one.
func WithUnwrapRoot(options *Options) {
	options.UnwrapRoot = true
}

// WithComment sets the archive-level comment written by container formats.
func WithComment(comment string) func(*Options) {
	return func(options *Options) {
		options.Comment = comment
	}
}

// WithFilter keeps only the files or archive entries whose slash-separated name the predicate accepts.
func WithFilter(filter func(name string) bool) func(*Options) {
	return func(options *Options) {
		options.Filter = filter
	}
}

// WithLimits overrides the archive safety thresholds for this operation.
func WithLimits(limits zarc.Limits) func(*Options) {
	return func(options *Options) {
		options.Limits = limits
	}
}

// WithProtection supplies the protected passphrase for reading or writing protected archives.
func WithProtection(protection *passlock.Protection) func(*Options) {
	return func(options *Options) {
		options.Protection = protection
	}
}

// WithPassphrase supplies a plaintext passphrase directly, taking precedence over WithProtection.
func WithPassphrase(passphrase string) func(*Options) {
	return func(options *Options) {
		options.passphrase = passphrase
	}
}

// WithObserver appends a function to be notified exactly once when the operation settles.
//
// Observers receive the same Result and error the operation returns; they must not retain the Result's Bytes beyond
// the call.
func WithObserver(fn func(Result, error)) func(*Options) {
	return func(options *Options) {
		options.Observers = append(options.Observers, fn)
	}
}

// WithNoCompression uses a [zip.Writer] that registers [flate.NoCompression] as its compressor.
func WithNoCompression(options *Options) {
	options.NewZipWriter = func(w io.Writer) *zip.Writer {
		zw := zip.NewWriter(w)
		zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, flate.NoCompression)
		})
		return zw
	}
}

// WithBestCompression uses a [zip.Writer] that registers [flate.BestCompression] as its compressor.
func WithBestCompression(options *Options) {
	options.NewZipWriter = func(w io.Writer) *zip.Writer {
		zw := zip.NewWriter(w)
		zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, flate.BestCompression)
		})
		return zw
	}
}

// newOptions copies the format's default options and applies the caller's option functions on top.
func newOptions(f *Format, optFns ...func(*Options)) *Options {
	opts := f.Options
	for _, fn := range optFns {
		fn(&opts)
	}

	return &opts
}

// settle notifies every observer then passes the result and error through unchanged.
func (o *Options) settle(res Result, err error) (Result, error) {
	for _, fn := range o.Observers {
		fn(res, err)
	}

	return res, err
}

// keep reports whether the filter accepts name; a nil filter keeps everything.
func (o *Options) keep(name string) bool {
	return o.Filter == nil || o.Filter(name)
}

func (o *Options) bufferSize() int {
	if o.BufferSize > 0 {
		return o.BufferSize
	}

	return util.DefaultBufferSize
}

func (o *Options) newZipWriter(w io.Writer) *zip.Writer {
	if o.NewZipWriter != nil {
		return o.NewZipWriter(w)
	}

	return zip.NewWriter(w)
}

// progressWriter returns a writer observing the named input's bytes, or nil when progress reporting is off.
func (o *Options) progressWriter(name string, size int64) io.WriteCloser {
	if o.NewProgressWriter == nil {
		return nil
	}

	return o.NewProgressWriter(name, size)
}

// resolvePassphrase recovers the plaintext passphrase for the operation, preferring one given directly over
// decrypting Options.Protection. Returns "" when the operation is not protected.
func (o *Options) resolvePassphrase() (string, error) {
	if o.passphrase != "" {
		return o.passphrase, nil
	}

	if o.Protection != nil {
		return o.Protection.Decrypt()
	}

	return "", nil
}
