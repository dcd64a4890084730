package sqz

import (
	"io"

	"github.com/andybalholm/brotli"
)

// newBrotliFormat builds the BROTLI format (".br").
//
// Brotli has no registered magic number; the signatures are the prefixes detection has historically accepted for .br
// outputs. Brotli data from other producers usually needs resolving the format by name or extension instead.
func newBrotliFormat() *Format {
	return newStreamFormat("BROTLI", ".br", [][]byte{
		{0xeb, 0xaf, 0x28, 0xcf},
		{0x1f, 0x9d},
	}, newBrotliEncoder, newBrotliDecoder)
}

func newBrotliEncoder(dst io.Writer, opts *Options) (io.WriteCloser, error) {
	return brotli.NewWriterLevel(dst, brotli.BestCompression), nil
}

func newBrotliDecoder(src io.Reader, opts *Options) (io.ReadCloser, error) {
	return io.NopCloser(brotli.NewReader(src)), nil
}
