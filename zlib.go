package sqz

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// newDeflateFormat builds the DEFLATE format (zlib-wrapped deflate streams, RFC 1950, ".zz").
//
// The signatures cover the four zlib header variants emitted at the standard compression levels with no preset
// dictionary.
func newDeflateFormat() *Format {
	return newStreamFormat("DEFLATE", ".zz", [][]byte{
		{0x78, 0x9c},
		{0x78, 0xda},
		{0x78, 0x5e},
		{0x78, 0x01},
	}, newZlibEncoder, newZlibDecoder)
}

func newZlibEncoder(dst io.Writer, opts *Options) (io.WriteCloser, error) {
	w, err := zlib.NewWriterLevel(dst, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("create zlib writer error: %w", err)
	}

	return w, nil
}

func newZlibDecoder(src io.Reader, opts *Options) (io.ReadCloser, error) {
	r, err := zlib.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("create zlib reader error: %w", err)
	}

	return r, nil
}
