package sqz

import (
	"compress/gzip"
	"fmt"
	"io"
)

// newGzipFormat builds the GZIP format (RFC 1952, ".gz").
func newGzipFormat() *Format {
	return newStreamFormat("GZIP", ".gz", [][]byte{{0x1f, 0x8b}}, newGzipEncoder, newGzipDecoder)
}

func newGzipEncoder(dst io.Writer, opts *Options) (io.WriteCloser, error) {
	w, err := gzip.NewWriterLevel(dst, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer error: %w", err)
	}

	return w, nil
}

func newGzipDecoder(src io.Reader, opts *Options) (r io.ReadCloser, err error) {
	if r, err = gzip.NewReader(src); err != nil {
		return nil, fmt.Errorf("create gzip reader error: %w", err)
	}
	return
}
