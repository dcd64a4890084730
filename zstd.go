package sqz

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// newZstdFormat builds the ZSTD format (".zst").
func newZstdFormat() *Format {
	return newStreamFormat("ZSTD", ".zst", [][]byte{{0x28, 0xb5, 0x2f, 0xfd}}, newZstdEncoder, newZstdDecoder)
}

func newZstdEncoder(dst io.Writer, opts *Options) (io.WriteCloser, error) {
	zopts := []zstd.EOption{zstd.WithEncoderLevel(zstd.SpeedBestCompression)}
	if opts.MaxConcurrency > 0 {
		zopts = append(zopts, zstd.WithEncoderConcurrency(opts.MaxConcurrency))
	}

	w, err := zstd.NewWriter(dst, zopts...)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer error: %w", err)
	}

	return w, nil
}

func newZstdDecoder(src io.Reader, opts *Options) (io.ReadCloser, error) {
	r, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader error: %w", err)
	}

	return &zstdDecoder{Decoder: r}, nil
}

type zstdDecoder struct {
	*zstd.Decoder
}

// Close adapts zstd.Decoder.Close which doesn't return error.
func (z *zstdDecoder) Close() error {
	z.Decoder.Close()
	return nil
}
