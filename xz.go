package sqz

import (
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// newXzFormat builds the XZ format (".xz").
func newXzFormat() *Format {
	return newStreamFormat("XZ", ".xz", [][]byte{{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}}, newXzEncoder, newXzDecoder)
}

func newXzEncoder(dst io.Writer, opts *Options) (io.WriteCloser, error) {
	w, err := xz.NewWriter(dst)
	if err != nil {
		return nil, fmt.Errorf("create xz writer error: %w", err)
	}

	return w, nil
}

func newXzDecoder(src io.Reader, opts *Options) (io.ReadCloser, error) {
	r, err := xz.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("create xz reader error: %w", err)
	}

	return io.NopCloser(r), nil
}
