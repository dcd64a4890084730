package sqz

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_FromBuffer(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want string
	}{
		{name: "gzip", buf: []byte{0x1f, 0x8b, 0x08, 0x00}, want: "GZIP"},
		{name: "zip", buf: []byte{0x50, 0x4b, 0x03, 0x04, 0x14, 0x00}, want: "PKZIP"},
		{name: "zlib default level", buf: []byte{0x78, 0x9c, 0x01}, want: "DEFLATE"},
		{name: "zlib best compression", buf: []byte{0x78, 0xda, 0x01}, want: "DEFLATE"},
		{name: "zstd", buf: []byte{0x28, 0xb5, 0x2f, 0xfd, 0x24}, want: "ZSTD"},
		{name: "xz", buf: []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00, 0x00}, want: "XZ"},
		{name: "7z", buf: []byte{0x37, 0x7a, 0xbc, 0xaf, 0x27, 0x1c, 0x00}, want: "SEVENZIP"},
		{name: "brotli", buf: []byte{0xeb, 0xaf, 0x28, 0xcf, 0x00}, want: "BROTLI"},
		{name: "garbage", buf: []byte("not compressed at all"), want: UnsupportedName},
		{name: "one byte is never enough", buf: []byte{0x1f}, want: UnsupportedName},
		{name: "empty", buf: nil, want: UnsupportedName},
	}

	r := DefaultRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.FromBuffer(tt.buf).Name)
		})
	}
}

func TestRegistry_AddFormat(t *testing.T) {
	r := NewRegistry()

	// an empty registry falls back to the failing sentinel.
	assert.Same(t, r.Unsupported(), r.Default())

	lzip := &Format{Name: "lzip", Signatures: [][]byte{{0x4c, 0x5a, 0x49, 0x50}}}
	require.NoError(t, r.AddFormat(lzip))

	// names are normalized to upper case and the first format added becomes the default.
	assert.Equal(t, "LZIP", lzip.Name)
	assert.Same(t, lzip, r.Default())

	f, ok := r.Format("Lzip")
	assert.True(t, ok)
	assert.Same(t, lzip, f)

	// re-registering the same name must not overwrite the original.
	assert.Error(t, r.AddFormat(&Format{Name: "LZIP"}))
	f, _ = r.Format("LZIP")
	assert.Same(t, lzip, f)

	assert.Error(t, r.AddFormat(nil))
	assert.Error(t, r.AddFormat(&Format{Name: "   "}))
	assert.Error(t, r.AddFormat(&Format{Name: "default"}))
	assert.Error(t, r.AddFormat(&Format{Name: "Unsupported"}))
}

func TestRegistry_AddFormat_stubOperations(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddFormat(&Format{Name: "RAR"}))

	// a format registered without operations gets stubs that fail instead of panicking.
	f, ok := r.Format("RAR")
	require.True(t, ok)

	_, err := f.Compress(context.Background(), []byte("x"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.ErrorContains(t, err, "RAR does not support compression")

	_, err = f.Decompress(context.Background(), []byte("x"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.ErrorContains(t, err, "RAR does not support decompression")
}

func TestRegistry_SetDefault(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddFormat(&Format{Name: "A"}))
	require.NoError(t, r.AddFormat(&Format{Name: "B"}))

	a, _ := r.Format("A")
	b, _ := r.Format("B")

	assert.Error(t, r.SetDefault("C"))
	assert.Same(t, a, r.Default())

	require.NoError(t, r.SetDefault("b"))
	assert.Same(t, b, r.Default())

	f, ok := r.Format(DefaultName)
	assert.True(t, ok)
	assert.Same(t, b, f)
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Same(t, r, DefaultRegistry())

	assert.Equal(t, "GZIP", r.Default().Name)

	f, ok := r.Format(DefaultName)
	require.True(t, ok)
	assert.Same(t, r.Default(), f)

	f, ok = r.Format(UnsupportedName)
	require.True(t, ok)
	assert.Same(t, r.Unsupported(), f)
}

func TestRegistry_Formats(t *testing.T) {
	r := DefaultRegistry()

	var names []string
	for _, f := range r.Formats() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"GZIP", "PKZIP", "DEFLATE", "BROTLI", "ZSTD", "XZ", "SEVENZIP"}, names)

	names = names[:0]
	for _, f := range r.Formats(func(f *Format) bool { return f.Container }) {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"PKZIP", "SEVENZIP"}, names)

	assert.Empty(t, r.Formats(func(f *Format) bool { return false }))
}

func TestRegistry_FromExt(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct{ v, want string }{
		{".gz", "GZIP"},
		{".ZST", "ZSTD"},
		{"reports/2024.csv.xz", "XZ"},
		{"archive.zip", "PKZIP"},
		{"backup.7z", "SEVENZIP"},
		{"notes.br", "BROTLI"},
		{"stream.zz", "DEFLATE"},
	}
	for _, tt := range tests {
		f, ok := r.FromExt(tt.v)
		require.Truef(t, ok, "FromExt(%q)", tt.v)
		assert.Equal(t, tt.want, f.Name)
	}

	_, ok := r.FromExt(".rar")
	assert.False(t, ok)
	_, ok = r.FromExt("")
	assert.False(t, ok)
}

func TestRegistry_Resolve(t *testing.T) {
	r := DefaultRegistry()

	assert.Same(t, r.Default(), r.Resolve(nil))
	assert.Same(t, r.Default(), r.Resolve((*Format)(nil)))
	assert.Same(t, r.Default(), r.Resolve(42))
	assert.Same(t, r.Default(), r.Resolve("no-such-format"))

	zst, _ := r.Format("ZSTD")
	assert.Same(t, zst, r.Resolve(zst))
	assert.Same(t, zst, r.Resolve("zstd"))
	assert.Same(t, zst, r.Resolve("backup.tar.zst"))

	pkzip, _ := r.Format("PKZIP")
	assert.Same(t, pkzip, r.Resolve([]byte{0x50, 0x4b, 0x03, 0x04}))
	assert.Same(t, pkzip, r.Resolve(bytes.NewBuffer([]byte{0x50, 0x4b, 0x03, 0x04})))

	assert.Same(t, r.Unsupported(), r.Resolve([]byte("garbage data")))
}

func TestRegistry_FromFile(t *testing.T) {
	r := DefaultRegistry()
	dir := t.TempDir()

	name := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(name, []byte{0x28, 0xb5, 0x2f, 0xfd, 0x00, 0x00}, 0666))

	f, err := r.FromFile(name)
	require.NoError(t, err)
	assert.Equal(t, "ZSTD", f.Name)

	// a file shorter than every signature still resolves, to the sentinel.
	short := filepath.Join(dir, "short.bin")
	require.NoError(t, os.WriteFile(short, []byte{0x1f}, 0666))

	f, err = r.FromFile(short)
	require.NoError(t, err)
	assert.Same(t, r.Unsupported(), f)

	f, err = r.FromFile(filepath.Join(dir, "missing.bin"))
	assert.Error(t, err)
	assert.Same(t, r.Unsupported(), f)
}

func TestFormat_Matches(t *testing.T) {
	xz, _ := DefaultRegistry().Format("XZ")

	assert.True(t, xz.Matches([]byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00, 0x00, 0x01}))
	assert.False(t, xz.Matches([]byte{0xfd, 0x37, 0x7a}))
	assert.False(t, xz.Matches([]byte{0xfd}))
	assert.False(t, xz.Matches(nil))

	deflate, _ := DefaultRegistry().Format("DEFLATE")
	for _, lead := range [][]byte{{0x78, 0x9c}, {0x78, 0xda}, {0x78, 0x5e}, {0x78, 0x01}} {
		assert.Truef(t, deflate.Matches(append(lead, 0xec)), "leading bytes %x", lead)
	}
	assert.False(t, deflate.Matches([]byte{0x78, 0xff}))
}

func TestRegistry_unsupportedSentinel(t *testing.T) {
	r := DefaultRegistry()
	f := r.Unsupported()

	_, err := f.Compress(context.Background(), []byte("x"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = f.Decompress(context.Background(), []byte("x"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSevenZip_compressUnsupported(t *testing.T) {
	f, ok := DefaultRegistry().Format("SEVENZIP")
	require.True(t, ok)

	_, err := f.Compress(context.Background(), []byte("x"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
