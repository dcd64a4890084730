package sqz

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nguyengg/sqz/passlock"
	"github.com/nguyengg/sqz/zarc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pkzip(t *testing.T) *Format {
	t.Helper()

	f, ok := DefaultRegistry().Format("PKZIP")
	require.True(t, ok)
	return f
}

func TestZip_dirRoundTrip(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "project")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), testPayload(512), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), testPayload(2048), 0644))

	modified := time.Date(2023, 3, 14, 15, 9, 26, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(src, "a.txt"), time.Time{}, modified))

	// with no explicit output the archive is created next to the input, named after the directory.
	res, err := pkzip(t).Compress(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "project.zip"), res.Path)
	assert.Equal(t, 2, res.Entries)

	// entries are named under the directory's base name.
	zr, err := zip.OpenReader(res.Path)
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	require.NoError(t, zr.Close())
	assert.ElementsMatch(t, []string{"project/a.txt", "project/sub/b.txt"}, names)

	// extracting into an existing directory creates an exclusive subdirectory named after the archive.
	out := t.TempDir()
	res, err = pkzip(t).Decompress(context.Background(), res.Path, out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "project"), res.Path)
	assert.Equal(t, 2, res.Entries)

	got, err := os.ReadFile(filepath.Join(res.Path, "project", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, testPayload(512), got)

	fi, err := os.Stat(filepath.Join(res.Path, "project", "a.txt"))
	require.NoError(t, err)
	assert.WithinDuration(t, modified, fi.ModTime(), 2*time.Second)
}

func TestZip_unwrapRoot(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "project")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), testPayload(512), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), testPayload(2048), 0644))

	res, err := pkzip(t).Compress(context.Background(), src, nil)
	require.NoError(t, err)

	// every entry shares the "project/" root, so unwrapping drops that leading directory.
	out := t.TempDir()
	res, err = pkzip(t).Decompress(context.Background(), res.Path, out, WithUnwrapRoot)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "project"), res.Path)
	assert.FileExists(t, filepath.Join(res.Path, "a.txt"))
	assert.FileExists(t, filepath.Join(res.Path, "sub", "b.txt"))
	assert.NoDirExists(t, filepath.Join(res.Path, "project"))
}

func TestZip_bufferRoundTrip(t *testing.T) {
	data := testPayload(4 * 1024)

	res, err := pkzip(t).Compress(context.Background(), data, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Entries)
	assert.Equal(t, "PKZIP", DefaultRegistry().FromBuffer(res.Bytes).Name)

	// a buffer input becomes a single entry named "data".
	zr, err := zip.NewReader(bytes.NewReader(res.Bytes), int64(len(res.Bytes)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "data", zr.File[0].Name)

	// signature detection routes the archive back through extraction.
	out, err := Decompress(context.Background(), res.Bytes, nil)
	require.NoError(t, err)
	assert.Equal(t, data, out.Bytes)
	assert.Equal(t, 1, out.Entries)
}

func TestZip_fileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	data := testPayload(1024)
	name := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(name, data, 0644))

	out := t.TempDir()
	res, err := pkzip(t).Compress(context.Background(), name, out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "report.zip"), res.Path)
	assert.Equal(t, 1, res.Entries)

	// an existing file output receives the entry contents, recovering the original exactly.
	back := filepath.Join(dir, "restored.txt")
	require.NoError(t, os.WriteFile(back, nil, 0644))

	res, err = pkzip(t).Decompress(context.Background(), res.Path, back)
	require.NoError(t, err)
	assert.Equal(t, back, res.Path)
	assert.EqualValues(t, len(data), res.N)

	got, err := os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestZip_comment(t *testing.T) {
	res, err := pkzip(t).Compress(context.Background(), testPayload(256), nil, WithComment("nightly backup"))
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(res.Bytes), int64(len(res.Bytes)))
	require.NoError(t, err)
	assert.Equal(t, "nightly backup", zr.Comment)

	// the comment also survives the raw central directory scan.
	rec, _, err := zarc.Scan(bytes.NewReader(res.Bytes), int64(len(res.Bytes)), func(opts *zarc.ScanOptions) {
		opts.KeepComment = true
	})
	require.NoError(t, err)
	assert.Equal(t, "nightly backup", rec.Comment)
}

func TestZip_compressionLevels(t *testing.T) {
	data := testPayload(32 * 1024)

	stored, err := pkzip(t).Compress(context.Background(), data, nil, WithNoCompression)
	require.NoError(t, err)

	best, err := pkzip(t).Compress(context.Background(), data, nil, WithBestCompression)
	require.NoError(t, err)

	assert.Greater(t, stored.N, best.N)
	assert.GreaterOrEqual(t, stored.N, int64(len(data)))

	// both still extract to the original.
	res, err := pkzip(t).Decompress(context.Background(), stored.Bytes, nil)
	require.NoError(t, err)
	assert.Equal(t, data, res.Bytes)

	res, err = pkzip(t).Decompress(context.Background(), best.Bytes, nil)
	require.NoError(t, err)
	assert.Equal(t, data, res.Bytes)
}

func TestZip_safetyLimits(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i := 0; i < zarc.DefaultMaxEntries+1; i++ {
		w, err := zw.Create(fmt.Sprintf("files/%03d.txt", i))
		require.NoError(t, err)
		_, err = w.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	// validation happens before any entry is read.
	_, err := pkzip(t).Decompress(context.Background(), buf.Bytes(), nil)
	assert.ErrorIs(t, err, zarc.ErrTooManyEntries)

	// raising the limits clears the rejection.
	res, err := pkzip(t).Decompress(context.Background(), buf.Bytes(), nil, WithLimits(zarc.Limits{MaxEntries: 200}))
	require.NoError(t, err)
	assert.Equal(t, zarc.DefaultMaxEntries+1, res.Entries)

	_, err = pkzip(t).Decompress(context.Background(), []byte{}, nil)
	assert.ErrorIs(t, err, zarc.ErrEmptyArchive)
}

func TestZip_encryptedEntriesRejected(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("secret.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("sensitive"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	// flip the encryption bit in the central directory's general purpose flags.
	b := buf.Bytes()
	i := bytes.LastIndex(b, []byte{0x50, 0x4b, 0x01, 0x02})
	require.GreaterOrEqual(t, i, 0)
	b[i+8] |= 0x1

	_, err = pkzip(t).Decompress(context.Background(), b, nil)
	assert.ErrorIs(t, err, ErrEncryptedEntry)
}

func TestZip_insecurePathRejected(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../evil.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("outside"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	out := t.TempDir()
	_, err = pkzip(t).Decompress(context.Background(), buf.Bytes(), out)

	var ipe *InsecurePathError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "../evil.txt", ipe.Name)

	// the extraction directory created for the attempt is cleaned up after the failure.
	des, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, des)
}

func TestZip_filterEntries(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "logs")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "keep.txt"), []byte("keep"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "skip.log"), []byte("skip"), 0644))

	res, err := pkzip(t).Compress(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Entries)

	out := t.TempDir()
	res, err = pkzip(t).Decompress(context.Background(), res.Path, out, WithUnwrapRoot, WithFilter(func(name string) bool {
		return strings.HasSuffix(name, ".txt")
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Entries)
	assert.FileExists(t, filepath.Join(res.Path, "keep.txt"))
	assert.NoFileExists(t, filepath.Join(res.Path, "skip.log"))
}

func TestZip_compressRejectsProtection(t *testing.T) {
	_, err := pkzip(t).Compress(context.Background(), []byte("data"), nil, WithPassphrase("hunter2"))
	assert.ErrorContains(t, err, "password-protected")

	p, err := passlock.Encrypt("hunter2", "pepper")
	require.NoError(t, err)

	_, err = pkzip(t).Compress(context.Background(), []byte("data"), nil, WithProtection(p))
	assert.ErrorContains(t, err, "password-protected")
}

func TestZip_decompressResolvesProtection(t *testing.T) {
	data := testPayload(512)
	res, err := pkzip(t).Compress(context.Background(), data, nil)
	require.NoError(t, err)

	// the archive is not encrypted, but protection material must still resolve cleanly before extraction.
	p, err := passlock.Encrypt("hunter2", "pepper")
	require.NoError(t, err)

	out, err := pkzip(t).Decompress(context.Background(), res.Bytes, nil, WithProtection(p))
	require.NoError(t, err)
	assert.Equal(t, data, out.Bytes)
}
