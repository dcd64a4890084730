package sqz

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nguyengg/sqz/pipe"
	"github.com/nguyengg/sqz/util"
	"github.com/nguyengg/sqz/zarc"
)

// newSevenZipFormat builds the 7-Zip container format (".7z").
//
// Only decompression is implemented; compressing to 7z is not supported.
func newSevenZipFormat() *Format {
	f := &Format{
		Name:       "SEVENZIP",
		Signatures: [][]byte{{0x37, 0x7a, 0xbc, 0xaf, 0x27, 0x1c}},
		Container:  true,
		Options:    Options{Extension: ".7z"},
	}
	f.Decompress = op(f, sevenZipDecompress)

	return f
}

// sevenZipDecompress opens the input as a 7z archive, validates its entry listing against the safety limits, then
// extracts the same way unzip does.
func sevenZipDecompress(ctx context.Context, in, out any, opts *Options) (Result, error) {
	p, err := pipe.Resolve(in, out)
	if err != nil {
		return Result{}, fmt.Errorf("classify endpoints error: %w", err)
	}

	var (
		src  io.ReaderAt
		size int64
		name = "data"
	)

	switch p.Left {
	case pipe.Buffer:
		r := bytes.NewReader(p.InputBytes)
		src, size = r, r.Size()

	case pipe.File:
		f, err := os.Open(p.InputPath)
		if err != nil {
			return Result{}, fmt.Errorf("open input file error: %w", err)
		}
		defer f.Close()

		fi, err := f.Stat()
		if err != nil {
			return Result{}, fmt.Errorf("describe input file error: %w", err)
		}

		src, size, name = f, fi.Size(), fi.Name()

	default:
		return Result{}, fmt.Errorf("input %q is not an existing file or in-memory buffer", p.InputPath)
	}

	// 7z archives may encrypt entry data and even the header itself, so the passphrase must be ready before the
	// archive is opened.
	passphrase, err := opts.resolvePassphrase()
	if err != nil {
		return Result{}, fmt.Errorf("resolve passphrase error: %w", err)
	}

	var zr *sevenzip.Reader
	if passphrase == "" {
		zr, err = sevenzip.NewReader(src, size)
	} else {
		zr, err = sevenzip.NewReaderWithPassword(src, size, passphrase)
	}
	if err != nil {
		return Result{}, fmt.Errorf("open 7z reader error: %w", err)
	}

	var (
		all   = make([]zarc.Entry, 0, len(zr.File))
		total int64
	)
	for _, f := range zr.File {
		all = append(all, &sevenZipEntry{f: f})
		if fi := f.FileInfo(); !fi.IsDir() {
			total += fi.Size()
		}
	}

	// the listing comes from archive metadata alone, nothing has been decompressed yet.
	if err = opts.Limits.Violation(len(zr.File), total); err != nil {
		return Result{}, err
	}

	bar := opts.progressWriter(name, total)
	if bar != nil {
		defer bar.Close()
	}

	if bufferBound(p) {
		buf := p.OutputBuffer
		if buf == nil {
			buf = &bytes.Buffer{}
		}

		n, count, err := extractConcat(ctx, buf, all, opts, bar)
		if err != nil {
			return Result{}, err
		}

		return deleteSourceOnSuccess(p, opts, Result{
			Bytes:   buf.Bytes(),
			N:       n,
			Entries: count,
		})
	}

	if p.Right == pipe.File {
		dst, err := os.Create(p.OutputPath)
		if err != nil {
			return Result{}, fmt.Errorf("create output file error: %w", err)
		}

		success := false
		defer func() {
			if !success {
				_ = dst.Close()
				_ = os.Remove(dst.Name())
			}
		}()

		n, count, err := extractConcat(ctx, dst, all, opts, bar)
		if err != nil {
			return Result{}, err
		}
		if err = dst.Close(); err != nil {
			return Result{}, fmt.Errorf("close output file error: %w", err)
		}
		success = true

		return deleteSourceOnSuccess(p, opts, Result{
			Path:    p.OutputPath,
			N:       n,
			Entries: count,
		})
	}

	stem, _ := util.StemAndExt(name)

	target, err := createExtractionDir(p, stem)
	if err != nil {
		return Result{}, err
	}

	success := false
	defer func() {
		if !success {
			_ = os.RemoveAll(target)
		}
	}()

	res, err := extractTree(ctx, target, all, opts, bar)
	if err != nil {
		return Result{}, err
	}
	success = true

	return deleteSourceOnSuccess(p, opts, res)
}

// sevenZipEntry adapts a *sevenzip.File to the entry view the shared extraction helpers expect.
type sevenZipEntry struct {
	f *sevenzip.File
}

var _ zarc.Entry = &sevenZipEntry{}

func (e *sevenZipEntry) Name() string {
	return strings.ReplaceAll(e.f.Name, "\\", "/")
}

func (e *sevenZipEntry) Header() zarc.FileHeader {
	fh := zarc.FileHeader{
		Modified: e.f.Modified,
		CRC32:    e.f.CRC32,
		Name:     e.Name(),
	}

	if fi := e.f.FileInfo(); !fi.IsDir() {
		fh.UncompressedSize = uint32(min(fi.Size(), 0xffffffff))
	}

	return fh
}

func (e *sevenZipEntry) IsDir() bool {
	return e.f.FileInfo().IsDir()
}

func (e *sevenZipEntry) Mode() os.FileMode {
	return e.f.Mode()
}

func (e *sevenZipEntry) Comment() string {
	return ""
}

func (e *sevenZipEntry) Extra() []byte {
	return nil
}

func (e *sevenZipEntry) Open() (io.ReadCloser, error) {
	return e.f.Open()
}

func (e *sevenZipEntry) OpenRaw() (io.Reader, error) {
	return nil, zarc.ErrRawUnsupported
}
