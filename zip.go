package sqz

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nguyengg/sqz/pipe"
	"github.com/nguyengg/sqz/util"
	"github.com/nguyengg/sqz/zarc"
)

// newPKZipFormat builds the PKZIP container format (".zip").
func newPKZipFormat() *Format {
	f := &Format{
		Name:       "PKZIP",
		Signatures: [][]byte{{0x50, 0x4b, 0x03, 0x04}},
		Container:  true,
		Options:    Options{Extension: ".zip", Encoding: "utf-8"},
	}
	f.Compress = op(f, zipCompress)
	f.Decompress = op(f, unzip)

	return f
}

// zipCompress adds the input's files into a new ZIP archive written to the resolved output.
//
// A directory input archives its whole tree under the directory's base name; a file input archives that one file; a
// buffer input becomes a single entry named "data". With no output at all, the archive is created next to the input.
func zipCompress(ctx context.Context, in, out any, opts *Options) (Result, error) {
	if opts.Protection != nil || opts.passphrase != "" {
		return Result{}, errors.New("writing password-protected archives is not supported")
	}

	p, err := pipe.Resolve(in, out)
	if err != nil {
		return Result{}, fmt.Errorf("classify endpoints error: %w", err)
	}

	if bufferBound(p) {
		buf := p.OutputBuffer
		if buf == nil {
			buf = &bytes.Buffer{}
		}

		mark := buf.Len()
		entries, err := writeZip(ctx, buf, p, opts)
		if err != nil {
			return Result{}, err
		}

		return deleteSourceOnSuccess(p, opts, Result{
			Bytes:   buf.Bytes(),
			N:       int64(buf.Len() - mark),
			Entries: entries,
		})
	}

	stem := "data"
	switch p.Left {
	case pipe.File:
		stem, _ = util.StemAndExt(p.InputPath)
	case pipe.Dir:
		stem = filepath.Base(p.InputPath)
	}

	dst, err := createOutputFile(p, stem, opts.Extension)
	if err != nil {
		return Result{}, err
	}

	success := false
	defer func() {
		if !success {
			_ = dst.Close()
			_ = os.Remove(dst.Name())
		}
	}()

	cw := &countingWriter{w: dst}
	entries, err := writeZip(ctx, cw, p, opts)
	if err != nil {
		return Result{}, err
	}
	if err = dst.Close(); err != nil {
		return Result{}, fmt.Errorf("close output file error: %w", err)
	}
	success = true

	return deleteSourceOnSuccess(p, opts, Result{
		Path:    dst.Name(),
		N:       cw.n,
		Entries: entries,
	})
}

// writeZip writes the archive itself, returning the number of entries added.
func writeZip(ctx context.Context, w io.Writer, p pipe.Pipe, opts *Options) (entries int, err error) {
	zw := opts.newZipWriter(w)
	if opts.Comment != "" {
		if err = zw.SetComment(opts.Comment); err != nil {
			return 0, fmt.Errorf("set archive comment error: %w", err)
		}
	}

	buf := make([]byte, opts.bufferSize())

	switch p.Left {
	case pipe.Buffer:
		fh := &zip.FileHeader{Name: "data", Modified: time.Now(), Method: zip.Deflate}
		markNonUTF8(fh, opts)

		f, err := zw.CreateHeader(fh)
		if err != nil {
			return 0, fmt.Errorf(`create zip header for "data" error: %w`, err)
		}
		if _, err = util.CopyBufferWithContext(ctx, f, bytes.NewReader(p.InputBytes), buf); err != nil {
			return 0, fmt.Errorf("add buffer to archive error: %w", err)
		}

		entries = 1

	case pipe.File:
		fi, err := os.Stat(p.InputPath)
		if err != nil {
			return 0, fmt.Errorf(`stat file "%s" error: %w`, p.InputPath, err)
		}

		bar := opts.progressWriter(fi.Name(), fi.Size())
		if bar != nil {
			defer bar.Close()
		}

		if err = addFileToZip(ctx, zw, p.InputPath, fi.Name(), opts, buf, bar); err != nil {
			return 0, err
		}

		entries = 1

	case pipe.Dir:
		base := filepath.Base(p.InputPath)

		size, err := util.DirSize(p.InputPath)
		if err != nil {
			return 0, fmt.Errorf(`measure directory "%s" error: %w`, p.InputPath, err)
		}

		bar := opts.progressWriter(base, size)
		if bar != nil {
			defer bar.Close()
		}

		err = util.WalkRegularFiles(ctx, p.InputPath, func(path string, d fs.DirEntry) error {
			rel, err := filepath.Rel(p.InputPath, path)
			if err != nil {
				return fmt.Errorf("compute relative path error: %w", err)
			}

			if !opts.keep(filepath.ToSlash(rel)) {
				return nil
			}

			if err = addFileToZip(ctx, zw, path, filepath.ToSlash(filepath.Join(base, rel)), opts, buf, bar); err != nil {
				return err
			}

			entries++
			return nil
		})
		if err != nil {
			return 0, err
		}

	default:
		return 0, fmt.Errorf("input %q is not an existing file, directory, or in-memory buffer", p.InputPath)
	}

	if err = zw.Close(); err != nil {
		return 0, fmt.Errorf("close zip writer error: %w", err)
	}

	return entries, nil
}

// addFileToZip writes one local file into the archive under the given slash-separated name.
func addFileToZip(ctx context.Context, zw *zip.Writer, path, name string, opts *Options, buf []byte, bar io.Writer) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf(`open file "%s" error: %w`, path, err)
	}
	defer src.Close()

	fi, err := src.Stat()
	if err != nil {
		return fmt.Errorf(`stat file "%s" error: %w`, path, err)
	}

	fh := fileHeader(fi, name)
	markNonUTF8(fh, opts)

	f, err := zw.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf(`create zip header for "%s" error: %w`, path, err)
	}

	r := io.Reader(src)
	if bar != nil {
		r = io.TeeReader(src, bar)
	}

	if _, err = util.CopyBufferWithContext(ctx, f, r, buf); err != nil {
		return fmt.Errorf(`add file "%s" to archive error: %w`, path, err)
	}

	return nil
}

// fileHeader builds the zip header for one local file, preserving mode bits and modification time.
func fileHeader(fi os.FileInfo, name string) *zip.FileHeader {
	fh := &zip.FileHeader{
		Name:     strings.ReplaceAll(name, "\\", "/"),
		Modified: fi.ModTime(),
		Method:   zip.Deflate,
	}
	fh.SetMode(fi.Mode())
	return fh
}

func markNonUTF8(fh *zip.FileHeader, opts *Options) {
	if opts.Encoding != "" && !strings.EqualFold(opts.Encoding, "utf-8") {
		fh.NonUTF8 = true
	}
}

// unzip opens the input archive, validates it with the safety checks, resolves a passphrase if the options carry one,
// then extracts.
//
// A directory or not-yet-existing output receives the extracted tree. A file or buffer output receives the entry
// contents concatenated in archive order, which recovers the original data exactly for single-entry archives. With
// no output at all, a buffer input decompresses into a new buffer while a file input gets a new directory created
// next to it.
func unzip(ctx context.Context, in, out any, opts *Options) (Result, error) {
	p, err := pipe.Resolve(in, out)
	if err != nil {
		return Result{}, fmt.Errorf("classify endpoints error: %w", err)
	}

	analyzer := zarc.Analyzer{Limits: opts.Limits}

	var (
		src  io.Reader
		name = "data"
	)

	switch p.Left {
	case pipe.Buffer:
		if err = analyzer.Check(p.InputBytes); err != nil {
			return Result{}, err
		}

		src = bytes.NewReader(p.InputBytes)

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

		if err = analyzer.CheckReader(f, fi.Size()); err != nil {
			return Result{}, err
		}
		if _, err = f.Seek(0, io.SeekStart); err != nil {
			return Result{}, fmt.Errorf("rewind input file error: %w", err)
		}

		src, name = f, fi.Name()

	default:
		return Result{}, fmt.Errorf("input %q is not an existing file or in-memory buffer", p.InputPath)
	}

	// the stdlib zip reader cannot decrypt ZipCrypto or AE-x entries, but protection material is still resolved
	// upfront so a corrupted passphrase fails the operation before any output is created.
	if _, err = opts.resolvePassphrase(); err != nil {
		return Result{}, fmt.Errorf("resolve passphrase error: %w", err)
	}

	// both accepted input kinds are seekable, so entries may be reopened after the listing is collected.
	entries, err := zarc.Entries(src)
	if err != nil {
		return Result{}, err
	}

	var (
		all   []zarc.Entry
		total int64
	)
	for e, err := range entries {
		if err != nil {
			return Result{}, err
		}

		all = append(all, e)
		if !e.IsDir() {
			total += int64(e.Header().UncompressedSize)
		}
	}

	bar := opts.progressWriter(name, total)
	if bar != nil {
		defer bar.Close()
	}

	// a file or buffer destination receives entry contents back to back instead of a tree.
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

	// extract archive contents into a directory; if unsuccessful, the directory created here is deleted.
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
