package sqz

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nguyengg/sqz/pipe"
	"github.com/nguyengg/sqz/util"
)

// Compress compresses in to out with the format resolved from the output path's file name extension, falling back to
// the registry's default format.
func (r *Registry) Compress(ctx context.Context, in, out any, optFns ...func(*Options)) (Result, error) {
	f := r.Default()
	if path, ok := out.(string); ok {
		if g, ok := r.FromExt(path); ok {
			f = g
		}
	}

	return f.Compress(ctx, in, out, optFns...)
}

// compressStream returns the implementation of Compress for single-stream codecs.
//
// A directory input mirrors the tree under a directory output, compressing one file at a time; anything else is a
// single source stream encoded into a single destination.
func compressStream(f *Format, enc encoderFunc) opImpl {
	var impl opImpl
	impl = func(ctx context.Context, in, out any, opts *Options) (Result, error) {
		p, err := pipe.Resolve(in, out)
		if err != nil {
			return Result{}, fmt.Errorf("classify endpoints error: %w", err)
		}

		if p.Left == pipe.Dir {
			return transformDir(ctx, p, opts, impl, func(rel string) string {
				return rel + opts.Extension
			}, nil)
		}

		return encodeStream(ctx, p, opts, enc)
	}

	return impl
}

// encodeStream compresses one source stream into one destination.
func encodeStream(ctx context.Context, p pipe.Pipe, opts *Options, enc encoderFunc) (Result, error) {
	src, name, size, err := openSource(p)
	if err != nil {
		return Result{}, err
	}
	defer src.Close()

	var tee io.Reader = src
	if bar := opts.progressWriter(name, size); bar != nil {
		defer bar.Close()
		tee = io.TeeReader(src, bar)
	}

	if bufferBound(p) {
		buf := p.OutputBuffer
		if buf == nil {
			buf = &bytes.Buffer{}
		}

		mark := buf.Len()
		w, err := enc(buf, opts)
		if err != nil {
			return Result{}, fmt.Errorf("create encoder error: %w", err)
		}

		if _, err = util.CopyBufferWithContext(ctx, w, tee, make([]byte, opts.bufferSize())); err != nil {
			return Result{}, fmt.Errorf("compress error: %w", err)
		}
		if err = w.Close(); err != nil {
			return Result{}, fmt.Errorf("close encoder error: %w", err)
		}

		return deleteSourceOnSuccess(p, opts, Result{
			Bytes:   buf.Bytes(),
			N:       int64(buf.Len() - mark),
			Entries: 1,
		})
	}

	stem, ext := util.StemAndExt(name)
	dst, err := createOutputFile(p, stem, ext+opts.Extension)
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
	w, err := enc(cw, opts)
	if err != nil {
		return Result{}, fmt.Errorf("create encoder error: %w", err)
	}

	if _, err = util.CopyBufferWithContext(ctx, w, tee, make([]byte, opts.bufferSize())); err != nil {
		return Result{}, fmt.Errorf("compress error: %w", err)
	}
	if err = w.Close(); err != nil {
		return Result{}, fmt.Errorf("close encoder error: %w", err)
	}
	if err = dst.Close(); err != nil {
		return Result{}, fmt.Errorf("close output file error: %w", err)
	}
	success = true

	return deleteSourceOnSuccess(p, opts, Result{
		Path:    dst.Name(),
		N:       cw.n,
		Entries: 1,
	})
}

// bufferBound reports whether the operation's output stays in memory: either the caller passed a buffer, or they
// passed nothing at all while the input itself is a buffer.
func bufferBound(p pipe.Pipe) bool {
	if p.Right == pipe.Buffer {
		return true
	}

	return p.Right == pipe.Unknown && p.OutputPath == "" && p.Left == pipe.Buffer
}

// openSource opens the operation's input for reading, returning a display name and the input size in bytes.
func openSource(p pipe.Pipe) (src io.ReadCloser, name string, size int64, err error) {
	switch p.Left {
	case pipe.Buffer:
		return io.NopCloser(bytes.NewReader(p.InputBytes)), "data", int64(len(p.InputBytes)), nil
	case pipe.File:
		f, err := os.Open(p.InputPath)
		if err != nil {
			return nil, "", 0, fmt.Errorf("open input file error: %w", err)
		}

		fi, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, "", 0, fmt.Errorf("describe input file error: %w", err)
		}

		return f, fi.Name(), fi.Size(), nil
	default:
		return nil, "", 0, fmt.Errorf("input %q is not an existing file, directory, or in-memory buffer", p.InputPath)
	}
}

// createOutputFile creates the file a single-stream operation writes to.
//
// A directory output gets a new file named stem+ext inside it, never overwriting an existing name. An explicit file
// path is created or truncated exactly as given. With no output at all, the file is created next to the input.
func createOutputFile(p pipe.Pipe, stem, ext string) (*os.File, error) {
	switch p.Right {
	case pipe.Dir:
		return util.OpenExclFile(p.OutputPath, stem, ext, 0666)
	case pipe.File:
		f, err := os.Create(p.OutputPath)
		if err != nil {
			return nil, fmt.Errorf("create output file error: %w", err)
		}

		return f, nil
	default:
		if p.OutputPath == "" {
			parent := "."
			if p.InputPath != "" {
				parent = filepath.Dir(p.InputPath)
			}

			return util.OpenExclFile(parent, stem, ext, 0666)
		}

		if err := os.MkdirAll(filepath.Dir(p.OutputPath), 0755); err != nil {
			return nil, fmt.Errorf("create output directory error: %w", err)
		}

		f, err := os.Create(p.OutputPath)
		if err != nil {
			return nil, fmt.Errorf("create output file error: %w", err)
		}

		return f, nil
	}
}

// transformDir mirrors the tree rooted at p.InputPath under p.OutputPath, transforming one regular file at a time.
//
// rename maps a file's relative path to its destination relative path. match, when non-nil, vetoes files whose
// leading bytes it rejects. Each per-file call runs with source deletion and observers disabled; when requested, the
// whole source tree is deleted once at the end instead, and observers fire once for the whole walk.
func transformDir(ctx context.Context, p pipe.Pipe, opts *Options, each opImpl, rename func(rel string) string, match func([]byte) bool) (Result, error) {
	switch p.Right {
	case pipe.Dir:
	case pipe.Unknown:
		if p.OutputPath == "" {
			return Result{}, errors.New("directory input requires a directory output")
		}
		if err := os.MkdirAll(p.OutputPath, 0755); err != nil {
			return Result{}, fmt.Errorf("create output directory error: %w", err)
		}
	default:
		return Result{}, errors.New("directory input requires a directory output")
	}

	sub := *opts
	sub.DeleteSource = false
	sub.Observers = nil

	res := Result{Path: p.OutputPath}

	err := util.WalkRegularFiles(ctx, p.InputPath, func(path string, d fs.DirEntry) error {
		rel, err := filepath.Rel(p.InputPath, path)
		if err != nil {
			return fmt.Errorf("compute relative path error: %w", err)
		}

		if !opts.keep(filepath.ToSlash(rel)) {
			return nil
		}

		if match != nil {
			switch ok, err := matchesFile(path, match); {
			case err != nil:
				return err
			case !ok:
				return nil
			}
		}

		dst := filepath.Join(p.OutputPath, rename(rel))
		if err = os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("create output directory error: %w", err)
		}

		fr, err := each(ctx, path, dst, &sub)
		if err != nil {
			return err
		}

		res.N += fr.N
		res.Entries += fr.Entries
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	return deleteSourceOnSuccess(p, opts, res)
}

// matchesFile reads up to 64 leading bytes of the named file and reports whether match accepts them.
func matchesFile(name string, match func([]byte) bool) (bool, error) {
	f, err := os.Open(name)
	if err != nil {
		return false, fmt.Errorf("open input file error: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 64)
	switch n, err := io.ReadFull(f, buf); {
	case err == nil, errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return match(buf[:n]), nil
	default:
		return false, fmt.Errorf("read file signature error: %w", err)
	}
}

// stripExt returns name with ext removed from its end, ignoring case; name is returned unchanged when it does not
// end with ext.
func stripExt(name, ext string) string {
	if ext != "" && len(name) > len(ext) && strings.EqualFold(name[len(name)-len(ext):], ext) {
		return name[:len(name)-len(ext)]
	}

	return name
}

// deleteSourceOnSuccess removes the operation's source if the options ask for it.
//
// Must only be called once the output has been fully written and verified; a failed delete surfaces as the
// operation's error while the Result remains valid.
func deleteSourceOnSuccess(p pipe.Pipe, opts *Options, res Result) (Result, error) {
	if !opts.DeleteSource || p.InputPath == "" {
		return res, nil
	}

	var err error
	if p.Left == pipe.Dir {
		err = os.RemoveAll(p.InputPath)
	} else {
		err = os.Remove(p.InputPath)
	}
	if err != nil {
		return res, fmt.Errorf("delete source error: %w", err)
	}

	return res, nil
}

// countingWriter tracks how many bytes pass through to w.
type countingWriter struct {
	w io.Writer
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.n += int64(n)
	return n, err
}
