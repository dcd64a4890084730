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
	"slices"
	"time"

	"github.com/nguyengg/sqz/internal"
	"github.com/nguyengg/sqz/pipe"
	"github.com/nguyengg/sqz/util"
	"github.com/nguyengg/sqz/zarc"
)

// Decompress detects the format of in by signature sniffing and decompresses it to out.
//
// A directory input is walked instead: every regular file underneath is sniffed individually and decompressed into a
// mirrored tree under out, so a directory holding a mix of formats decompresses in one call. Files matching no
// registered signature are skipped. Observers fire once for the whole walk.
func (r *Registry) Decompress(ctx context.Context, in, out any, optFns ...func(*Options)) (Result, error) {
	switch v := in.(type) {
	case []byte:
		return r.FromBuffer(v).Decompress(ctx, in, out, optFns...)
	case *bytes.Buffer:
		var buf []byte
		if v != nil {
			buf = v.Bytes()
		}

		return r.FromBuffer(buf).Decompress(ctx, in, out, optFns...)
	case string:
		fi, err := os.Stat(v)
		if err != nil {
			return Result{}, fmt.Errorf("describe input error: %w", err)
		}
		if fi.IsDir() {
			return r.decompressDir(ctx, v, out, optFns...)
		}

		f, err := r.FromFile(v)
		if err != nil {
			return Result{}, err
		}

		return f.Decompress(ctx, in, out, optFns...)
	default:
		return r.Default().Decompress(ctx, in, out, optFns...)
	}
}

// decompressDir sniffs and decompresses every regular file under dir into a mirrored tree under out.
func (r *Registry) decompressDir(ctx context.Context, dir string, out any, optFns ...func(*Options)) (Result, error) {
	opts := newOptions(&Format{}, optFns...)

	outDir, ok := out.(string)
	if !ok || outDir == "" {
		return opts.settle(Result{}, errors.New("directory input requires a directory output"))
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return opts.settle(Result{}, fmt.Errorf("create output directory error: %w", err))
	}

	// the walk notifies observers and deletes the source tree itself, once, not once per file.
	perFile := append(slices.Clone(optFns), func(o *Options) {
		o.DeleteSource = false
		o.Observers = nil
	})

	abs, err := filepath.Abs(outDir)
	if err != nil {
		return opts.settle(Result{}, fmt.Errorf("resolve absolute path error: %w", err))
	}

	res := Result{Path: abs}

	err = util.WalkRegularFiles(ctx, dir, func(path string, d fs.DirEntry) error {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return fmt.Errorf("compute relative path error: %w", err)
		}

		if !opts.keep(filepath.ToSlash(rel)) {
			return nil
		}

		f, err := r.FromFile(path)
		if err != nil {
			return err
		}
		if f == r.unsupported {
			return nil
		}

		dst := filepath.Join(outDir, stripExt(rel, f.Options.Extension))
		if err = os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("create output directory error: %w", err)
		}

		fr, err := f.Decompress(ctx, path, dst, perFile...)
		if err != nil {
			return err
		}

		res.N += fr.N
		res.Entries += fr.Entries
		return nil
	})
	if err != nil {
		return opts.settle(Result{}, err)
	}

	if opts.DeleteSource {
		if err = os.RemoveAll(dir); err != nil {
			return opts.settle(res, fmt.Errorf("delete source error: %w", err))
		}
	}

	return opts.settle(res, nil)
}

// decompressStream returns the implementation of Decompress for single-stream codecs.
//
// A directory input mirrors the tree under a directory output, decompressing the files whose leading bytes match the
// format's signatures and skipping the rest.
func decompressStream(f *Format, dec decoderFunc) opImpl {
	var impl opImpl
	impl = func(ctx context.Context, in, out any, opts *Options) (Result, error) {
		p, err := pipe.Resolve(in, out)
		if err != nil {
			return Result{}, fmt.Errorf("classify endpoints error: %w", err)
		}

		if p.Left == pipe.Dir {
			return transformDir(ctx, p, opts, impl, func(rel string) string {
				return stripExt(rel, opts.Extension)
			}, f.Matches)
		}

		return decodeStream(ctx, p, opts, dec)
	}

	return impl
}

// decodeStream decompresses one source stream into one destination.
func decodeStream(ctx context.Context, p pipe.Pipe, opts *Options, dec decoderFunc) (Result, error) {
	src, name, size, err := openSource(p)
	if err != nil {
		return Result{}, err
	}
	defer src.Close()

	// progress is measured on the compressed side because only its size is known upfront.
	var tee io.Reader = src
	if bar := opts.progressWriter(name, size); bar != nil {
		defer bar.Close()
		tee = io.TeeReader(src, bar)
	}

	rc, err := dec(tee, opts)
	if err != nil {
		return Result{}, err
	}
	defer rc.Close()

	if bufferBound(p) {
		buf := p.OutputBuffer
		if buf == nil {
			buf = &bytes.Buffer{}
		}

		mark := buf.Len()
		if _, err = util.CopyBufferWithContext(ctx, buf, rc, make([]byte, opts.bufferSize())); err != nil {
			return Result{}, fmt.Errorf("decompress error: %w", err)
		}

		return deleteSourceOnSuccess(p, opts, Result{
			Bytes:   buf.Bytes(),
			N:       int64(buf.Len() - mark),
			Entries: 1,
		})
	}

	// the format extension comes off the full base name: "data.gz" recovers "data", "report.txt.gz" recovers
	// "report.txt".
	stem, ext := util.StemAndExt(stripExt(name, opts.Extension))
	dst, err := createOutputFile(p, stem, ext)
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

	n, err := util.CopyBufferWithContext(ctx, dst, rc, make([]byte, opts.bufferSize()))
	if err != nil {
		return Result{}, fmt.Errorf("decompress error: %w", err)
	}
	if err = dst.Close(); err != nil {
		return Result{}, fmt.Errorf("close output file error: %w", err)
	}
	success = true

	return deleteSourceOnSuccess(p, opts, Result{
		Path:    dst.Name(),
		N:       n,
		Entries: 1,
	})
}

// createExtractionDir resolves and creates the directory that receives a container's extracted entries.
//
// An existing directory output gets a new exclusive subdirectory named after stem; a not-yet-existing output path is
// created as given; with no output at all the exclusive subdirectory is created next to the input.
func createExtractionDir(p pipe.Pipe, stem string) (string, error) {
	switch {
	case p.Right == pipe.Dir:
		target, err := util.MkExclDir(p.OutputPath, stem, 0755)
		if err != nil {
			return "", fmt.Errorf("create output directory error: %w", err)
		}

		return target, nil

	case p.OutputPath == "":
		parent := "."
		if p.InputPath != "" {
			parent = filepath.Dir(p.InputPath)
		}

		target, err := util.MkExclDir(parent, stem, 0755)
		if err != nil {
			return "", fmt.Errorf("create output directory error: %w", err)
		}

		return target, nil

	default:
		if err := os.MkdirAll(p.OutputPath, 0755); err != nil {
			return "", fmt.Errorf("create output directory error: %w", err)
		}

		return p.OutputPath, nil
	}
}

// extractTree writes every kept entry beneath target, recreating directories, file modes, and modification times.
//
// The entries must come from a random-access adapter since they are opened again after the listing was collected.
// Every entry path is checked against directory escapes before any byte is written.
func extractTree(ctx context.Context, target string, all []zarc.Entry, opts *Options, bar io.Writer) (Result, error) {
	var root internal.RootDir
	if opts.UnwrapRoot {
		names := make([]string, len(all))
		for i, e := range all {
			names[i] = e.Name()
		}

		root = internal.FindRootDir(names)
	}

	buf := make([]byte, opts.bufferSize())
	res := Result{Path: target}

	for _, e := range all {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		name := e.Name()
		if !opts.keep(name) {
			continue
		}

		if e.Header().Flags&0x1 != 0 {
			return Result{}, fmt.Errorf(`read entry "%s" error: %w`, name, ErrEncryptedEntry)
		}

		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return Result{}, &InsecurePathError{Name: name}
		}

		path := root.Join(target, name)

		if e.IsDir() {
			if err := os.MkdirAll(path, 0755); err != nil {
				return Result{}, fmt.Errorf(`create directory "%s" error: %w`, path, err)
			}

			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return Result{}, fmt.Errorf(`create path to file "%s" error: %w`, path, err)
		}

		perm := e.Mode().Perm()
		if perm == 0 {
			perm = 0666
		}

		w, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err != nil {
			return Result{}, fmt.Errorf(`create file "%s" error: %w`, path, err)
		}

		rc, err := e.Open()
		if err != nil {
			_ = w.Close()
			return Result{}, fmt.Errorf(`open entry "%s" error: %w`, name, err)
		}

		r := io.Reader(rc)
		if bar != nil {
			r = io.TeeReader(rc, bar)
		}

		n, err := util.CopyBufferWithContext(ctx, w, r, buf)
		_, _ = w.Close(), rc.Close()
		if err != nil {
			return Result{}, fmt.Errorf(`write to file "%s" error: %w`, path, err)
		}

		if m := e.Header().Modified; !m.IsZero() {
			if err = os.Chtimes(path, time.Time{}, m); err != nil {
				return Result{}, fmt.Errorf(`change mod time of "%s" error: %w`, path, err)
			}
		}

		res.N += n
		res.Entries++
	}

	return res, nil
}

// extractConcat writes the contents of every kept regular entry into w, in archive order.
func extractConcat(ctx context.Context, w io.Writer, all []zarc.Entry, opts *Options, bar io.Writer) (n int64, entries int, err error) {
	buf := make([]byte, opts.bufferSize())

	for _, e := range all {
		if e.IsDir() || !opts.keep(e.Name()) {
			continue
		}

		if e.Header().Flags&0x1 != 0 {
			return n, entries, fmt.Errorf(`read entry "%s" error: %w`, e.Name(), ErrEncryptedEntry)
		}

		rc, err := e.Open()
		if err != nil {
			return n, entries, fmt.Errorf(`open entry "%s" error: %w`, e.Name(), err)
		}

		r := io.Reader(rc)
		if bar != nil {
			r = io.TeeReader(rc, bar)
		}

		m, err := util.CopyBufferWithContext(ctx, w, r, buf)
		_ = rc.Close()
		if err != nil {
			return n, entries, fmt.Errorf(`read entry "%s" error: %w`, e.Name(), err)
		}

		n += m
		entries++
	}

	return n, entries, nil
}
