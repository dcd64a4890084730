// Package sqz compresses and decompresses files, directories, and in-memory buffers behind a format-agnostic API.
//
// A Format bundles a name, the magic-byte signatures used for detection, and the compress/decompress operations of
// one codec or archive container. Formats live in a Registry owned by the caller; DefaultRegistry returns a shared
// one with the built-in formats (GZIP, PKZIP, DEFLATE, BROTLI, ZSTD, XZ, SEVENZIP) for the package-level convenience
// functions.
//
// Every operation classifies its input and output endpoints (file, directory, or buffer) to pick a transfer strategy.
// Archive buffers are validated by the zarc safety checks before any entry is read, and passphrases for protected
// archives are resolved through the passlock package.
package sqz

import (
	"context"
)

// Compress compresses in to out using the format resolved from the output path's extension, falling back to the
// default registry's default format (GZIP).
//
// The in and out endpoints may each be a path (string), a []byte, or a *bytes.Buffer; see Format.Compress for how the
// endpoint combinations behave.
func Compress(ctx context.Context, in, out any, optFns ...func(*Options)) (Result, error) {
	return DefaultRegistry().Compress(ctx, in, out, optFns...)
}

// Decompress detects the format of in by signature sniffing and decompresses it to out.
//
// If in is a path to a directory, every regular file underneath is sniffed and decompressed into a mirrored tree
// under out, one file at a time; files with no recognized signature are skipped. Buffers and files whose leading
// bytes match no registered format resolve to the UNSUPPORTED sentinel whose operations return ErrUnsupportedFormat.
func Decompress(ctx context.Context, in, out any, optFns ...func(*Options)) (Result, error) {
	return DefaultRegistry().Decompress(ctx, in, out, optFns...)
}
