// Package zarc reads ZIP archive metadata without decompressing entry contents.
//
// The package scans the central directory at the end of an archive to produce entry counts, declared sizes, and the
// per-entry headers that the safety checks and entry adapters are built on. It never inflates entry data itself.
package zarc

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/valyala/bytebufferpool"
)

const (
	// MinArchiveSize is the size in bytes of the end-of-central-directory record of an empty ZIP file.
	//
	// No well-formed archive can be smaller than this.
	MinArchiveSize = 22

	// maxEOCDSearchBytes bounds the backwards search for the EOCD signature.
	//
	// The EOCD comment field caps at 64 KiB so the record must start within the last 64 KiB + 22 bytes.
	maxEOCDSearchBytes = 64*1024 + MinArchiveSize
)

// ErrNoEOCDFound is returned if no end-of-central-directory signature was found.
var ErrNoEOCDFound = errors.New("end of central directory not found; most likely not a ZIP file")

// EOCDRecord models the end of central directory record of a ZIP file.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format)#End_of_central_directory_record_(EOCD).
type EOCDRecord struct {
	// DiskNumber is the number of this disk.
	DiskNumber uint16
	// CDDiskOffset is the disk where the central directory starts.
	CDDiskOffset uint16
	// CDCountOnDisk is the number of central directory records on this disk.
	CDCountOnDisk uint16
	// CDCount is the total number of central directory records.
	CDCount uint16
	// CDSize is the size in bytes of the central directory.
	CDSize uint32
	// CDOffset is the offset of the start of the central directory, relative to the start of the archive.
	CDOffset uint32
	// Comment is the archive comment.
	Comment string
}

// FileHeader is the parsed central directory file header of a single archive entry.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format)#Central_directory_file_header_(CDFH).
type FileHeader struct {
	CreatorVersion   uint16
	ReaderVersion    uint16
	Flags            uint16
	Method           uint16
	Modified         time.Time
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	DiskNumStart     uint16
	InternalAttrs    uint16
	ExternalAttrs    uint32
	// Offset is the relative offset of the entry's local file header from the start of the archive.
	Offset  uint32
	Name    string
	Comment string
	Extra   []byte
}

// IsDir reports whether the header names a directory entry.
//
// ZIP paths always use forward slashes; directory entries carry a trailing one.
func (fh *FileHeader) IsDir() bool {
	return len(fh.Name) > 0 && fh.Name[len(fh.Name)-1] == '/'
}

// fixedSizeCDFileHeader needs to be fixed size to work with binary.Read.
type fixedSizeCDFileHeader struct {
	Signature         uint32
	CreatorVersion    uint16
	ReaderVersion     uint16
	Flags             uint16
	Method            uint16
	ModifiedTime      uint16
	ModifiedDate      uint16
	CRC32             uint32
	CompressedSize    uint32
	UncompressedSize  uint32
	FileNameLength    uint16
	ExtraFieldLength  uint16
	FileCommentLength uint16
	DiskNumStart      uint16
	InternalAttrs     uint16
	ExternalAttrs     uint32
	Offset            uint32
}

// ScanOptions customises Scan.
type ScanOptions struct {
	// KeepComment controls whether entry comments are kept or discarded.
	//
	// By default, the zero value discards comment fields from all returned headers to save allocations.
	KeepComment bool
}

// Scan scans backwards from the given io.ReadSeeker for the end of central directory record, then returns it along
// with an iterator over the central directory file headers.
//
// The method assumes the contents from src contain exactly 1 well-formatted ZIP archive; all bets are off otherwise.
// Returns ErrNoEOCDFound if src is not a ZIP file. Any parse error stops the iterator with a non-nil error value.
func Scan(src io.ReadSeeker, size int64, optFns ...func(*ScanOptions)) (EOCDRecord, iter.Seq2[FileHeader, error], error) {
	opts := &ScanOptions{}
	for _, fn := range optFns {
		fn(opts)
	}

	r, err := findEOCD(src, size)
	if err != nil {
		return r, nil, err
	}

	return r, func(yield func(FileHeader, error) bool) {
		if _, err := src.Seek(int64(r.CDOffset), io.SeekStart); err != nil {
			yield(FileHeader{}, fmt.Errorf("seek central directory error: %w", err))
			return
		}

		br := bufio.NewReaderSize(src, 16*1024)
		buf := make([]byte, 46)

		for range r.CDCount {
			if _, err := io.ReadFull(br, buf); err != nil {
				yield(FileHeader{}, fmt.Errorf("read central directory file header error: %w", err))
				return
			}

			fsfh := &fixedSizeCDFileHeader{}
			if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, fsfh); err != nil {
				yield(FileHeader{}, fmt.Errorf("parse central directory file header error: %w", err))
				return
			}
			if fsfh.Signature != sigCDFH {
				yield(FileHeader{}, fmt.Errorf("mismatched central directory signature, got 0x%x, expected 0x%x", fsfh.Signature, sigCDFH))
				return
			}

			fh := FileHeader{
				CreatorVersion:   fsfh.CreatorVersion,
				ReaderVersion:    fsfh.ReaderVersion,
				Flags:            fsfh.Flags,
				Method:           fsfh.Method,
				Modified:         msDosTimeToTime(fsfh.ModifiedDate, fsfh.ModifiedTime),
				ModifiedTime:     fsfh.ModifiedTime,
				ModifiedDate:     fsfh.ModifiedDate,
				CRC32:            fsfh.CRC32,
				CompressedSize:   fsfh.CompressedSize,
				UncompressedSize: fsfh.UncompressedSize,
				DiskNumStart:     fsfh.DiskNumStart,
				InternalAttrs:    fsfh.InternalAttrs,
				ExternalAttrs:    fsfh.ExternalAttrs,
				Offset:           fsfh.Offset,
			}

			n := int(fsfh.FileNameLength)
			m := int(fsfh.ExtraFieldLength)
			k := int(fsfh.FileCommentLength)

			bb := bytebufferpool.Get()
			if _, err := bb.ReadFrom(io.LimitReader(br, int64(n+m+k))); err != nil {
				bytebufferpool.Put(bb)
				yield(FileHeader{}, fmt.Errorf("read central directory file header name error: %w", err))
				return
			}

			fh.Name = string(bb.B[:n])
			fh.Extra = append([]byte(nil), bb.B[n:n+m]...)
			if opts.KeepComment {
				fh.Comment = string(bb.B[n+m : n+m+k])
			}
			bytebufferpool.Put(bb)

			if !yield(fh, nil) {
				return
			}
		}
	}, nil
}

// ScanBuffer is a convenience wrapper around Scan for archives already held in memory.
func ScanBuffer(buf []byte, optFns ...func(*ScanOptions)) (EOCDRecord, iter.Seq2[FileHeader, error], error) {
	return Scan(bytes.NewReader(buf), int64(len(buf)), optFns...)
}

// findEOCD reads backwards from the end of src until it finds the EOCD signature.
func findEOCD(src io.ReadSeeker, size int64) (r EOCDRecord, err error) {
	if size < MinArchiveSize {
		return r, ErrNoEOCDFound
	}

	buf := make([]byte, 1024)
	bufSize := int64(len(buf))
	searched := int64(0)

	offset, err := src.Seek(max(0, size-bufSize), io.SeekStart)
	if err != nil {
		return r, fmt.Errorf("seek end of central directory error: %w", err)
	}

	for {
		n, err := io.ReadFull(src, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return r, fmt.Errorf("read end of central directory error: %w", err)
		}

		if i := lastIndexUint32(buf[:n], sigEOCD); i != -1 {
			return parseEOCD(src, buf[i:n], offset+int64(i))
		}

		if offset == 0 || searched > maxEOCDSearchBytes {
			return r, ErrNoEOCDFound
		}

		// overlap by 4 bytes in case the signature straddles two windows.
		searched += bufSize - 4
		if offset, err = src.Seek(max(0, offset-(bufSize-4)), io.SeekStart); err != nil {
			return r, fmt.Errorf("seek backwards for end of central directory error: %w", err)
		}
	}
}

// parseEOCD decodes the fixed EOCD fields; data begins at the signature but may be cut short by the read window, in
// which case the record is re-read from src at eocdOffset.
func parseEOCD(src io.ReadSeeker, data []byte, eocdOffset int64) (r EOCDRecord, err error) {
	if len(data) < MinArchiveSize {
		if _, err = src.Seek(eocdOffset, io.SeekStart); err != nil {
			return r, fmt.Errorf("seek end of central directory error: %w", err)
		}

		data = make([]byte, MinArchiveSize)
		if _, err = io.ReadFull(src, data); err != nil {
			return r, fmt.Errorf("read end of central directory error: %w", err)
		}
	}

	r = EOCDRecord{
		DiskNumber:    binary.LittleEndian.Uint16(data[4:6]),
		CDDiskOffset:  binary.LittleEndian.Uint16(data[6:8]),
		CDCountOnDisk: binary.LittleEndian.Uint16(data[8:10]),
		CDCount:       binary.LittleEndian.Uint16(data[10:12]),
		CDSize:        binary.LittleEndian.Uint32(data[12:16]),
		CDOffset:      binary.LittleEndian.Uint32(data[16:20]),
	}

	if commentLen := int(binary.LittleEndian.Uint16(data[20:22])); commentLen > 0 && len(data) >= 22+commentLen {
		r.Comment = string(data[22 : 22+commentLen])
	}

	return r, nil
}

// lastIndexUint32 finds the last occurrence of the little-endian encoding of sig in buf.
func lastIndexUint32(buf []byte, sig uint32) int {
	var enc [4]byte
	binary.LittleEndian.PutUint32(enc[:], sig)
	return bytes.LastIndex(buf, enc[:])
}

// msDosTimeToTime converts an MS-DOS date and time into a time.Time.
// The resolution is 2s.
// See: https://learn.microsoft.com/en-us/windows/win32/api/winbase/nf-winbase-dosdatetimetofiletime
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	return time.Date(
		// date bits 0-4: day of month; 5-8: month; 9-15: years since 1980
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),

		// time bits 0-4: second/2; 5-10: minute; 11-15: hour
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0, // nanoseconds

		time.UTC,
	)
}

const (
	sigCDFH uint32 = 0x02014b50
	sigEOCD uint32 = 0x06054b50
)
