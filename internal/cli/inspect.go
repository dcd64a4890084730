package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/sqz"
	"github.com/nguyengg/sqz/internal"
	"github.com/nguyengg/sqz/internal/config"
	"github.com/nguyengg/sqz/zarc"
)

type Inspect struct {
	Args struct {
		Files []flags.Filename `positional-arg-name:"file" description:"the archives or compressed files to describe" required:"yes"`
	} `positional-args:"yes"`

	limits zarc.Limits
	logger *log.Logger
}

func (c *Inspect) Execute(args []string) (err error) {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	if _, err = config.Load(ctx); err != nil {
		return fmt.Errorf("load config file error: %w", err)
	}

	c.limits = config.ForSafety().Limits

	success := 0
	n := len(c.Args.Files)
	for i, file := range c.Args.Files {
		if ctx.Err() != nil {
			break
		}

		c.logger = internal.NewLogger(i, n, file)

		if err = c.inspect(string(file)); err == nil {
			success++
			continue
		}

		c.logger.Printf("inspect error: %v", err)
	}

	log.Printf("successfully inspected %d/%d files", success, n)
	return nil
}

// inspect reports the sniffed format; ZIP archives additionally get their entry listing and a safety verdict, read
// from central directory metadata alone.
func (c *Inspect) inspect(name string) error {
	r := sqz.DefaultRegistry()

	f, err := r.FromFile(name)
	if err != nil {
		return err
	}

	fi, err := os.Stat(name)
	if err != nil {
		return fmt.Errorf(`describe "%s" error: %w`, name, err)
	}

	size := humanize.IBytes(uint64(fi.Size()))

	switch {
	case f == r.Unsupported():
		c.logger.Printf("unrecognized format, %s", size)
		return nil
	case f.Name != "PKZIP":
		c.logger.Printf("%s, %s", f.Name, size)
		return nil
	}

	src, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("open input file error: %w", err)
	}
	defer src.Close()

	rec, headers, err := zarc.Scan(src, fi.Size(), func(o *zarc.ScanOptions) { o.KeepComment = true })
	if err != nil {
		return err
	}

	c.logger.Printf("%s, %s, %d entries", f.Name, size, rec.CDCount)
	if rec.Comment != "" {
		c.logger.Printf("comment: %s", rec.Comment)
	}

	var total int64
	for fh, err := range headers {
		if err != nil {
			return fmt.Errorf("scan central directory error: %w", err)
		}

		if fh.IsDir() {
			fmt.Printf("%10s  %s\n", "-", fh.Name)
			continue
		}

		total += int64(fh.UncompressedSize)

		suffix := ""
		if fh.Flags&0x1 != 0 {
			suffix = " (encrypted)"
		}

		fmt.Printf("%10s  %s%s\n", humanize.IBytes(uint64(fh.UncompressedSize)), fh.Name, suffix)
	}

	// the verdict is a finding, not a failure; inspecting a suspicious archive is the point.
	if err = c.limits.Violation(int(rec.CDCount), total); err != nil {
		c.logger.Printf("safety: %v", err)
		return nil
	}

	c.logger.Printf("safety: ok (%s total uncompressed)", humanize.IBytes(uint64(total)))
	return nil
}
