package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/sqz"
	"github.com/nguyengg/sqz/internal"
	"github.com/nguyengg/sqz/internal/config"
)

type Compress struct {
	Format         string         `short:"f" long:"format" choice:"gzip" choice:"zip" choice:"deflate" choice:"brotli" choice:"zstd" choice:"xz" description:"compression format; defaults to the config file's [compress] format, then gzip"`
	DeleteSource   bool           `short:"d" long:"delete-source" description:"if specified, delete the original files or directories that were successfully compressed."`
	MaxConcurrency int            `short:"P" long:"max-concurrency" description:"number of zstd encoder workers; 0 uses all cores"`
	Comment        string         `long:"comment" description:"archive comment; only zip archives carry one"`
	Out            flags.Filename `short:"o" long:"out" description:"output file or directory; defaults to a sibling of each input"`
	Args           struct {
		Files []flags.Filename `positional-arg-name:"file" description:"the files/directories to be compressed" required:"yes"`
	} `positional-args:"yes"`

	format *sqz.Format
	logger *log.Logger
}

func (c *Compress) Execute(args []string) (err error) {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	if _, err = config.Load(ctx); err != nil {
		return fmt.Errorf("load config file error: %w", err)
	}

	cfg := config.ForCompress()

	name := c.Format
	if name == "" {
		name = cfg.Format
	}
	if name == "" {
		name = sqz.DefaultName
	}

	r := sqz.DefaultRegistry()

	var ok bool
	if c.format, ok = r.Format(name); !ok {
		// "zip" is not a registered name but is a registered extension.
		if c.format, ok = r.FromExt("." + strings.ToLower(name)); !ok {
			return fmt.Errorf("unknown format %q", name)
		}
	}

	if c.Comment == "" {
		c.Comment = cfg.Comment
	}

	n := len(c.Args.Files)
	if n > 1 && c.Out != "" {
		if fi, err := os.Stat(string(c.Out)); err != nil || !fi.IsDir() {
			return fmt.Errorf(`output "%s" must be an existing directory when compressing more than one file`, c.Out)
		}
	}

	success := 0
	for i, file := range c.Args.Files {
		c.logger = internal.NewLogger(i, n, file)
		c.logger.Printf("start compressing")

		if err = c.compress(ctx, string(file)); err == nil {
			c.logger.Printf("done compressing")
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			break
		}

		c.logger.Printf(`compress "%s" error: %v`, file, err)
	}

	log.Printf("successfully compressed %d/%d files", success, n)
	return nil
}

func (c *Compress) compress(ctx context.Context, name string) error {
	var out any
	if c.Out != "" {
		out = string(c.Out)
	}

	res, err := c.format.Compress(ctx, name, out, func(opts *sqz.Options) {
		opts.DeleteSource = c.DeleteSource
		opts.MaxConcurrency = c.MaxConcurrency
		opts.Comment = c.Comment
		opts.NewProgressWriter = func(desc string, size int64) io.WriteCloser {
			return internal.NewProgressWriter(c.logger, desc, size)
		}
	})
	if err != nil {
		return err
	}

	if res.Entries > 1 {
		c.logger.Printf(`wrote %d entries (%s) to "%s"`, res.Entries, humanize.IBytes(uint64(res.N)), res.Path)
	} else {
		c.logger.Printf(`wrote %s to "%s"`, humanize.IBytes(uint64(res.N)), res.Path)
	}

	return nil
}
