package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/sqz"
	"github.com/nguyengg/sqz/internal"
	"github.com/nguyengg/sqz/internal/config"
	"github.com/nguyengg/sqz/passlock"
)

type Decompress struct {
	Storable     string         `short:"p" long:"storable" description:"storable protection string; its passphrase is recovered to decrypt encrypted 7z archives"`
	Passphrase   string         `long:"passphrase" description:"plaintext passphrase for encrypted 7z archives; prefer --storable"`
	Dir          flags.Filename `short:"C" long:"dir" description:"decompress or extract into this directory instead of next to each input"`
	UnwrapRoot   bool           `long:"unwrap-root" description:"when every archive entry shares one top-level directory, drop that directory while extracting"`
	DeleteSource bool           `long:"delete-source" description:"if specified, delete the inputs that were successfully decompressed."`
	Args         struct {
		Files []flags.Filename `positional-arg-name:"file" description:"the archives or compressed files to be decompressed" required:"yes"`
	} `positional-args:"yes"`

	optFns []func(*sqz.Options)
	logger *log.Logger
}

func (c *Decompress) Execute(args []string) (err error) {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	if _, err = config.Load(ctx); err != nil {
		return fmt.Errorf("load config file error: %w", err)
	}

	c.optFns = []func(*sqz.Options){sqz.WithLimits(config.ForSafety().Limits)}
	if c.DeleteSource {
		c.optFns = append(c.optFns, sqz.WithDeleteSource)
	}
	if c.UnwrapRoot {
		c.optFns = append(c.optFns, sqz.WithUnwrapRoot)
	}

	switch {
	case c.Storable != "":
		p, err := passlock.FromStorable(c.Storable)
		if err != nil {
			return fmt.Errorf("parse storable error: %w", err)
		}

		c.optFns = append(c.optFns, sqz.WithProtection(p))
	case c.Passphrase != "":
		c.optFns = append(c.optFns, sqz.WithPassphrase(c.Passphrase))
	}

	success := 0
	n := len(c.Args.Files)
	for i, file := range c.Args.Files {
		c.logger = internal.NewLogger(i, n, file)
		c.logger.Printf("start decompressing")

		if err = c.decompress(ctx, string(file)); err == nil {
			c.logger.Printf("done decompressing")
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			break
		}

		c.logger.Printf(`decompress "%s" error: %v`, file, err)
	}

	log.Printf("successfully decompressed %d/%d files", success, n)
	return nil
}

func (c *Decompress) decompress(ctx context.Context, name string) error {
	var out any
	if c.Dir != "" {
		out = string(c.Dir)
	}

	optFns := append(slices.Clone(c.optFns), func(opts *sqz.Options) {
		opts.NewProgressWriter = func(desc string, size int64) io.WriteCloser {
			return internal.NewProgressWriter(c.logger, desc, size)
		}
	})

	res, err := sqz.Decompress(ctx, name, out, optFns...)
	if err != nil {
		return err
	}

	if res.Entries > 1 {
		c.logger.Printf(`extracted %d entries (%s) to "%s"`, res.Entries, humanize.IBytes(uint64(res.N)), res.Path)
	} else {
		c.logger.Printf(`wrote %s to "%s"`, humanize.IBytes(uint64(res.N)), res.Path)
	}

	return nil
}
