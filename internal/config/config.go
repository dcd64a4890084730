package config

import (
	"github.com/dustin/go-humanize"
	"github.com/nguyengg/sqz/zarc"
)

// SafetyConfig contains the archive safety thresholds from the [safety] section.
type SafetyConfig struct {
	Limits zarc.Limits
}

// ForSafety returns the archive safety limits.
//
// Keys that are absent or unparsable leave the corresponding threshold at its package default. The max-total-size
// key accepts human-readable sizes such as "25MiB" or "1GB".
func (l *Loader) ForSafety() (c SafetyConfig) {
	sec, err := l.cfg.GetSection("safety")
	if err != nil {
		return c
	}

	if v, err := sec.Key("max-entries").Int(); err == nil {
		c.Limits.MaxEntries = v
	}
	if v, err := humanize.ParseBytes(sec.Key("max-total-size").Value()); err == nil {
		c.Limits.MaxUncompressedSize = int64(v)
	}
	if v, err := sec.Key("bomb-ratio").Int64(); err == nil {
		c.Limits.BombRatio = v
	}

	return
}

// ForSafety calls Loader.ForSafety on the DefaultLoader instance.
func ForSafety() (c SafetyConfig) {
	return DefaultLoader.ForSafety()
}

// CompressConfig contains compression defaults from the [compress] section.
type CompressConfig struct {
	// Format names the format to use when the command line does not pick one.
	Format string

	// Comment is attached to archives written by formats that support archive comments.
	Comment string
}

// ForCompress returns compression defaults.
func (l *Loader) ForCompress() (c CompressConfig) {
	sec, err := l.cfg.GetSection("compress")
	if err != nil {
		return c
	}

	c.Format = sec.Key("format").Value()
	c.Comment = sec.Key("comment").Value()

	return
}

// ForCompress calls Loader.ForCompress on the DefaultLoader instance.
func ForCompress() (c CompressConfig) {
	return DefaultLoader.ForCompress()
}
