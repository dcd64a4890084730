// Package cli implements the sqz command line interface.
package cli

import (
	"github.com/jessevdk/go-flags"
)

type Sqz struct {
	Compress   Compress   `command:"compress" alias:"c" description:"compress files or directories"`
	Decompress Decompress `command:"decompress" alias:"x" description:"decompress files or extract archives"`
	Inspect    Inspect    `command:"inspect" alias:"i" description:"describe archives without extracting them"`
	Protect    Protect    `command:"protect" alias:"p" description:"create or verify password protection strings"`
}

func NewParser() (*flags.Parser, error) {
	opts := &Sqz{}

	p := flags.NewNamedParser("sqz", flags.Default)
	if _, err := p.AddGroup("Global Options", "", opts); err != nil {
		return nil, err
	}

	return p, nil
}
