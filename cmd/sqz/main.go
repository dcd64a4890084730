package main

import (
	"errors"
	"log"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/sqz/internal/cli"
)

func main() {
	p, err := cli.NewParser()
	if err != nil {
		log.Fatal(err)
	}

	_, err = p.Parse()
	exit(err)
}

// exitCode maps the parse result to the process exit code: 0 when the run succeeded or only printed help, 2 for
// command line usage errors, 1 for operations that failed.
//
// The parser already printed the error, so there is nothing left to report here.
func exitCode(err error) int {
	if err == nil || flags.WroteHelp(err) {
		return 0
	}

	var ferr *flags.Error
	if errors.As(err, &ferr) && ferr.Type != flags.ErrHelp {
		return 2
	}

	return 1
}
