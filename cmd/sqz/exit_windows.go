//go:build windows

package main

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/term"
)

// exit holds the console window open before exiting. A double-clicked executable gets a console that Windows tears
// down the moment the process ends, taking any output with it.
func exit(err error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		_, _ = fmt.Fprintln(os.Stderr, "Press Enter to close this window")
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
	}

	os.Exit(exitCode(err))
}
