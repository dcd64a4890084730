//go:build !windows

package main

import "os"

func exit(err error) {
	os.Exit(exitCode(err))
}
