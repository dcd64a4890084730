package internal

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/sqz/util"
)

// Prefix creates a consistent prefix for all file-based commands to use.
//
// i and n are the zero-based ordinal and expected count.
func Prefix(i, n int, name flags.Filename) string {
	return fmt.Sprintf(`[%d/%d] "%s" - `, i, n, util.TruncateRightWithSuffix(filepath.Base(string(name)), 30, "..."))
}

// NewLogger creates a stderr logger whose prefix is Prefix(i, n, name).
func NewLogger(i, n int, name flags.Filename) *log.Logger {
	return log.New(os.Stderr, Prefix(i, n, name), 0)
}
