package internal

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

// DefaultBytes is equivalent to progressbar.DefaultBytes but with higher progressbar.OptionThrottle.
func DefaultBytes(maxBytes int64, description string, options ...progressbar.Option) *progressbar.ProgressBar {
	return progressbar.NewOptions64(maxBytes,
		append([]progressbar.Option{
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(10),
			progressbar.OptionThrottle(1 * time.Second),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() {
				_, _ = fmt.Fprint(os.Stderr, "\n")
			}),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionFullWidth(),
			progressbar.OptionSetRenderBlankState(true)},
			options...)...)
}

// NewProgressWriter reports transfer progress on stderr, as an interactive bar when stderr is a terminal or as
// throttled log lines through logger otherwise.
//
// A size of -1 renders a spinner instead of a percentage.
func NewProgressWriter(logger *log.Logger, name string, size int64) io.WriteCloser {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return DefaultBytes(size, name)
	}

	w := &logProgressWriter{
		logger:    logger,
		name:      name,
		size:      size,
		sometimes: rate.Sometimes{Interval: 5 * time.Second},
	}
	// burn the always-run first report so the first log line comes after a full interval.
	w.sometimes.Do(func() {})

	return w
}

// logProgressWriter writes progress lines through a logger at most once per interval.
type logProgressWriter struct {
	logger    *log.Logger
	name      string
	size      int64
	written   int64
	sometimes rate.Sometimes
}

func (w *logProgressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))

	w.sometimes.Do(func() {
		if w.size > 0 {
			w.logger.Printf(`transferred %.2f%% of "%s" (%s) so far`,
				float64(w.written)/float64(w.size)*100.0, w.name, humanize.Bytes(uint64(w.size)))
			return
		}

		w.logger.Printf(`transferred %s of "%s" so far`, humanize.Bytes(uint64(w.written)), w.name)
	})

	return len(p), nil
}

func (w *logProgressWriter) Close() error {
	return nil
}
