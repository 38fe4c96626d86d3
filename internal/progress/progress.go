// Package progress renders scan and resolve progress as terminal bars.
package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"dupe-go/internal/dupe"
)

// Options configures progress bar behavior.
type Options struct {
	Quiet    bool
	Throttle time.Duration
}

// BarReporter draws one progress bar per phase on its writer.
type BarReporter struct {
	w       io.Writer
	options Options

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewBarReporter creates a reporter that writes to w.
func NewBarReporter(w io.Writer, options Options) *BarReporter {
	return &BarReporter{w: w, options: options}
}

// ForTerminal returns a bar reporter on f when f is a terminal, and a
// reporter that discards progress otherwise.
func ForTerminal(f *os.File, quiet bool) dupe.Reporter {
	if quiet || !term.IsTerminal(int(f.Fd())) {
		return dupe.NopReporter{}
	}
	return NewBarReporter(f, Options{Throttle: 65 * time.Millisecond})
}

func (r *BarReporter) Start(label string, total int) {
	if r.options.Quiet {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(r.options.Throttle),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(r.w, "\n")
		}),
	)
}

// Advance moves the current bar by one and shows the file's base name.
func (r *BarReporter) Advance(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar == nil {
		return
	}
	r.bar.Describe(filepath.Base(path))
	// Rendering errors never affect the operation.
	_ = r.bar.Add(1)
}

func (r *BarReporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar == nil {
		return
	}
	_ = r.bar.Finish()
	r.bar = nil
}

var _ dupe.Reporter = (*BarReporter)(nil)
