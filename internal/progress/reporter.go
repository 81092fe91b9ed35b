// Package progress reports folder indexing progress on the terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
)

// Reporter provides progress feedback while a folder is indexed.
type Reporter interface {
	Start(total int)
	Update(current int, file string)
	Finish()
}

// NewReporter returns a CIReporter when the CI environment variable is set,
// or a TerminalReporter otherwise. Both write to stderr so stdout stays
// clean for results.
func NewReporter(label string) Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &CIReporter{Label: label, Out: os.Stderr}
	}
	return &TerminalReporter{Label: label, Out: os.Stderr}
}

// Func adapts r to the per-file callback of a folder run. Start is called
// on the first update, when the total is known.
func Func(r Reporter) func(processed, total int, file string) {
	started := false
	return func(processed, total int, file string) {
		if !started {
			r.Start(total)
			started = true
		}
		r.Update(processed, file)
	}
}

// TerminalReporter displays a progress bar in the terminal.
type TerminalReporter struct {
	Label string
	Out   io.Writer
	bar   *progressbar.ProgressBar
}

func (r *TerminalReporter) Start(total int) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.Out),
		progressbar.OptionSetDescription(r.Label),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *TerminalReporter) Update(current int, file string) {
	if r.bar != nil {
		r.bar.Describe(fmt.Sprintf("%s %s", r.Label, filepath.Base(file)))
		_ = r.bar.Set(current)
	}
}

func (r *TerminalReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// CIReporter prints line-by-line progress suitable for CI logs.
type CIReporter struct {
	Label string
	Out   io.Writer
	total int
}

func (r *CIReporter) Start(total int) {
	r.total = total
	fmt.Fprintf(r.Out, "%s: %d files\n", r.Label, total)
}

func (r *CIReporter) Update(current int, file string) {
	fmt.Fprintf(r.Out, "[%d/%d] %s\n", current, r.total, file)
}

func (r *CIReporter) Finish() {
	fmt.Fprintf(r.Out, "%s: done\n", r.Label)
}
