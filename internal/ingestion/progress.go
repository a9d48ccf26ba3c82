package ingestion

import (
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter receives progress of the two indexing phases (extraction over
// documents, embedding over blocks).
type Reporter interface {
	Start(total int, phase string)
	Advance(n int)
	Finish()
}

// NewReporter returns a LogReporter when running under CI and a
// TerminalReporter otherwise.
func NewReporter(log *slog.Logger) Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" || os.Getenv("SEMAPHORE") != "" {
		return &LogReporter{log: log}
	}
	return &TerminalReporter{}
}

// TerminalReporter draws a progress bar on stderr.
type TerminalReporter struct {
	bar *progressbar.ProgressBar
}

// Start replaces any previous bar with one sized for total steps of phase.
func (r *TerminalReporter) Start(total int, phase string) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(phase),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

// Advance moves the bar n steps.
func (r *TerminalReporter) Advance(n int) {
	if r.bar != nil {
		_ = r.bar.Add(n)
	}
}

// Finish completes and clears the bar.
func (r *TerminalReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// LogReporter writes one structured log line per step, for CI logs.
type LogReporter struct {
	log   *slog.Logger
	phase string
	total int
	done  int
}

// Start resets the counters and logs the phase at info level.
func (r *LogReporter) Start(total int, phase string) {
	r.phase, r.total, r.done = phase, total, 0
	r.log.Info("ingestion: phase started", slog.String("phase", phase), slog.Int("total", total))
}

// Advance adds n to the done count and logs it at debug level.
func (r *LogReporter) Advance(n int) {
	r.done += n
	r.log.Debug("ingestion: progress", slog.String("phase", r.phase), slog.Int("done", r.done), slog.Int("total", r.total))
}

// Finish logs how many steps of the phase completed.
func (r *LogReporter) Finish() {
	r.log.Info("ingestion: phase finished", slog.String("phase", r.phase), slog.Int("done", r.done))
}

// nopReporter is used when no Reporter option is given.
type nopReporter struct{}

func (nopReporter) Start(int, string) {}
func (nopReporter) Advance(int)       {}
func (nopReporter) Finish()           {}
