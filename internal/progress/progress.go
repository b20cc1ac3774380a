// Package progress renders the single-line transfer bar and the end-of-run
// summary.
package progress

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const barWidth = 30

// Options configure a Reporter.
type Options struct {
	// Live rewrites the bar in place after every event. Off when output is
	// not a terminal; the summary is still printed.
	Live  bool
	Color bool
	// LedgerPath is shown in the summary.
	LedgerPath string
	Now        func() time.Time
}

type failure struct {
	id     int64
	reason string
}

// Reporter tracks per-item outcomes of one run.
type Reporter struct {
	w    io.Writer
	opts Options
	bar  progress.Model

	green, red, yellow, cyan lipgloss.Style

	total   int
	done    int
	success int
	failed  int
	skipped int
	start   time.Time
	errors  []failure
	drawn   bool
}

// New creates a Reporter writing to w.
func New(w io.Writer, opts Options) *Reporter {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	profile := termenv.ANSI
	if !opts.Color {
		profile = termenv.Ascii
	}
	renderer := lipgloss.NewRenderer(w)
	renderer.SetColorProfile(profile)

	return &Reporter{
		w:    w,
		opts: opts,
		bar: progress.New(
			progress.WithWidth(barWidth),
			progress.WithFillCharacters('█', '░'),
			progress.WithoutPercentage(),
			progress.WithSolidFill("6"),
			progress.WithColorProfile(profile),
		),
		green:  renderer.NewStyle().Foreground(lipgloss.Color("2")),
		red:    renderer.NewStyle().Foreground(lipgloss.Color("1")),
		yellow: renderer.NewStyle().Foreground(lipgloss.Color("3")),
		cyan:   renderer.NewStyle().Foreground(lipgloss.Color("6")),
	}
}

// Fetching reports history paging progress.
func (r *Reporter) Fetching(n int) {
	if !r.opts.Live {
		return
	}
	fmt.Fprintf(r.w, "\r  fetching history… %d messages", n)
	r.drawn = true
}

// Fetched ends the fetch line.
func (r *Reporter) Fetched(n int) {
	if r.drawn {
		fmt.Fprint(r.w, "\r\033[K")
		r.drawn = false
	}
	fmt.Fprintf(r.w, "  %s\n", r.cyan.Render(fmt.Sprintf("▸ %d messages found", n)))
}

// Start prints the header and sets the item total.
func (r *Reporter) Start(total int) {
	r.total = total
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, r.cyan.Render("  ── transferring "+strings.Repeat("─", 30)))
}

// Succeeded counts one delivered item.
func (r *Reporter) Succeeded() {
	r.tick()
	r.success++
	r.render()
}

// Failed counts one failed item and keeps its reason for the summary.
func (r *Reporter) Failed(id int64, reason string) {
	r.tick()
	r.failed++
	r.errors = append(r.errors, failure{id: id, reason: reason})
	r.render()
}

// Skipped counts one item already delivered by an earlier run.
func (r *Reporter) Skipped() {
	r.tick()
	r.skipped++
	r.render()
}

// The clock starts on the first event so setup time is not counted.
func (r *Reporter) tick() {
	if r.start.IsZero() {
		r.start = r.opts.Now()
	}
	r.done++
}

func (r *Reporter) elapsed() time.Duration {
	if r.start.IsZero() {
		return 0
	}
	return r.opts.Now().Sub(r.start)
}

func (r *Reporter) render() {
	if !r.opts.Live {
		return
	}
	fmt.Fprint(r.w, "\r"+r.Line())
	r.drawn = true
}

// Line returns the current bar line without the carriage return.
func (r *Reporter) Line() string {
	pct := 1.0
	if r.total > 0 {
		pct = float64(r.done) / float64(r.total)
	}

	var b strings.Builder
	fmt.Fprintf(&b, " [%s]  %d / %d  %3.0f%%", r.bar.ViewAs(pct), r.done, r.total, pct*100)
	fmt.Fprintf(&b, "  %s  %s  %s",
		r.green.Render(fmt.Sprintf("✓ %d", r.success)),
		r.red.Render(fmt.Sprintf("✗ %d", r.failed)),
		r.yellow.Render(fmt.Sprintf("⟳ %d", r.skipped)),
	)
	// A single event gives a meaningless rate.
	if secs := r.elapsed().Seconds(); r.done >= 2 && secs > 0 {
		fmt.Fprintf(&b, "  ▸ %.1f msg/s", float64(r.done)/secs)
	}
	return b.String()
}

// Finish prints the final bar, the collected errors and the summary.
func (r *Reporter) Finish() {
	if r.opts.Live {
		r.render()
		fmt.Fprintln(r.w)
	}

	if len(r.errors) > 0 {
		fmt.Fprintln(r.w)
		fmt.Fprintln(r.w, r.red.Render("  ── errors "+strings.Repeat("─", 34)))
		for _, e := range r.errors {
			fmt.Fprintln(r.w, r.red.Render(fmt.Sprintf("    ✗ msg %d: %s", e.id, e.reason)))
		}
	}

	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, r.cyan.Render("  ── summary "+strings.Repeat("─", 33)))
	fmt.Fprintln(r.w, r.green.Render(fmt.Sprintf("    ✓ Success : %d", r.success)))
	fmt.Fprintln(r.w, r.red.Render(fmt.Sprintf("    ✗ Failed  : %d", r.failed)))
	fmt.Fprintln(r.w, r.yellow.Render(fmt.Sprintf("    ⟳ Skipped : %d", r.skipped)))

	elapsed := r.elapsed()
	if secs := elapsed.Seconds(); secs > 0 && r.success > 0 {
		fmt.Fprintln(r.w, r.cyan.Render(fmt.Sprintf("    ▸ Speed   : %.1f msg/s  (%.0fs total)", float64(r.success)/secs, secs)))
	}
	if r.opts.LedgerPath != "" {
		fmt.Fprintln(r.w, r.cyan.Render("    ▸ Resume saved to "+r.opts.LedgerPath))
	}
}
