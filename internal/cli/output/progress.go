package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// ProgressBar displays the progress of a file transfer.
type ProgressBar struct {
	w        io.Writer
	title    string
	total    int64
	current  int64
	width    int
	interval time.Duration
	last     time.Time
	mu       sync.Mutex
}

// NewProgressBar creates a progress bar writing to w.
func NewProgressBar(w io.Writer, title string) *ProgressBar {
	return &ProgressBar{
		w:        w,
		title:    title,
		width:    40,
		interval: 100 * time.Millisecond,
	}
}

// IsTerminal reports whether w is an interactive terminal. Progress is only
// drawn on terminals.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetTotal sets the total size.
func (p *ProgressBar) SetTotal(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
}

// Add advances the progress by n bytes. Redraws are throttled.
func (p *ProgressBar) Add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += n
	if now := time.Now(); now.Sub(p.last) >= p.interval {
		p.last = now
		p.render()
	}
}

// Finish draws the final state and ends the line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render()
	fmt.Fprintln(p.w)
}

// Writer returns a writer that copies to w and advances the bar.
func (p *ProgressBar) Writer(w io.Writer) io.Writer {
	return &progressWriter{w: w, bar: p}
}

type progressWriter struct {
	w   io.Writer
	bar *ProgressBar
}

func (pw *progressWriter) Write(b []byte) (int, error) {
	n, err := pw.w.Write(b)
	pw.bar.Add(int64(n))
	return n, err
}

func (p *ProgressBar) render() {
	if p.total <= 0 {
		fmt.Fprintf(p.w, "\r%s %s", p.title, FormatBytes(p.current))
		return
	}

	percent := float64(p.current) / float64(p.total)
	if percent > 1 {
		percent = 1
	}
	filled := int(float64(p.width) * percent)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", p.width-filled)

	fmt.Fprintf(p.w, "\r%s [%s] %3.0f%% (%s/%s)",
		p.title, bar, percent*100, FormatBytes(p.current), FormatBytes(p.total))
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
