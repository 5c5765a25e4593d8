package main

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// progressReporter renders procedure progress on a terminal bar.
type progressReporter struct {
	w           io.Writer
	description string
	bar         *progressbar.ProgressBar
}

func newProgressReporter(w io.Writer, description string) *progressReporter {
	return &progressReporter{w: w, description: description}
}

func (p *progressReporter) Start(total int) {
	if total <= 0 {
		return
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(p.description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(p.w, "\n") }),
	)
}

func (p *progressReporter) Add(n int) {
	if p.bar != nil {
		_ = p.bar.Add(n)
	}
}

func (p *progressReporter) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
