package main

import (
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// progressBar renders indexing progress. The total is only known once the
// indexer reports its first file, so the bar is created lazily.
type progressBar struct {
	w    io.Writer
	once sync.Once
	bar  *progressbar.ProgressBar
}

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{w: w}
}

// Update is safe for concurrent use.
func (p *progressBar) Update(done, total int) {
	p.once.Do(func() {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription("Indexing files"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files/s"),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionClearOnFinish(),
		)
	})
	_ = p.bar.Set(done)
}

func (p *progressBar) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
