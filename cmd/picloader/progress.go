package main

import (
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/arloliu/go-picloader/flasher"
)

// progressBar renders flasher progress as a terminal bar of write blocks.
// The bar is created once the block count is known.
type progressBar struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{w: w}
}

func (p *progressBar) update(pr flasher.Progress) {
	switch pr.State {
	case flasher.StateErased:
		p.bar = progressbar.NewOptions(pr.TotalBlocks,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("flashing"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
		)
	case flasher.StateWriting:
		if p.bar != nil {
			_ = p.bar.Set(pr.Block)
		}
	case flasher.StateVerifying:
		p.finish()
	}
}

func (p *progressBar) finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	_, _ = io.WriteString(p.w, "\n")
	p.bar = nil
}
