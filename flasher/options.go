package flasher

import "github.com/arloliu/go-picloader/logger"

// Progress describes the position of a programming run.
type Progress struct {
	// State is the current step.
	State State
	// Block is the number of write blocks processed so far.
	Block int
	// TotalBlocks is the number of write blocks in the range.
	TotalBlocks int
	// Address is the byte address of the block last processed.
	Address uint32
	// Written is the number of blocks sent to the device, Skipped the number
	// of blank blocks that were not.
	Written int
	Skipped int
}

// ProgressCallback receives progress updates. It runs on the programming
// goroutine and should return quickly.
type ProgressCallback func(Progress)

type config struct {
	logger   logger.Logger
	progress ProgressCallback
}

func defaultConfig() config {
	return config{logger: logger.GetLogger()}
}

// Option configures a Programmer.
type Option func(*config)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithProgressCallback sets a callback reporting progress after every state
// change and every block.
//
// Example:
//
//	prog := flasher.New(client,
//	    flasher.WithProgressCallback(func(p flasher.Progress) {
//	        fmt.Printf("%s %d/%d\n", p.State, p.Block, p.TotalBlocks)
//	    }),
//	)
func WithProgressCallback(cb ProgressCallback) Option {
	return func(c *config) {
		c.progress = cb
	}
}
