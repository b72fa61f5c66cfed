package flasher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-picloader/bootloader"
)

// Device is the part of the bootloader command set the programmer needs.
// *bootloader.Client implements it.
type Device interface {
	EraseFlash(ctx context.Context, address uint32, words int) error
	WriteFlash(ctx context.Context, address uint32, data []byte, opts ...bootloader.ExchangeOption) error
	CalcChecksum(ctx context.Context, address uint32, length int) (uint16, error)
}

var _ Device = (*bootloader.Client)(nil)

// Result summarizes a successful programming run.
type Result struct {
	// Range is the validated image range.
	Range Range
	// Blocks is the number of write blocks covered, Written and Skipped
	// split them into blocks sent and blank blocks left erased.
	Blocks  int
	Written int
	Skipped int
	// Retries counts blocks that needed their second attempt.
	Retries int
	// Checksum is the verified checksum over the programmed blocks.
	Checksum Checksum
	Elapsed  time.Duration
}

// Programmer erases, writes and verifies a firmware image.
//
// A Programmer runs one Program call at a time.
type Programmer struct {
	dev   Device
	cfg   config
	state State
}

// New creates a programmer for dev.
func New(dev Device, opts ...Option) *Programmer {
	if dev == nil {
		panic("flasher: device cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Programmer{dev: dev, cfg: cfg}
}

// State returns the state reached by the last Program call.
func (p *Programmer) State() State { return p.state }

// Program writes img to flash:
//  1. validate the image range, without touching the device
//  2. erase every write block of the range with one erase command
//  3. write each block in ascending order, skipping blank blocks; a failed
//     block is retried once
//  4. compare the device checksum over the range with the image checksum
//
// Blank blocks are not written but count in the checksum with their fill
// values, which is what an erased block reads back as.
func (p *Programmer) Program(ctx context.Context, img Image) (*Result, error) {
	begin := time.Now()
	p.state = StateIdle

	rng := img.Range()
	if err := ValidateRange(rng); err != nil {
		return nil, p.fail(err)
	}

	first := blockStart(rng.Start)
	total := blockCount(rng)
	res := &Result{Range: rng, Blocks: total}

	p.advance(StateValidated, Progress{TotalBlocks: total, Address: first})
	p.cfg.logger.Debug("flasher: image range validated",
		"range", rng.String(), "blocks", total)

	// erase
	if err := p.dev.EraseFlash(ctx, first/2, total*BlockWords); err != nil {
		return nil, p.fail(fmt.Errorf("%w at 0x%04X (%d blocks): %w", ErrEraseFailed, first/2, total, err))
	}
	p.advance(StateErased, Progress{TotalBlocks: total, Address: first})

	// write
	p.state = StateWriting

	var sum Checksum
	buf := make([]byte, BlockBytes)
	addr := first
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(err)
		}

		blank := !readBlock(img, addr, buf)
		sum.AddBlock(buf)

		if blank {
			res.Skipped++
		} else {
			retried, err := p.writeBlock(ctx, addr, buf)
			if retried {
				res.Retries++
			}
			if err != nil {
				return nil, p.fail(err)
			}
			res.Written++
		}

		p.report(Progress{
			State:       StateWriting,
			Block:       i + 1,
			TotalBlocks: total,
			Address:     addr,
			Written:     res.Written,
			Skipped:     res.Skipped,
		})
		addr += BlockBytes
	}

	// verify
	p.advance(StateVerifying, Progress{Block: total, TotalBlocks: total, Written: res.Written, Skipped: res.Skipped})

	length := total * BlockBytes
	deviceSum, err := p.dev.CalcChecksum(ctx, first/2, length)
	if err != nil {
		return nil, p.fail(fmt.Errorf("%w: %w", ErrChecksumFailed, err))
	}
	if Checksum(deviceSum) != sum {
		return nil, p.fail(&ChecksumMismatchError{
			Address:  first,
			Length:   length,
			Expected: sum,
			Actual:   Checksum(deviceSum),
		})
	}

	res.Checksum = sum
	res.Elapsed = time.Since(begin)

	p.advance(StateSucceeded, Progress{Block: total, TotalBlocks: total, Written: res.Written, Skipped: res.Skipped})
	p.cfg.logger.Info("flasher: programming succeeded",
		"range", rng.String(),
		"written", res.Written,
		"skipped", res.Skipped,
		"retries", res.Retries,
		"checksum", sum.String(),
		"elapsed", res.Elapsed.String(),
	)

	return res, nil
}

// writeBlock writes one block, retrying once. The first attempt is quiet;
// its failure is expected now and then on a marginal line.
func (p *Programmer) writeBlock(ctx context.Context, addr uint32, buf []byte) (bool, error) {
	err := p.dev.WriteFlash(ctx, addr/2, buf, bootloader.Quietly())
	if err == nil {
		return false, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, err
	}

	p.cfg.logger.Debug("flasher: retrying block", "address", fmt.Sprintf("0x%04X", addr/2), "error", err)

	if err := p.dev.WriteFlash(ctx, addr/2, buf); err != nil {
		return true, &BlockWriteError{Address: addr, Err: err}
	}

	return true, nil
}

func (p *Programmer) advance(s State, pr Progress) {
	p.state = s
	pr.State = s
	p.report(pr)
}

func (p *Programmer) report(pr Progress) {
	if p.cfg.progress != nil {
		p.cfg.progress(pr)
	}
}

func (p *Programmer) fail(err error) error {
	p.state = StateFailed
	p.report(Progress{State: StateFailed})
	p.cfg.logger.Error("flasher: programming failed", "error", err)

	return err
}
