package bootloader

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_CommandCounts(t *testing.T) {
	m := newMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.incCommand(CmdWriteFlash)
			}
			m.incCommand(CmdEraseFlash)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(800), m.CommandCount(CmdWriteFlash))
	assert.Equal(t, int64(8), m.CommandCount(CmdEraseFlash))
	assert.Equal(t, int64(0), m.CommandCount(CmdResetDevice))

	assert.Equal(t, []CommandCount{
		{Command: CmdWriteFlash, Count: 800},
		{Command: CmdEraseFlash, Count: 8},
	}, m.CommandCounts())
}
