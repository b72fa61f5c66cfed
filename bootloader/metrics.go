package bootloader

import (
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Metrics contains atomic counters for a transport.
// They may be read from another goroutine while exchanges run, e.g. by a
// progress display.
type Metrics struct {
	// ExchangeCount indicates the number of completed request/response exchanges.
	ExchangeCount atomic.Uint64
	// FailureCount indicates the number of exchanges that returned an error.
	FailureCount atomic.Uint64
	// TimeoutCount indicates the number of failures caused by a timeout.
	TimeoutCount atomic.Uint64
	// BytesSent indicates the number of bytes written, sync bytes included.
	BytesSent atomic.Uint64
	// BytesRecv indicates the number of bytes read, drained tail bytes included.
	BytesRecv atomic.Uint64
	// TailBytes indicates the number of trailing bytes discarded after responses.
	TailBytes atomic.Uint64

	commands *xsync.MapOf[Command, *xsync.Counter]
}

func newMetrics() *Metrics {
	return &Metrics{
		commands: xsync.NewMapOf[Command, *xsync.Counter](),
	}
}

// CommandCount returns how many exchanges were started for cmd.
func (m *Metrics) CommandCount(cmd Command) int64 {
	c, ok := m.commands.Load(cmd)
	if !ok {
		return 0
	}

	return c.Value()
}

// CommandCounts returns a snapshot of the per-command exchange counts,
// ordered by command code.
func (m *Metrics) CommandCounts() []CommandCount {
	out := make([]CommandCount, 0, m.commands.Size())
	m.commands.Range(func(cmd Command, c *xsync.Counter) bool {
		out = append(out, CommandCount{Command: cmd, Count: c.Value()})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })

	return out
}

// CommandCount pairs a command with its exchange count.
type CommandCount struct {
	Command Command
	Count   int64
}

func (m *Metrics) incCommand(cmd Command) {
	c, _ := m.commands.LoadOrCompute(cmd, func() *xsync.Counter { return xsync.NewCounter() })
	c.Inc()
}

func (m *Metrics) incExchangeCount() {
	m.ExchangeCount.Add(1)
}

func (m *Metrics) incFailureCount() {
	m.FailureCount.Add(1)
}

func (m *Metrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *Metrics) addBytesSent(n int) {
	m.BytesSent.Add(uint64(n)) //nolint:gosec // n is a non-negative byte count
}

func (m *Metrics) addBytesRecv(n int) {
	m.BytesRecv.Add(uint64(n)) //nolint:gosec // n is a non-negative byte count
}

func (m *Metrics) addTailBytes(n int) {
	m.TailBytes.Add(uint64(n)) //nolint:gosec // n is a non-negative byte count
}
