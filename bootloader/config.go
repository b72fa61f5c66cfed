package bootloader

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-picloader/logger"
)

// Speed selects one of the two line rates supported by the adapter.
type Speed int

const (
	// SpeedFast is 921600 baud, the default.
	SpeedFast Speed = iota
	// SpeedSlow is 115200 baud, for adapters or cables that cannot keep up.
	SpeedSlow
)

// Baud rates of the two speeds.
const (
	BaudRateFast = 921600
	BaudRateSlow = 115200
)

// BaudRate returns the line rate in bit/s.
func (s Speed) BaudRate() int {
	if s == SpeedSlow {
		return BaudRateSlow
	}

	return BaudRateFast
}

func (s Speed) String() string {
	if s == SpeedSlow {
		return "slow"
	}

	return "fast"
}

// Default timing values.
const (
	DefaultByteTimeout     = 200 * time.Millisecond // per write or read call
	DefaultBaudDetectDelay = 100 * time.Microsecond // after the sync byte
	DefaultResponseTimeout = 100 * time.Millisecond // until the response sync byte
	DefaultTailTimeout     = 200 * time.Millisecond // waiting for trailing garbage

	// DefaultTailLength is the number of trailing bytes drained after a response.
	DefaultTailLength = 4
)

// Timing limits.
const (
	MinByteTimeout     = 10 * time.Millisecond
	MaxByteTimeout     = 10 * time.Second
	MinResponseTimeout = 10 * time.Millisecond
	MaxResponseTimeout = 30 * time.Second
	MaxBaudDetectDelay = 100 * time.Millisecond
	MaxTailTimeout     = 5 * time.Second
)

// Config holds the configuration of a bootloader transport.
type Config struct {
	speed Speed

	byteTimeout     time.Duration
	baudDetectDelay time.Duration
	responseTimeout time.Duration
	tailTimeout     time.Duration
	tailLength      int

	logger logger.Logger
}

// NewConfig creates a configuration with defaults, then applies opts in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		speed:           SpeedFast,
		byteTimeout:     DefaultByteTimeout,
		baudDetectDelay: DefaultBaudDetectDelay,
		responseTimeout: DefaultResponseTimeout,
		tailTimeout:     DefaultTailTimeout,
		tailLength:      DefaultTailLength,
		logger:          logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// Speed returns the selected line speed.
func (cfg *Config) Speed() Speed { return cfg.speed }

// BaudRate returns the line rate of the selected speed.
func (cfg *Config) BaudRate() int { return cfg.speed.BaudRate() }

// ByteTimeout returns the timeout for each write or read call.
func (cfg *Config) ByteTimeout() time.Duration { return cfg.byteTimeout }

// BaudDetectDelay returns the pause between the sync byte and the frame.
func (cfg *Config) BaudDetectDelay() time.Duration { return cfg.baudDetectDelay }

// ResponseTimeout returns the base timeout for the response sync byte.
func (cfg *Config) ResponseTimeout() time.Duration { return cfg.responseTimeout }

// TailTimeout returns how long trailing bytes are awaited after a response.
func (cfg *Config) TailTimeout() time.Duration { return cfg.tailTimeout }

// TailLength returns the maximum number of trailing bytes drained.
func (cfg *Config) TailLength() int { return cfg.tailLength }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithSpeed selects the line speed.
func WithSpeed(s Speed) Option {
	return optFunc(func(cfg *Config) error {
		if s != SpeedFast && s != SpeedSlow {
			return fmt.Errorf("bootloader: unknown speed %d", s)
		}
		cfg.speed = s

		return nil
	})
}

// WithLowSpeed selects 115200 baud when low is true.
func WithLowSpeed(low bool) Option {
	return optFunc(func(cfg *Config) error {
		if low {
			cfg.speed = SpeedSlow
		} else {
			cfg.speed = SpeedFast
		}

		return nil
	})
}

// WithByteTimeout sets the timeout applied to every write and read call.
func WithByteTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinByteTimeout || d > MaxByteTimeout {
			return fmt.Errorf("bootloader: byte timeout %v out of range [%v, %v]", d, MinByteTimeout, MaxByteTimeout)
		}
		cfg.byteTimeout = d

		return nil
	})
}

// WithResponseTimeout sets the base timeout for the response sync byte.
// Commands that keep the device busy add their own extra time on top.
func WithResponseTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinResponseTimeout || d > MaxResponseTimeout {
			return fmt.Errorf("bootloader: response timeout %v out of range [%v, %v]",
				d, MinResponseTimeout, MaxResponseTimeout)
		}
		cfg.responseTimeout = d

		return nil
	})
}

// WithBaudDetectDelay sets the pause between the sync byte and the frame.
func WithBaudDetectDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxBaudDetectDelay {
			return fmt.Errorf("bootloader: baud detect delay %v out of range [0, %v]", d, MaxBaudDetectDelay)
		}
		cfg.baudDetectDelay = d

		return nil
	})
}

// WithTailTimeout sets how long trailing bytes are awaited after a response.
// Zero disables the drain.
func WithTailTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxTailTimeout {
			return fmt.Errorf("bootloader: tail timeout %v out of range [0, %v]", d, MaxTailTimeout)
		}
		cfg.tailTimeout = d

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("bootloader: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
