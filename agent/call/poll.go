package call

import (
	"context"
	"time"
)

// PollConfig is the POLL_* block controlling status polling of live calls.
type PollConfig struct {
	Interval    time.Duration `envconfig:"INTERVAL" split_words:"true" default:"5s"`
	Multiplier  float64       `envconfig:"MULTIPLIER" split_words:"true" default:"2"`
	MaxInterval time.Duration `envconfig:"MAX_INTERVAL" split_words:"true" default:"30s"`
	MaxWait     time.Duration `envconfig:"MAX_WAIT" split_words:"true" default:"15m"`

	// MaxStatusErrors is the number of consecutive failed status fetches
	// after which the call is abandoned and hung up.
	MaxStatusErrors int `envconfig:"MAX_STATUS_ERRORS" split_words:"true" default:"3"`
}

func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    5 * time.Second,
		Multiplier:  2,
		MaxInterval: 30 * time.Second,
		MaxWait:     15 * time.Minute,

		MaxStatusErrors: 3,
	}
}

func (c PollConfig) normalized() PollConfig {
	def := DefaultPollConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.Multiplier < 1 {
		c.Multiplier = 1
	}
	if c.MaxInterval < c.Interval {
		c.MaxInterval = c.Interval
	}
	if c.MaxWait <= 0 {
		c.MaxWait = def.MaxWait
	}
	if c.MaxStatusErrors <= 0 {
		c.MaxStatusErrors = def.MaxStatusErrors
	}
	return c
}

func (c PollConfig) next(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * c.Multiplier)
	if next > c.MaxInterval {
		return c.MaxInterval
	}
	return next
}

// waitFunc blocks for d or until ctx is done.
type waitFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
