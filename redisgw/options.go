package redisgw

import (
	"time"

	"go.uber.org/zap"
)

type Option func(*Gateway)

func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMaxJobs bounds the stream entries handled at once.
func WithMaxJobs(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxJobs = n
		}
	}
}

// WithStreamLength trims the stream to about n entries on every add. Zero
// leaves it untrimmed.
func WithStreamLength(n int64) Option {
	return func(g *Gateway) {
		if n >= 0 {
			g.streamMaxLen = n
		}
	}
}

// WithTimeout bounds each broker round trip.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithConsumerID(id string) Option {
	return func(g *Gateway) {
		if id != "" {
			g.consumerID = id
		}
	}
}

func withPollBlock(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.pollBlock = d
		}
	}
}
