package mqttgw

import (
	"time"

	"go.uber.org/zap"

	"github.com/mrjvadi/go-lbbroker/codec"
)

type Option func(*Gateway)

func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithCodec sets the codec failure replies are encoded with.
func WithCodec(c codec.Codec) Option {
	return func(g *Gateway) {
		if c != nil {
			g.codec = c
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxJobs bounds the jobs forwarded at once.
func WithMaxJobs(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.sem = make(chan struct{}, n)
		}
	}
}
