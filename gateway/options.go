package gateway

import (
	"go.uber.org/zap"

	"github.com/mrjvadi/go-lbbroker/broker"
	"github.com/mrjvadi/go-lbbroker/codec"
)

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCodec sets the codec jobs are sent to the workers in.
func WithCodec(c codec.Codec) Option {
	return func(s *Server) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithStats adds broker counters to /health.
func WithStats(fn func() broker.Stats) Option {
	return func(s *Server) { s.stats = fn }
}
