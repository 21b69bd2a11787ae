package broker

import (
	"go.uber.org/zap"
)

type Option func(*Broker)

func WithLogger(l *zap.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithInterrupt shares an interrupt flag, usually one from NotifyInterrupt.
func WithInterrupt(i *Interrupt) Option {
	return func(b *Broker) {
		if i != nil {
			b.intr = i
		}
	}
}

// WithTerminate registers the transport teardown run after both endpoints
// are closed.
func WithTerminate(fn func() error) Option {
	return func(b *Broker) {
		b.term = fn
	}
}
