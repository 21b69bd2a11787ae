package worker

import (
	"go.uber.org/zap"

	"github.com/mrjvadi/go-lbbroker/codec"
)

type Option func(*Worker)

func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

func WithCodec(c codec.Codec) Option {
	return func(w *Worker) {
		if c != nil {
			w.codec = c
		}
	}
}

func WithFailure(fn FailureFunc) Option {
	return func(w *Worker) {
		if fn != nil {
			w.failure = fn
		}
	}
}

// WithID names the worker in logs and in Context.WorkerID. The transport
// identity is chosen when the socket is dialled.
func WithID(id string) Option {
	return func(w *Worker) { w.id = id }
}
