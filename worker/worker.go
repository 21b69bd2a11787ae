// Package worker is the backend side of the broker: it announces READY and
// then answers exactly one reply per job until its socket closes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-lbbroker/codec"
	"github.com/mrjvadi/go-lbbroker/transport"
)

// ReadyMarker must match the broker's.
const ReadyMarker = "READY"

var (
	ErrMalformedJob = errors.New("worker: malformed job envelope")
	ErrHandlerPanic = errors.New("worker: handler panic")
)

type Worker struct {
	sock    transport.Socket
	handler HandlerFunc
	failure FailureFunc
	codec   codec.Codec
	logger  *zap.Logger
	id      string
}

func New(sock transport.Socket, handler HandlerFunc, options ...Option) *Worker {
	w := &Worker{
		sock:    sock,
		handler: handler,
		codec:   codec.JSON(),
		logger:  zap.NewNop(),
	}
	for _, opt := range options {
		opt(w)
	}
	if w.failure == nil {
		w.failure = w.defaultFailure
	}
	w.logger = w.logger.With(zap.String("worker", w.id))
	return w
}

// Run connects the worker to the loop. It returns nil once ctx is done or,
// after READY went out, once the broker has closed the backend. Other socket
// errors are returned.
func Run(ctx context.Context, sock transport.Socket, handler HandlerFunc, options ...Option) error {
	return New(sock, handler, options...).Run(ctx)
}

func (w *Worker) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = w.sock.Close() })
	defer stop()
	defer w.sock.Close()

	if err := w.sock.Send(zmq4.NewMsgString(ReadyMarker)); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("send ready: %w", err)
	}
	w.logger.Debug("worker ready")

	for {
		msg, err := w.sock.Recv()
		if err != nil {
			return w.exit(ctx, fmt.Errorf("recv job: %w", err))
		}
		if err := w.sock.Send(w.answer(ctx, msg.Frames)); err != nil {
			return w.exit(ctx, fmt.Errorf("send reply: %w", err))
		}
	}
}

func (w *Worker) exit(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		w.logger.Debug("worker stopped")
		return nil
	case brokerGone(err):
		w.logger.Info("broker closed the backend, worker stopping", zap.Error(err))
		return nil
	}
	return err
}

// brokerGone reports errors a REQ socket returns once its peer has shut down:
// zmq4 surfaces io.EOF, mem:// surfaces ErrClosed.
func brokerGone(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, transport.ErrClosed)
}

// answer builds the outgoing message for one (client, "", payload) job.
func (w *Worker) answer(ctx context.Context, frames [][]byte) zmq4.Msg {
	if len(frames) != 3 || len(frames[1]) != 0 {
		w.logger.Warn("malformed job", zap.Int("frames", len(frames)))
		if len(frames) == 0 {
			return zmq4.NewMsgString(ReadyMarker)
		}
		return zmq4.NewMsgFrom(frames[0], nil, w.failure(ErrMalformedJob))
	}

	c := &Context{
		ctx:      ctx,
		client:   frames[0],
		payload:  frames[2],
		workerID: w.id,
		codec:    w.codec,
	}
	return zmq4.NewMsgFrom(frames[0], nil, w.serve(c))
}

func (w *Worker) serve(c *Context) (reply []byte) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			w.logger.Error("handler panicked", zap.Any("panic", r))
			reply = w.failure(err)
		}
	}()

	out, err := w.handler(c)
	if err != nil {
		w.logger.Warn("handler failed", zap.Error(err))
		return w.failure(err)
	}
	return out
}

func (w *Worker) defaultFailure(err error) []byte {
	b, mErr := w.codec.Marshal(map[string]any{"error": err.Error()})
	if mErr != nil {
		return []byte(err.Error())
	}
	return b
}
