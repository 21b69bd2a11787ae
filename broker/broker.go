// Package broker implements the load-balancing ROUTER/ROUTER broker that sits
// between clients (frontend) and annotation workers (backend).
//
// Workers announce themselves with a READY envelope and the broker keeps their
// identities in a FIFO readiness queue. Client jobs are read from the frontend
// only while that queue is non-empty; each job goes to the worker that has been
// idle the longest and the worker's reply is routed back to the client whose
// address travelled with the job. Payloads are never inspected.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-lbbroker/transport"
)

type Broker struct {
	frontend transport.Socket
	backend  transport.Socket
	term     func() error

	logger *zap.Logger
	intr   *Interrupt

	// touched only by the loop goroutine
	ready *readyQueue

	readyLen   atomic.Int64
	dispatched atomic.Uint64
	replied    atomic.Uint64
	dropped    atomic.Uint64

	running   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New wraps two already bound ROUTER sockets.
func New(frontend, backend transport.Socket, options ...Option) *Broker {
	b := &Broker{
		frontend: frontend,
		backend:  backend,
		logger:   zap.NewNop(),
		intr:     NewInterrupt(),
		ready:    newReadyQueue(),
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Bind creates and binds both endpoints on tc. The broker terminates tc on
// teardown.
func Bind(tc *transport.Context, frontendAddr, backendAddr string, options ...Option) (*Broker, error) {
	frontend, err := tc.Router(frontendAddr)
	if err != nil {
		return nil, fmt.Errorf("bind frontend: %w", err)
	}
	backend, err := tc.Router(backendAddr)
	if err != nil {
		_ = frontend.Close()
		return nil, fmt.Errorf("bind backend: %w", err)
	}
	options = append([]Option{WithTerminate(tc.Term)}, options...)
	return New(frontend, backend, options...), nil
}

// Interrupt returns the flag the loop watches.
func (b *Broker) Interrupt() *Interrupt { return b.intr }

func (b *Broker) Stats() Stats {
	return Stats{
		Ready:      int(b.readyLen.Load()),
		Dispatched: b.dispatched.Load(),
		Replied:    b.replied.Load(),
		Dropped:    b.dropped.Load(),
	}
}

type inbound struct {
	msg zmq4.Msg
	err error
}

// Run dispatches until the interrupt flag is raised (or ctx is done, which
// raises it) and then tears the endpoints down. A receive error on either
// endpoint ends the loop with that error.
func (b *Broker) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer b.Close()

	stop := context.AfterFunc(ctx, b.intr.Set)
	defer stop()

	quit := make(chan struct{})
	defer close(quit)
	backendC := pump(b.backend, quit)
	frontendC := pump(b.frontend, quit)

	b.logger.Info("broker running")
	for {
		// a nil channel is never selected: no idle worker, no intake
		var intake <-chan inbound
		if b.ready.Len() > 0 {
			intake = frontendC
		}

		select {
		case in := <-backendC:
			if in.err != nil {
				return fmt.Errorf("backend recv: %w", in.err)
			}
			b.handleBackend(in.msg.Frames)
		case in := <-intake:
			if in.err != nil {
				return fmt.Errorf("frontend recv: %w", in.err)
			}
			b.handleFrontend(in.msg.Frames)
		case <-b.intr.Done():
		}

		if b.intr.Raised() {
			b.logger.Info("interrupt observed, leaving dispatch loop", zap.Int("idle_workers", b.ready.Len()))
			return nil
		}
	}
}

// handleBackend processes (worker, "", READY) or (worker, "", client, "", reply).
func (b *Broker) handleBackend(frames [][]byte) {
	if len(frames) < 3 || !isDelimiter(frames[1]) {
		b.drop("backend", "malformed envelope", frames)
		return
	}
	worker, third := frames[0], frames[2]

	if b.ready.Len() == 0 {
		b.logger.Debug("worker available, resuming frontend intake", zap.ByteString("worker", worker))
	}
	if !b.ready.Push(worker) {
		b.logger.Warn("worker already idle, ignoring duplicate announcement", zap.ByteString("worker", worker))
	}
	b.readyLen.Store(int64(b.ready.Len()))

	if string(third) == ReadyMarker || len(frames) <= 3 {
		if string(third) != ReadyMarker {
			b.drop("backend", "reply without body", frames)
			return
		}
		b.logger.Debug("worker ready", zap.ByteString("worker", worker))
		return
	}
	if len(frames) != 5 || !isDelimiter(frames[3]) {
		b.drop("backend", "malformed reply", frames)
		return
	}

	client, reply := third, frames[4]
	if err := b.frontend.Send(zmq4.NewMsgFrom(client, nil, reply)); err != nil {
		b.dropped.Add(1)
		b.logger.Warn("reply not delivered", zap.ByteString("client", client), zap.Error(err))
		return
	}
	b.replied.Add(1)
}

// handleFrontend processes (client, "", request). It is only called while at
// least one worker is idle.
func (b *Broker) handleFrontend(frames [][]byte) {
	if len(frames) != 3 || !isDelimiter(frames[1]) {
		b.drop("frontend", "malformed envelope", frames)
		return
	}
	client, request := frames[0], frames[2]

	for {
		worker, ok := b.ready.Pop()
		if !ok {
			b.drop("frontend", "no reachable worker", frames)
			break
		}
		err := b.backend.Send(zmq4.NewMsgFrom(worker, nil, client, nil, request))
		if err == nil {
			b.dispatched.Add(1)
			break
		}
		b.logger.Warn("worker unreachable, trying next", zap.ByteString("worker", worker), zap.Error(err))
	}

	b.readyLen.Store(int64(b.ready.Len()))
	if b.ready.Len() == 0 {
		b.logger.Debug("no idle workers, pausing frontend intake")
	}
}

func (b *Broker) drop(side, reason string, frames [][]byte) {
	b.dropped.Add(1)
	b.logger.Warn("dropping envelope",
		zap.String("endpoint", side),
		zap.String("reason", reason),
		zap.Int("frames", len(frames)),
	)
}

// Close releases the backend, then the frontend, then the transport. It is
// safe to call more than once.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		var errs []error
		if err := b.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend: %w", err))
		}
		if err := b.frontend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close frontend: %w", err))
		}
		if b.term != nil {
			if err := b.term(); err != nil {
				errs = append(errs, fmt.Errorf("terminate transport: %w", err))
			}
		}
		b.closeErr = errors.Join(errs...)

		s := b.Stats()
		b.logger.Info("broker stopped",
			zap.Uint64("dispatched", s.Dispatched),
			zap.Uint64("replied", s.Replied),
			zap.Uint64("dropped", s.Dropped),
		)
	})
	return b.closeErr
}

// pump feeds one socket into a channel. The channel is unbuffered, so while
// the loop ignores it at most one message is held outside the socket.
func pump(s transport.Socket, quit <-chan struct{}) <-chan inbound {
	ch := make(chan inbound)
	go func() {
		for {
			msg, err := s.Recv()
			select {
			case ch <- inbound{msg: msg, err: err}:
			case <-quit:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}
