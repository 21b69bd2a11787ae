// Package client sends jobs to the broker's frontend over a pool of REQ
// sockets. Each socket carries one request at a time.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-lbbroker/codec"
	"github.com/mrjvadi/go-lbbroker/transport"
)

var (
	ErrTimeout = errors.New("client: request timed out")
	ErrClosed  = errors.New("client: pool closed")
)

// Requester is what the gateways need from a client.
type Requester interface {
	Request(ctx context.Context, payload []byte, timeout time.Duration) ([]byte, error)
}

type Pool struct {
	tc       *transport.Context
	endpoint string
	timeout  time.Duration
	size     int
	logger   *zap.Logger

	slots chan struct{}
	idle  chan transport.Socket

	mu     sync.Mutex
	closed bool
}

// New creates a pool connecting to endpoint. Sockets are dialled on demand.
func New(tc *transport.Context, endpoint string, options ...Option) *Pool {
	p := &Pool{
		tc:       tc,
		endpoint: transport.ConnectAddr(endpoint),
		timeout:  10 * time.Second,
		size:     8,
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		opt(p)
	}
	p.slots = make(chan struct{}, p.size)
	p.idle = make(chan transport.Socket, p.size)
	return p
}

// Request sends payload and waits for the reply. A timeout of zero uses the
// pool default. A socket whose request timed out is closed, since a REQ
// socket cannot send again until it has received.
func (p *Pool) Request(ctx context.Context, payload []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = p.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, p.ctxErr(ctx)
	}
	defer func() { <-p.slots }()

	sock, err := p.get()
	if err != nil {
		return nil, err
	}

	type result struct {
		reply []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		if err := sock.Send(zmq4.NewMsg(payload)); err != nil {
			done <- result{err: fmt.Errorf("send: %w", err)}
			return
		}
		msg, err := sock.Recv()
		if err != nil {
			done <- result{err: fmt.Errorf("recv: %w", err)}
			return
		}
		if len(msg.Frames) == 0 {
			done <- result{err: fmt.Errorf("recv: %w", transport.ErrInvalidMessage)}
			return
		}
		done <- result{reply: msg.Frames[len(msg.Frames)-1]}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			_ = sock.Close()
			return nil, r.err
		}
		p.put(sock)
		return r.reply, nil
	case <-ctx.Done():
		_ = sock.Close()
		p.logger.Debug("request abandoned, socket discarded", zap.Error(ctx.Err()))
		return nil, p.ctxErr(ctx)
	}
}

func (p *Pool) ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

func (p *Pool) get() (transport.Socket, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	select {
	case s := <-p.idle:
		return s, nil
	default:
	}
	s, err := p.tc.Req(p.endpoint, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", p.endpoint, err)
	}
	return s, nil
}

func (p *Pool) put(s transport.Socket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = s.Close()
		return
	}
	select {
	case p.idle <- s:
	default:
		_ = s.Close()
	}
}

// Close closes idle sockets. Requests in flight close theirs on return.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for {
		select {
		case s := <-p.idle:
			_ = s.Close()
		default:
			return nil
		}
	}
}

// Annotate encodes job with c, sends it through r and decodes the reply.
func Annotate(ctx context.Context, r Requester, c codec.Codec, job map[string]any, timeout time.Duration) (map[string]any, error) {
	body, err := c.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	reply, err := r.Request(ctx, body, timeout)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := c.Unmarshal(reply, &out); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return out, nil
}
