// Package transport provides the framed multi-part sockets used between the
// broker, its workers and its clients.
//
// Every socket speaks zmq4.Msg. A ROUTER socket prepends the peer identity to
// each received message and routes outgoing messages on their first frame. A
// REQ socket prepends an empty delimiter on send and strips it on receive.
// tcp://, ipc:// and inproc:// endpoints are served by go-zeromq/zmq4; mem://
// endpoints are served in-process with the same framing.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"
)

var (
	ErrClosed         = errors.New("transport: socket closed")
	ErrUnknownPeer    = errors.New("transport: unknown peer")
	ErrIdentityInUse  = errors.New("transport: identity already connected")
	ErrNoEndpoint     = errors.New("transport: no such endpoint")
	ErrTerminated     = errors.New("transport: context terminated")
	ErrInvalidMessage = errors.New("transport: invalid message")
)

// Socket is the part of a zmq4.Socket the broker needs.
type Socket interface {
	Send(msg zmq4.Msg) error
	Recv() (zmq4.Msg, error)
	Close() error
}

type Option func(*Context)

func WithLogger(l *zap.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.logger = l
		}
	}
}

// Context owns every socket it creates. Term closes whatever is still open.
type Context struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu     sync.Mutex
	socks  map[*tracked]struct{}
	termed bool
}

func NewContext(parent context.Context, options ...Option) *Context {
	ctx, cancel := context.WithCancel(parent)
	c := &Context{
		ctx:    ctx,
		cancel: cancel,
		logger: zap.NewNop(),
		socks:  make(map[*tracked]struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Router binds a ROUTER socket on endpoint.
func (c *Context) Router(endpoint string) (Socket, error) {
	if err := c.alive(); err != nil {
		return nil, err
	}
	scheme, addr, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	var s Socket
	switch scheme {
	case "mem":
		s, err = hub.listen(addr)
	default:
		s, err = newZMQRouter(c.ctx, scheme, addr, endpoint, c.logger)
	}
	if err != nil {
		return nil, err
	}
	c.logger.Debug("router bound", zap.String("endpoint", endpoint))
	return c.track(s), nil
}

// Req connects a REQ socket to endpoint. An empty identity lets the
// transport pick one.
func (c *Context) Req(endpoint, identity string) (Socket, error) {
	if err := c.alive(); err != nil {
		return nil, err
	}
	scheme, addr, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	var s Socket
	switch scheme {
	case "mem":
		s, err = hub.dial(addr, []byte(identity))
	default:
		s, err = newZMQReq(c.ctx, endpoint, identity, c.logger)
	}
	if err != nil {
		return nil, err
	}
	c.logger.Debug("req connected", zap.String("endpoint", endpoint), zap.String("identity", identity))
	return c.track(s), nil
}

// Term closes all sockets still owned by the context and cancels it.
func (c *Context) Term() error {
	c.mu.Lock()
	if c.termed {
		c.mu.Unlock()
		return nil
	}
	c.termed = true
	open := make([]*tracked, 0, len(c.socks))
	for s := range c.socks {
		open = append(open, s)
	}
	c.mu.Unlock()

	var errs []error
	for _, s := range open {
		if err := s.Close(); err != nil && !errors.Is(err, ErrClosed) {
			errs = append(errs, err)
		}
	}
	c.cancel()
	return errors.Join(errs...)
}

func (c *Context) alive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.termed {
		return ErrTerminated
	}
	return nil
}

func (c *Context) track(s Socket) Socket {
	t := &tracked{Socket: s, owner: c}
	c.mu.Lock()
	c.socks[t] = struct{}{}
	c.mu.Unlock()
	return t
}

func (c *Context) forget(t *tracked) {
	c.mu.Lock()
	delete(c.socks, t)
	c.mu.Unlock()
}

// tracked makes Close idempotent and detaches the socket from its context.
type tracked struct {
	Socket
	owner *Context
	once  sync.Once
	err   error
}

func (t *tracked) Close() error {
	t.once.Do(func() {
		t.err = t.Socket.Close()
		t.owner.forget(t)
	})
	return t.err
}

func splitEndpoint(endpoint string) (scheme, addr string, err error) {
	scheme, addr, ok := strings.Cut(endpoint, "://")
	if !ok || scheme == "" || addr == "" {
		return "", "", fmt.Errorf("transport: malformed endpoint %q", endpoint)
	}
	switch scheme {
	case "tcp", "ipc", "inproc", "mem":
		return scheme, addr, nil
	default:
		return "", "", fmt.Errorf("transport: unsupported scheme %q", scheme)
	}
}

// ConnectAddr turns a bind endpoint into one peers on this host can dial.
func ConnectAddr(bind string) string {
	scheme, addr, ok := strings.Cut(bind, "://")
	if !ok || scheme != "tcp" {
		return bind
	}
	host, port, ok := strings.Cut(addr, ":")
	if !ok {
		return bind
	}
	switch host {
	case "*", "", "0.0.0.0":
		host = "127.0.0.1"
	}
	return "tcp://" + host + ":" + port
}
