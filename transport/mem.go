package transport

import (
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
)

const (
	memRouterQueue = 1024
	memPeerQueue   = 16
)

// hub is the process-wide registry of mem:// endpoints.
var hub = &memHub{routers: make(map[string]*memRouter)}

type memHub struct {
	mu      sync.Mutex
	routers map[string]*memRouter
}

func (h *memHub) listen(name string) (*memRouter, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.routers[name]; ok {
		return nil, fmt.Errorf("mem://%s: address already in use", name)
	}
	r := &memRouter{
		name:  name,
		inbox: make(chan zmq4.Msg, memRouterQueue),
		done:  make(chan struct{}),
		peers: make(map[string]*memReq),
	}
	h.routers[name] = r
	return r, nil
}

func (h *memHub) dial(name string, identity []byte) (*memReq, error) {
	h.mu.Lock()
	r := h.routers[name]
	h.mu.Unlock()
	if r == nil {
		return nil, fmt.Errorf("mem://%s: %w", name, ErrNoEndpoint)
	}
	if len(identity) == 0 {
		identity = []byte(uuid.NewString())
	}
	return r.attach(identity)
}

func (h *memHub) remove(r *memRouter) {
	h.mu.Lock()
	if h.routers[r.name] == r {
		delete(h.routers, r.name)
	}
	h.mu.Unlock()
}

// memRouter is the bound side of a mem:// endpoint.
type memRouter struct {
	name  string
	inbox chan zmq4.Msg
	done  chan struct{}
	once  sync.Once

	mu    sync.Mutex
	peers map[string]*memReq
}

func (r *memRouter) attach(identity []byte) (*memReq, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
		return nil, ErrClosed
	default:
	}
	if _, ok := r.peers[string(identity)]; ok {
		return nil, fmt.Errorf("%q: %w", identity, ErrIdentityInUse)
	}
	p := &memReq{
		id:     identity,
		router: r,
		inbox:  make(chan zmq4.Msg, memPeerQueue),
		done:   make(chan struct{}),
	}
	r.peers[string(identity)] = p
	return p, nil
}

func (r *memRouter) detach(p *memReq) {
	r.mu.Lock()
	if r.peers[string(p.id)] == p {
		delete(r.peers, string(p.id))
	}
	r.mu.Unlock()
}

func (r *memRouter) Recv() (zmq4.Msg, error) {
	select {
	case msg := <-r.inbox:
		return msg, nil
	case <-r.done:
		return zmq4.Msg{}, ErrClosed
	}
}

func (r *memRouter) Send(msg zmq4.Msg) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	if len(msg.Frames) < 2 {
		return fmt.Errorf("router send of %d frames: %w", len(msg.Frames), ErrInvalidMessage)
	}
	r.mu.Lock()
	p := r.peers[string(msg.Frames[0])]
	r.mu.Unlock()
	if p == nil {
		return fmt.Errorf("%q: %w", msg.Frames[0], ErrUnknownPeer)
	}
	return p.deliver(zmq4.NewMsgFrom(msg.Frames[1:]...), r.done)
}

func (r *memRouter) Close() error {
	r.once.Do(func() {
		close(r.done)
		hub.remove(r)
	})
	return nil
}

// memReq is the connecting side of a mem:// endpoint.
type memReq struct {
	id     []byte
	router *memRouter
	inbox  chan zmq4.Msg
	done   chan struct{}
	once   sync.Once
}

func (p *memReq) deliver(msg zmq4.Msg, routerDone <-chan struct{}) error {
	select {
	case p.inbox <- msg:
		return nil
	case <-p.done:
		return fmt.Errorf("%q: %w", p.id, ErrUnknownPeer)
	case <-routerDone:
		return ErrClosed
	}
}

func (p *memReq) Send(msg zmq4.Msg) error {
	frames := make([][]byte, 0, len(msg.Frames)+2)
	frames = append(frames, p.id, nil)
	frames = append(frames, msg.Frames...)
	select {
	case p.router.inbox <- zmq4.NewMsgFrom(frames...):
		return nil
	case <-p.done:
		return ErrClosed
	case <-p.router.done:
		return ErrClosed
	}
}

func (p *memReq) Recv() (zmq4.Msg, error) {
	select {
	case msg := <-p.inbox:
		if len(msg.Frames) > 1 && len(msg.Frames[0]) == 0 {
			msg.Frames = msg.Frames[1:]
		}
		return msg, nil
	case <-p.done:
		return zmq4.Msg{}, ErrClosed
	case <-p.router.done:
		return zmq4.Msg{}, ErrClosed
	}
}

func (p *memReq) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.router.detach(p)
	})
	return nil
}
