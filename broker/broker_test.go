package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/mrjvadi/go-lbbroker/transport"
)

// fakeSocket is a ROUTER stand-in driven directly by the tests.
type fakeSocket struct {
	name   string
	in     chan zmq4.Msg
	sent   chan zmq4.Msg
	done   chan struct{}
	once   sync.Once
	closes atomic.Int32
	order  *closeLog
	fail   map[string]bool // first-frame identities whose Send fails
}

type closeLog struct {
	mu    sync.Mutex
	names []string
}

func (l *closeLog) add(name string) {
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
}

func (l *closeLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func newFake(name string, order *closeLog) *fakeSocket {
	return &fakeSocket{
		name:  name,
		in:    make(chan zmq4.Msg, 64),
		sent:  make(chan zmq4.Msg, 64),
		done:  make(chan struct{}),
		order: order,
		fail:  map[string]bool{},
	}
}

func (f *fakeSocket) Recv() (zmq4.Msg, error) {
	select {
	case m := <-f.in:
		return m, nil
	case <-f.done:
		return zmq4.Msg{}, transport.ErrClosed
	}
}

func (f *fakeSocket) Send(m zmq4.Msg) error {
	if len(m.Frames) > 0 && f.fail[string(m.Frames[0])] {
		return transport.ErrUnknownPeer
	}
	f.sent <- m
	return nil
}

func (f *fakeSocket) Close() error {
	f.closes.Add(1)
	if f.order != nil {
		f.order.add(f.name)
	}
	f.once.Do(func() { close(f.done) })
	return nil
}

func frames(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		if p != "" {
			out[i] = []byte(p)
		}
	}
	return out
}

func msg(parts ...string) zmq4.Msg { return zmq4.NewMsgFrom(frames(parts...)...) }

func expectSent(t *testing.T, f *fakeSocket, want ...string) {
	t.Helper()
	select {
	case m := <-f.sent:
		if len(m.Frames) != len(want) {
			t.Fatalf("%s: sent %q, want %q", f.name, m.Frames, want)
		}
		for i := range want {
			if string(m.Frames[i]) != want[i] {
				t.Fatalf("%s: sent %q, want %q", f.name, m.Frames, want)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: nothing sent, want %q", f.name, want)
	}
}

func expectNothing(t *testing.T, f *fakeSocket) {
	t.Helper()
	select {
	case m := <-f.sent:
		t.Fatalf("%s: unexpected send %q", f.name, m.Frames)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestIdleWorkersAreServedOldestFirst(t *testing.T) {
	fe, be := newFake("frontend", nil), newFake("backend", nil)
	b := New(fe, be)

	for _, w := range []string{"Worker-1", "Worker-2", "Worker-3"} {
		b.handleBackend(frames(w, "", ReadyMarker))
	}
	for _, c := range []string{"c1", "c2", "c3"} {
		b.handleFrontend(frames(c, "", "job-"+c))
	}
	expectSent(t, be, "Worker-1", "", "c1", "", "job-c1")
	expectSent(t, be, "Worker-2", "", "c2", "", "job-c2")
	expectSent(t, be, "Worker-3", "", "c3", "", "job-c3")

	// a worker that replies goes to the back of the line
	b.handleBackend(frames("Worker-2", "", "c2", "", "done"))
	b.handleBackend(frames("Worker-1", "", "c1", "", "done"))
	b.handleFrontend(frames("c4", "", "job-c4"))
	expectSent(t, be, "Worker-2", "", "c4", "", "job-c4")
}

func TestDuplicateReadyIsQueuedOnce(t *testing.T) {
	b := New(newFake("frontend", nil), newFake("backend", nil))
	b.handleBackend(frames("Worker-1", "", ReadyMarker))
	b.handleBackend(frames("Worker-1", "", ReadyMarker))
	if got := b.Stats().Ready; got != 1 {
		t.Fatalf("ready = %d, want 1", got)
	}
	if snap := b.ready.Snapshot(); len(snap) != 1 || snap[0] != "Worker-1" {
		t.Fatalf("queue = %v", snap)
	}
}

func TestReplyRoutedToItsClient(t *testing.T) {
	fe, be := newFake("frontend", nil), newFake("backend", nil)
	b := New(fe, be)

	b.handleBackend(frames("Worker-1", "", ReadyMarker))
	b.handleBackend(frames("Worker-2", "", ReadyMarker))
	b.handleFrontend(frames("alice", "", "a"))
	b.handleFrontend(frames("bob", "", "b"))
	expectSent(t, be, "Worker-1", "", "alice", "", "a")
	expectSent(t, be, "Worker-2", "", "bob", "", "b")

	b.handleBackend(frames("Worker-2", "", "bob", "", "reply-b"))
	expectSent(t, fe, "bob", "", "reply-b")
	b.handleBackend(frames("Worker-1", "", "alice", "", "reply-a"))
	expectSent(t, fe, "alice", "", "reply-a")

	s := b.Stats()
	if s.Dispatched != 2 || s.Replied != 2 || s.Dropped != 0 || s.Ready != 2 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestMalformedEnvelopes(t *testing.T) {
	fe, be := newFake("frontend", nil), newFake("backend", nil)
	b := New(fe, be)

	// not queued: too short, or no delimiter
	b.handleBackend(frames("Worker-1", ""))
	b.handleBackend(frames("Worker-1", "x", ReadyMarker))
	if b.ready.Len() != 0 {
		t.Fatalf("malformed READY must not queue the sender")
	}

	// queued, reply dropped
	b.handleBackend(frames("Worker-1", "", "client", "junk", "reply"))
	b.handleBackend(frames("Worker-2", "", "client", "", "reply", "extra"))
	if b.ready.Len() != 2 {
		t.Fatalf("ready = %d, want 2", b.ready.Len())
	}
	expectNothing(t, fe)

	// frontend garbage does not consume a worker
	b.handleFrontend(frames("client", "", "a", "b"))
	b.handleFrontend(frames("client", "x", "a"))
	expectNothing(t, be)
	if b.ready.Len() != 2 {
		t.Fatalf("frontend garbage consumed a worker")
	}
	if got := b.Stats().Dropped; got != 6 {
		t.Fatalf("dropped = %d, want 6", got)
	}
}

func TestUnreachableWorkerIsSkipped(t *testing.T) {
	fe, be := newFake("frontend", nil), newFake("backend", nil)
	be.fail["gone"] = true
	b := New(fe, be)

	b.handleBackend(frames("gone", "", ReadyMarker))
	b.handleBackend(frames("Worker-2", "", ReadyMarker))
	b.handleFrontend(frames("c1", "", "job"))
	expectSent(t, be, "Worker-2", "", "c1", "", "job")
	if b.ready.Len() != 0 {
		t.Fatalf("ready = %d, want 0", b.ready.Len())
	}
}

func TestBackpressureHoldsJobsUntilReady(t *testing.T) {
	fe, be := newFake("frontend", nil), newFake("backend", nil)
	b := New(fe, be)
	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	fe.in <- msg("c1", "", "first")
	fe.in <- msg("c2", "", "second")
	expectNothing(t, be)
	if s := b.Stats(); s.Dropped != 0 || s.Dispatched != 0 {
		t.Fatalf("jobs touched without a worker: %+v", s)
	}

	be.in <- msg("Worker-1", "", ReadyMarker)
	expectSent(t, be, "Worker-1", "", "c1", "", "first")
	expectNothing(t, be)

	be.in <- msg("Worker-1", "", "c1", "", "r1")
	expectSent(t, fe, "c1", "", "r1")
	expectSent(t, be, "Worker-1", "", "c2", "", "second")

	b.Interrupt().Set()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestInterruptClosesEndpointsOnce(t *testing.T) {
	order := &closeLog{}
	fe, be := newFake("frontend", order), newFake("backend", order)
	var terms atomic.Int32
	b := New(fe, be, WithTerminate(func() error {
		terms.Add(1)
		order.add("context")
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()
	be.in <- msg("Worker-1", "", ReadyMarker)
	waitFor(t, "worker ready", func() bool { return b.Stats().Ready == 1 })

	b.Interrupt().Set()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not observe the interrupt")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if fe.closes.Load() != 1 || be.closes.Load() != 1 || terms.Load() != 1 {
		t.Fatalf("closes: frontend=%d backend=%d term=%d", fe.closes.Load(), be.closes.Load(), terms.Load())
	}
	got := order.get()
	want := []string{"backend", "frontend", "context"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("teardown order %v, want %v", got, want)
	}
}

func TestContextCancelRaisesInterrupt(t *testing.T) {
	b := New(newFake("frontend", nil), newFake("backend", nil))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if !b.Interrupt().Raised() {
		t.Fatalf("interrupt not raised by cancellation")
	}
	if err := b.Run(context.Background()); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning, got %v", err)
	}
}

func TestBackendFailureEndsRun(t *testing.T) {
	fe, be := newFake("frontend", nil), newFake("backend", nil)
	b := New(fe, be)
	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()
	_ = be.Close()
	err := <-done
	if !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if fe.closes.Load() != 1 {
		t.Fatalf("frontend not closed on error exit")
	}
}

// echoWorker speaks the REQ side of the backend protocol.
func echoWorker(t *testing.T, tc *transport.Context, backend, id string) {
	t.Helper()
	sock, err := tc.Req(backend, id)
	if err != nil {
		t.Fatalf("worker %s: %v", id, err)
	}
	go func() {
		if err := sock.Send(zmq4.NewMsgString(ReadyMarker)); err != nil {
			return
		}
		for {
			job, err := sock.Recv()
			if err != nil {
				return
			}
			client, body := job.Frames[0], job.Frames[2]
			reply := []byte(id + ":" + string(body))
			if err := sock.Send(zmq4.NewMsgFrom(client, nil, reply)); err != nil {
				return
			}
		}
	}()
}

func request(sock transport.Socket, body string) (string, error) {
	if err := sock.Send(zmq4.NewMsgString(body)); err != nil {
		return "", fmt.Errorf("client send: %w", err)
	}
	type result struct {
		m   zmq4.Msg
		err error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := sock.Recv()
		ch <- result{m, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("client recv: %w", r.err)
		}
		return string(r.m.Frames[len(r.m.Frames)-1]), nil
	case <-time.After(2 * time.Second):
		return "", fmt.Errorf("no reply for %q", body)
	}
}

func TestOneWorkerTwoClients(t *testing.T) {
	tc := transport.NewContext(context.Background())
	b, err := Bind(tc, "mem://one-worker-fe", "mem://one-worker-be")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	echoWorker(t, tc, "mem://one-worker-be", "Worker-0")
	c1, err := tc.Req("mem://one-worker-fe", "c1")
	if err != nil {
		t.Fatalf("c1: %v", err)
	}
	c2, err := tc.Req("mem://one-worker-fe", "c2")
	if err != nil {
		t.Fatalf("c2: %v", err)
	}

	var wg sync.WaitGroup
	got := make([]string, 2)
	errs := make([]error, 2)
	for i, c := range []transport.Socket{c1, c2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i], errs[i] = request(c, fmt.Sprintf("job-%d", i))
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		t.Fatal(err)
	}
	if got[0] != "Worker-0:job-0" || got[1] != "Worker-0:job-1" {
		t.Fatalf("replies crossed: %v", got)
	}

	b.Interrupt().Set()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := tc.Router("mem://one-worker-fe"); !errors.Is(err, transport.ErrTerminated) {
		t.Fatalf("transport context not terminated: %v", err)
	}
}

func TestClientWaitsForLateWorker(t *testing.T) {
	tc := transport.NewContext(context.Background())
	b, err := Bind(tc, "mem://late-fe", "mem://late-be")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer b.Close()
	go b.Run(context.Background())

	c, err := tc.Req("mem://late-fe", "c")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	type answer struct {
		body string
		err  error
	}
	reply := make(chan answer, 1)
	go func() {
		body, err := request(c, "hello")
		reply <- answer{body, err}
	}()

	time.Sleep(50 * time.Millisecond)
	if s := b.Stats(); s.Dispatched != 0 || s.Dropped != 0 {
		t.Fatalf("job moved without a worker: %+v", s)
	}
	echoWorker(t, tc, "mem://late-be", "Worker-7")
	got := <-reply
	if got.err != nil || got.body != "Worker-7:hello" {
		t.Fatalf("reply = %q, %v", got.body, got.err)
	}
}
