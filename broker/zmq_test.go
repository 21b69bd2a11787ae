package broker

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/mrjvadi/go-lbbroker/transport"
	"github.com/mrjvadi/go-lbbroker/worker"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func recvWithin(t *testing.T, s transport.Socket, d time.Duration) zmq4.Msg {
	t.Helper()
	ch := make(chan zmq4.Msg, 1)
	errc := make(chan error, 1)
	go func() {
		m, err := s.Recv()
		if err != nil {
			errc <- err
			return
		}
		ch <- m
	}()
	select {
	case m := <-ch:
		return m
	case err := <-errc:
		t.Fatalf("recv: %v", err)
	case <-time.After(d):
		t.Fatalf("no reply within %s", d)
	}
	return zmq4.Msg{}
}

// Real zmq4 sockets: a tcp frontend and either a tcp or an ipc backend, two
// REQ workers and six REQ clients taking turns.
func TestZMQEndToEnd(t *testing.T) {
	cases := map[string]func(t *testing.T) string{
		"tcp": func(t *testing.T) string { return fmt.Sprintf("tcp://127.0.0.1:%d", freePort(t)) },
		"ipc": func(t *testing.T) string { return "ipc://" + filepath.Join(t.TempDir(), "backend.ipc") },
	}
	for name, backendAddr := range cases {
		t.Run(name, func(t *testing.T) {
			front := fmt.Sprintf("tcp://*:%d", freePort(t))
			back := backendAddr(t)

			tc := transport.NewContext(context.Background())
			b, err := Bind(tc, front, back)
			if err != nil {
				t.Fatalf("bind: %v", err)
			}
			done := make(chan error, 1)
			go func() { done <- b.Run(context.Background()) }()

			wctx, stopWorkers := context.WithCancel(context.Background())
			defer stopWorkers()
			workerDone := make(chan error, 2)
			for i := range 2 {
				id := fmt.Sprintf("Worker-%d", i)
				sock, err := tc.Req(transport.ConnectAddr(back), id)
				if err != nil {
					t.Fatalf("worker dial: %v", err)
				}
				go func() {
					workerDone <- worker.Run(wctx, sock, func(c *worker.Context) ([]byte, error) {
						return []byte(c.WorkerID() + "|" + string(c.Payload())), nil
					}, worker.WithID(id))
				}()
			}

			deadline := time.Now().Add(5 * time.Second)
			for b.Stats().Ready < 2 {
				if time.Now().After(deadline) {
					t.Fatalf("workers never became ready: %+v", b.Stats())
				}
				time.Sleep(10 * time.Millisecond)
			}

			var served []string
			for i := range 6 {
				c, err := tc.Req(transport.ConnectAddr(front), fmt.Sprintf("client-%d", i))
				if err != nil {
					t.Fatalf("client dial: %v", err)
				}
				body := fmt.Sprintf("job-%d", i)
				if err := c.Send(zmq4.NewMsgString(body)); err != nil {
					t.Fatalf("client send: %v", err)
				}
				m := recvWithin(t, c, 5*time.Second)
				if len(m.Frames) != 1 {
					t.Fatalf("client %d got frames %q", i, m.Frames)
				}
				who, got, ok := strings.Cut(string(m.Frames[0]), "|")
				if !ok || got != body {
					t.Fatalf("client %d got %q, want %q", i, got, body)
				}
				served = append(served, who)
			}

			// the worker that answered goes to the back of the queue
			for i := 2; i < len(served); i++ {
				if served[i] != served[i-2] || served[i] == served[i-1] {
					t.Fatalf("not round robin: %v", served)
				}
			}

			// Replied is counted after the frontend send returns
			want := Stats{Ready: 2, Dispatched: 6, Replied: 6}
			deadline = time.Now().Add(2 * time.Second)
			for b.Stats() != want {
				if time.Now().After(deadline) {
					t.Fatalf("stats = %+v, want %+v", b.Stats(), want)
				}
				time.Sleep(5 * time.Millisecond)
			}

			b.Interrupt().Set()
			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("run: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("broker did not stop")
			}
			stopWorkers()
			for range 2 {
				select {
				case err := <-workerDone:
					if err != nil {
						t.Fatalf("worker: %v", err)
					}
				case <-time.After(5 * time.Second):
					t.Fatalf("worker did not stop")
				}
			}
		})
	}
}
