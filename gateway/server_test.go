package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mrjvadi/go-lbbroker/broker"
	"github.com/mrjvadi/go-lbbroker/client"
	"github.com/mrjvadi/go-lbbroker/codec"
	"github.com/mrjvadi/go-lbbroker/config"
)

// upper plays the workers: it decodes the job with the codec it was built
// with and adds an upper-cased copy of the text.
type upper struct {
	codec codec.Codec
	err   error
}

func (u upper) Request(_ context.Context, payload []byte, _ time.Duration) ([]byte, error) {
	if u.err != nil {
		return nil, u.err
	}
	var job map[string]any
	if err := u.codec.Unmarshal(payload, &job); err != nil {
		return nil, err
	}
	text, _ := job["text"].(string)
	job["x_upper"] = strings.ToUpper(text)
	return u.codec.Marshal(job)
}

func newServer(r client.Requester, opts ...Option) *httptest.Server {
	s := New(config.HTTPConfig{RequestTimeoutMS: 1000}, r, opts...)
	return httptest.NewServer(s.Handler())
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestQuery(t *testing.T) {
	ts := newServer(upper{codec: codec.MsgPack()}, WithCodec(codec.MsgPack()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/?lang=en&text=hello+world")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	out := decode(t, resp)
	if out["lang"] != "en" || out["x_upper"] != "HELLO WORLD" {
		t.Fatalf("unexpected reply %v", out)
	}
}

func TestQueryMissingArgument(t *testing.T) {
	ts := newServer(upper{codec: codec.JSON()})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/?lang=en")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if out := decode(t, resp); !strings.Contains(out["error"].(string), "text") {
		t.Fatalf("unexpected error %v", out)
	}
}

func TestPostAnnotate(t *testing.T) {
	ts := newServer(upper{codec: codec.JSON()})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/annotate", "application/json", strings.NewReader(`{"lang":"de","text":"ja","id":3}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	out := decode(t, resp)
	if out["x_upper"] != "JA" || out["id"] != 3.0 {
		t.Fatalf("unexpected reply %v", out)
	}

	resp, err = http.Post(ts.URL+"/annotate", "application/json", strings.NewReader(`[1,2]`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-object job accepted: %d", resp.StatusCode)
	}
}

func TestBrokerErrors(t *testing.T) {
	cases := map[error]int{
		client.ErrTimeout: http.StatusGatewayTimeout,
		client.ErrClosed:  http.StatusBadGateway,
		context.Canceled:  499,
	}
	for err, want := range cases {
		ts := newServer(upper{err: err})
		resp, gerr := http.Get(ts.URL + "/?lang=en&text=x")
		if gerr != nil {
			t.Fatalf("get: %v", gerr)
		}
		out := decode(t, resp)
		ts.Close()
		if resp.StatusCode != want || out["error"] == nil {
			t.Fatalf("%v: status %d body %v", err, resp.StatusCode, out)
		}
	}
}

func TestHealth(t *testing.T) {
	ts := newServer(upper{codec: codec.JSON()}, WithStats(func() broker.Stats {
		return broker.Stats{Ready: 2, Dispatched: 5}
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	out := decode(t, resp)
	if out["status"] != "ok" || out["idle_workers"] != 2.0 || out["dispatched"] != 5.0 {
		t.Fatalf("unexpected health %v", out)
	}
}

func TestWebSocket(t *testing.T) {
	ts := newServer(upper{codec: codec.CBOR()}, WithCodec(codec.CBOR()))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for _, text := range []string{"one", "two"} {
		if err := conn.WriteJSON(map[string]any{"lang": "en", "text": text}); err != nil {
			t.Fatalf("write: %v", err)
		}
		var out map[string]any
		if err := conn.ReadJSON(&out); err != nil {
			t.Fatalf("read: %v", err)
		}
		if out["x_upper"] != strings.ToUpper(text) {
			t.Fatalf("unexpected reply %v", out)
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out map[string]any
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("read: %v", err)
	}
	if out["error"] == nil {
		t.Fatalf("expected error reply, got %v", out)
	}
}
