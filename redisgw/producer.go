package redisgw

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// correlationID is unique per gateway: two gateways in one process, or two
// processes sharing a consumer id, never hand out the same id.
func (g *Gateway) correlationID() string {
	return g.idBase + "." + strconv.FormatUint(g.seq.Add(1), 36)
}

// Enqueue adds a fire-and-forget job. The reply is discarded.
func (g *Gateway) Enqueue(ctx context.Context, payload []byte) (string, error) {
	return g.add(ctx, typTask, payload, "", "")
}

func (g *Gateway) add(ctx context.Context, typ string, payload []byte, replyTo, corrID string) (string, error) {
	return enqueueLua.Run(ctx, g.rdb, []string{g.stream},
		g.streamMaxLen, typ, JobAnnotate, payload, replyTo, corrID,
	).Text()
}

// Request adds an rpc job and waits for its reply. It subscribes to the
// reply channel before adding the entry, so the reply cannot be missed.
func (g *Gateway) Request(ctx context.Context, payload []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = g.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	corrID := g.correlationID()
	replyTo := replyPrefix + corrID
	sub := g.rdb.Subscribe(ctx, replyTo)
	defer sub.Close()

	// wait for the subscription confirmation
	if _, err := sub.Receive(ctx); err != nil {
		return nil, err
	}
	if _, err := g.add(ctx, typRPC, payload, replyTo, corrID); err != nil {
		return nil, err
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}
	return openEnvelope([]byte(msg.Payload))
}

func openEnvelope(b []byte) ([]byte, error) {
	var env replyEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	if env.Error != "" {
		return nil, errors.New(env.Error)
	}
	return env.Body, nil
}
