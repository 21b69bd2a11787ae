package redisgw

import (
	"context"
	"time"
)

// RequestFast is Request over one shared reply:* subscription. It saves a
// subscribe round trip per call; a reply published while the subscription is
// reconnecting is lost and the call times out.
func (g *Gateway) RequestFast(ctx context.Context, payload []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = g.timeout
	}
	g.ensureReplySubscriber()

	corrID := g.correlationID()
	resultCh := make(chan []byte, 1)

	g.replyMu.Lock()
	g.replyWaiters[corrID] = resultCh
	g.replyMu.Unlock()

	forget := func() {
		g.replyMu.Lock()
		delete(g.replyWaiters, corrID)
		g.replyMu.Unlock()
	}

	ctxRW, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := g.add(ctxRW, typRPC, payload, replyPrefix+corrID, corrID); err != nil {
		forget()
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b := <-resultCh:
		return openEnvelope(b)
	case <-timer.C:
		forget()
		return nil, context.DeadlineExceeded
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	}
}
