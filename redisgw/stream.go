package redisgw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func (g *Gateway) consumeStream(ctx context.Context, sem chan struct{}) {
	for {
		if ctx.Err() != nil {
			return
		}

		res, err := g.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    g.group,
			Consumer: g.consumerID,
			Streams:  []string{g.stream, ">"},
			Count:    int64(cap(sem)),
			Block:    g.pollBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			g.logger.Warn("stream read failed", zap.Error(err))
			time.Sleep(150 * time.Millisecond)
			continue
		}

		for _, str := range res {
			for _, msg := range str.Messages {
				g.withConcurrency(sem, func() { g.routeMessage(ctx, msg) })
			}
		}
	}
}

func (g *Gateway) routeMessage(ctx context.Context, m redis.XMessage) {
	// acknowledged whatever happens: a job that failed once fails again
	defer func() {
		if err := g.rdb.XAck(context.WithoutCancel(ctx), g.stream, g.group, m.ID).Err(); err != nil {
			g.logger.Warn("ack failed", zap.String("id", m.ID), zap.Error(err))
		}
	}()

	typ, _ := m.Values[fieldType].(string)
	switch typ {
	case typTask:
		if _, err := g.handle(ctx, m.Values); err != nil {
			g.logger.Warn("task failed", zap.String("id", m.ID), zap.Error(err))
		}
	case typRPC:
		replyTo, _ := m.Values[fieldReplyTo].(string)
		if replyTo == "" {
			g.logger.Warn("rpc entry without reply_to", zap.String("id", m.ID))
			return
		}
		corrID, _ := m.Values[fieldCorrID].(string)
		env := replyEnvelope{CorrelationID: corrID}
		if reply, err := g.handle(ctx, m.Values); err != nil {
			env.Error = err.Error()
		} else {
			env.Body = reply
		}
		b, _ := json.Marshal(env)
		if err := publishLua.Run(context.WithoutCancel(ctx), g.rdb, []string{replyTo}, b).Err(); err != nil {
			g.logger.Warn("publish reply failed", zap.String("reply_to", replyTo), zap.Error(err))
		}
	default:
		g.logger.Warn("unknown entry type", zap.String("id", m.ID), zap.String("type", typ))
	}
}

// handle forwards one entry's payload to the broker.
func (g *Gateway) handle(ctx context.Context, values map[string]any) ([]byte, error) {
	if name, _ := values[fieldName].(string); name != JobAnnotate {
		return nil, fmt.Errorf("unknown job %q", name)
	}
	payload, ok := values[fieldPayload].(string)
	if !ok {
		return nil, errors.New("entry has no payload")
	}
	return g.requests.Request(ctx, []byte(payload), g.timeout)
}
