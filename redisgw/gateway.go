// Package redisgw feeds annotation jobs from a Redis stream into the broker.
//
// Producers add entries with Enqueue (fire and forget), Request (one
// subscription per call, never loses a reply) or RequestFast (one shared
// pattern subscription). The gateway reads the stream through a consumer
// group, forwards each payload to the broker and publishes rpc replies to
// the entry's reply_to channel. Every entry is acknowledged once handled.
package redisgw

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-lbbroker/client"
)

var ErrNoRequester = errors.New("redisgw: no broker client to forward jobs to")

type Gateway struct {
	rdb      *redis.Client
	stream   string
	group    string
	requests client.Requester

	timeout      time.Duration
	maxJobs      int
	pollBlock    time.Duration
	streamMaxLen int64
	consumerID   string
	logger       *zap.Logger

	// correlation ids are idBase.<seq in base36>
	idBase string
	seq    atomic.Uint64

	wg sync.WaitGroup

	replyOnce    sync.Once
	replyCancel  context.CancelFunc
	replyMu      sync.Mutex
	replyWaiters map[string]chan []byte // correlation id -> reply
}

// New returns a gateway on stream/group. r may be nil when the gateway is
// only used to produce jobs.
func New(rdb *redis.Client, stream, group string, r client.Requester, options ...Option) *Gateway {
	g := &Gateway{
		rdb:          rdb,
		stream:       stream,
		group:        group,
		requests:     r,
		timeout:      10 * time.Second,
		maxJobs:      16,
		pollBlock:    2 * time.Second,
		consumerID:   defaultConsumerID(),
		logger:       zap.NewNop(),
		replyWaiters: make(map[string]chan []byte),
	}
	for _, opt := range options {
		opt(g)
	}
	g.idBase = g.consumerID + "." + uuid.NewString()[:8]
	return g
}

// Run consumes the stream until ctx is done and waits for jobs in flight.
func (g *Gateway) Run(ctx context.Context) error {
	if g.requests == nil {
		return ErrNoRequester
	}
	if err := g.rdb.XGroupCreateMkStream(ctx, g.stream, g.group, "$").Err(); err != nil && !isGroupExists(err) {
		return fmt.Errorf("create consumer group: %w", err)
	}
	g.logger.Info("redis gateway consuming",
		zap.String("stream", g.stream),
		zap.String("group", g.group),
		zap.String("consumer", g.consumerID),
	)

	sem := make(chan struct{}, g.maxJobs)
	g.consumeStream(ctx, sem)
	g.wg.Wait()
	return nil
}

// Close stops the shared reply subscription.
func (g *Gateway) Close() error {
	if g.replyCancel != nil {
		g.replyCancel()
	}
	g.wg.Wait()
	return nil
}

func isGroupExists(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (g *Gateway) withConcurrency(sem chan struct{}, fn func()) {
	sem <- struct{}{}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() { <-sem }()
		fn()
	}()
}

func defaultConsumerID() string {
	host, _ := os.Hostname()
	if host == "" {
		host = "host"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// ensureReplySubscriber starts the reply:* subscription RequestFast shares.
func (g *Gateway) ensureReplySubscriber() {
	g.replyOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		g.replyCancel = cancel
		sub := g.rdb.PSubscribe(ctx, replyPrefix+"*")
		confirmCtx, done := context.WithTimeout(ctx, 5*time.Second)
		if _, err := sub.Receive(confirmCtx); err != nil {
			g.logger.Warn("reply subscription not confirmed", zap.Error(err))
		}
		done()
		ch := sub.Channel(redis.WithChannelSize(4096))

		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			<-ctx.Done()
			_ = sub.Close()
		}()

		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			for msg := range ch {
				id := extractReplyID(msg.Channel)
				if id == "" {
					continue
				}
				g.deliver(id, []byte(msg.Payload))
			}
		}()
	})
}

// deliver hands a reply to its waiter. Waiters register before their entry
// is added, so an unknown id belongs to another producer.
func (g *Gateway) deliver(id string, payload []byte) bool {
	g.replyMu.Lock()
	defer g.replyMu.Unlock()
	w, ok := g.replyWaiters[id]
	if !ok {
		return false
	}
	delete(g.replyWaiters, id)
	w <- payload // buffered, one reply per id
	return true
}

const replyPrefix = "reply:"

func extractReplyID(channel string) string {
	if strings.HasPrefix(channel, replyPrefix) && len(channel) > len(replyPrefix) {
		return channel[len(replyPrefix):]
	}
	return ""
}
