// Package mqttgw answers annotation jobs published over MQTT. A job sent to
// <prefix>/requests/<id> is forwarded to the broker as is and the reply is
// published to <prefix>/replies/<id>.
package mqttgw

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-lbbroker/client"
	"github.com/mrjvadi/go-lbbroker/codec"
	"github.com/mrjvadi/go-lbbroker/config"
)

type Gateway struct {
	cfg      config.MQTTConfig
	requests client.Requester
	codec    codec.Codec
	timeout  time.Duration
	logger   *zap.Logger

	client mqtt.Client
	ctx    context.Context
	sem    chan struct{}
	wg     sync.WaitGroup

	handled atomic.Uint64
	failed  atomic.Uint64
}

func New(cfg config.MQTTConfig, r client.Requester, options ...Option) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		requests: r,
		codec:    codec.JSON(),
		timeout:  10 * time.Second,
		logger:   zap.NewNop(),
		sem:      make(chan struct{}, 16),
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

func RequestTopic(prefix, id string) string { return prefix + "/requests/" + id }

func ReplyTopic(prefix, id string) string { return prefix + "/replies/" + id }

// requestID extracts <id> from <prefix>/requests/<id>.
func requestID(prefix, topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, prefix+"/requests/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// Run connects, serves until ctx is done, then disconnects once the jobs in
// flight have been answered.
func (g *Gateway) Run(ctx context.Context) error {
	g.ctx = ctx
	opts := mqtt.NewClientOptions()
	opts.AddBroker(g.cfg.Broker)
	opts.SetClientID(g.cfg.ClientID)
	if g.cfg.Username != "" {
		opts.SetUsername(g.cfg.Username)
		opts.SetPassword(g.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOrderMatters(false)
	opts.OnConnect = func(c mqtt.Client) {
		// subscriptions do not survive a clean-session reconnect
		topic := RequestTopic(g.cfg.TopicPrefix, "+")
		if t := c.Subscribe(topic, byte(g.cfg.QoS), g.onMessage); t.WaitTimeout(5*time.Second) && t.Error() != nil {
			g.logger.Error("mqtt subscribe failed", zap.String("topic", topic), zap.Error(t.Error()))
			return
		}
		g.logger.Info("mqtt gateway subscribed", zap.String("broker", g.cfg.Broker), zap.String("topic", topic))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		g.logger.Warn("mqtt connection lost, reconnecting", zap.Error(err))
	}

	g.client = mqtt.NewClient(opts)
	token := g.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connect to %s: timeout", g.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", g.cfg.Broker, err)
	}

	<-ctx.Done()
	g.client.Unsubscribe(RequestTopic(g.cfg.TopicPrefix, "+")).WaitTimeout(time.Second)
	g.wg.Wait()
	g.client.Disconnect(250)
	g.logger.Info("mqtt gateway stopped",
		zap.Uint64("handled", g.handled.Load()),
		zap.Uint64("failed", g.failed.Load()),
	)
	return nil
}

func (g *Gateway) onMessage(c mqtt.Client, m mqtt.Message) {
	g.sem <- struct{}{}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() { <-g.sem }()

		topic, reply, ok := g.process(g.ctx, m.Topic(), m.Payload())
		if !ok {
			return
		}
		t := c.Publish(topic, byte(g.cfg.QoS), false, reply)
		if !t.WaitTimeout(2*time.Second) || t.Error() != nil {
			g.logger.Warn("mqtt reply not published", zap.String("topic", topic), zap.Error(t.Error()))
		}
	}()
}

// process forwards one job and returns where to publish what.
func (g *Gateway) process(ctx context.Context, topic string, payload []byte) (string, []byte, bool) {
	id, ok := requestID(g.cfg.TopicPrefix, topic)
	if !ok {
		g.logger.Warn("ignoring message on unexpected topic", zap.String("topic", topic))
		return "", nil, false
	}
	replyTopic := ReplyTopic(g.cfg.TopicPrefix, id)

	reply, err := g.requests.Request(ctx, payload, g.timeout)
	if err != nil {
		g.failed.Add(1)
		g.logger.Warn("mqtt job failed", zap.String("id", id), zap.Error(err))
		b, mErr := g.codec.Marshal(map[string]any{"error": err.Error()})
		if mErr != nil {
			b = []byte(err.Error())
		}
		return replyTopic, b, true
	}
	g.handled.Add(1)
	return replyTopic, reply, true
}
