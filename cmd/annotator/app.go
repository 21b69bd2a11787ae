package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-lbbroker/annotate"
	"github.com/mrjvadi/go-lbbroker/broker"
	"github.com/mrjvadi/go-lbbroker/client"
	"github.com/mrjvadi/go-lbbroker/codec"
	"github.com/mrjvadi/go-lbbroker/config"
	"github.com/mrjvadi/go-lbbroker/gateway"
	"github.com/mrjvadi/go-lbbroker/logging"
	"github.com/mrjvadi/go-lbbroker/mqttgw"
	"github.com/mrjvadi/go-lbbroker/redisgw"
	"github.com/mrjvadi/go-lbbroker/supervisor"
	"github.com/mrjvadi/go-lbbroker/transport"
	"github.com/mrjvadi/go-lbbroker/worker"
)

// loadConfig applies the command line on top of the configuration file.
func loadConfig(opts Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Port > 0 {
		cfg.Service.Port = opts.Port
	}
	if opts.Workers > 0 {
		cfg.Service.Workers = opts.Workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(opts Options) int {
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}
	if path := config.Used(opts.ConfigPath); path != "" {
		fmt.Println("Reading config from", path)
	}
	if opts.SaveConfig != "" {
		if err := config.Save(cfg, opts.SaveConfig); err != nil {
			fmt.Fprintln(os.Stderr, "failed to save config:", err)
			return 1
		}
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to setup logger:", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	jobCodec, _ := codec.Lookup(cfg.Service.Codec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// build the languages up front so a broken lexicon stops startup
	router, err := annotate.BuildRouter(ctx, cfg.Annotate, logger)
	if err != nil {
		logger.Error("failed to load languages", zap.Error(err))
		return 1
	}
	svc := annotate.NewService(router, cfg.Annotate.Prefix, logger)

	intr := broker.NotifyInterrupt(os.Interrupt, syscall.SIGTERM)
	defer intr.Stop()

	tc := transport.NewContext(ctx, transport.WithLogger(logger))
	b, err := broker.Bind(tc, cfg.Service.FrontendAddr(), cfg.Service.Backend,
		broker.WithLogger(logger.Named("broker")),
		broker.WithInterrupt(intr),
	)
	if err != nil {
		logger.Error("failed to bind broker endpoints", zap.Error(err))
		_ = tc.Term()
		return 1
	}

	sup := newSupervisor(cfg, opts, tc, svc, jobCodec, logger.Named("supervisor"))
	if err := sup.Start(ctx, cfg.Service.Workers); err != nil {
		logger.Error("failed to start workers", zap.Error(err))
		_ = b.Close()
		return 1
	}

	// workers must see the shutdown before the broker closes their backend
	go func() {
		select {
		case <-intr.Done():
			_ = sup.Close()
		case <-ctx.Done():
		}
	}()

	msg := "Starting Annotator Service with PID: " + strconv.Itoa(os.Getpid())
	logger.Info(msg,
		zap.String("frontend", cfg.Service.FrontendAddr()),
		zap.String("backend", cfg.Service.Backend),
		zap.Int("workers", cfg.Service.Workers),
		zap.String("worker_mode", cfg.Service.WorkerMode),
		zap.Strings("languages", router.Languages()),
	)
	fmt.Println(msg)

	gwCtx, stopGateways := context.WithCancel(ctx)
	var wg sync.WaitGroup
	startGateways(gwCtx, &wg, cfg, tc, b, jobCodec, intr, logger)

	err = b.Run(ctx)
	stopGateways()
	wg.Wait()
	_ = sup.Close()
	if err != nil {
		logger.Error("broker stopped with error", zap.Error(err))
		return 1
	}
	logger.Info("annotator stopped")
	return 0
}

func newSupervisor(cfg *config.Config, opts Options, tc *transport.Context, svc *annotate.Service, c codec.Codec, logger *zap.Logger) *supervisor.Supervisor {
	grace := time.Duration(cfg.Service.ShutdownGraceMS) * time.Millisecond
	if cfg.Service.WorkerMode == config.WorkerModeInProcess {
		return supervisor.NewInProcess(func(ctx context.Context, n int) error {
			id := supervisor.WorkerID(n)
			sock, err := tc.Req(cfg.Service.Backend, id)
			if err != nil {
				return err
			}
			return worker.Run(ctx, sock, svc.Handle,
				worker.WithID(id),
				worker.WithCodec(c),
				worker.WithFailure(svc.Failure(c)),
				worker.WithLogger(logger),
			)
		}, supervisor.WithLogger(logger), supervisor.WithGrace(grace))
	}

	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	configPath := config.Used(opts.ConfigPath)
	return supervisor.NewProcess(exe, func(n int) []string {
		args := []string{"worker", "--id", strconv.Itoa(n)}
		if configPath != "" {
			args = append(args, "--config", configPath)
		}
		return args
	}, supervisor.WithLogger(logger), supervisor.WithGrace(grace), supervisor.WithStdout(os.Stdout))
}

// startGateways runs every enabled gateway until ctx is done. A gateway that
// fails raises the interrupt so the whole service stops.
func startGateways(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, tc *transport.Context, b *broker.Broker, c codec.Codec, intr *broker.Interrupt, logger *zap.Logger) {
	gw := cfg.Gateway
	if !gw.HTTP.Enable && !gw.Redis.Enable && !gw.MQTT.Enable {
		return
	}
	timeout := time.Duration(gw.HTTP.RequestTimeoutMS) * time.Millisecond
	pool := client.New(tc, cfg.Service.FrontendAddr(),
		client.WithSize(gw.HTTP.PoolSize),
		client.WithTimeout(timeout),
		client.WithLogger(logger.Named("client")),
	)

	start := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				logger.Error("gateway failed", zap.String("gateway", name), zap.Error(err))
				intr.Set()
			}
		}()
	}

	if gw.HTTP.Enable {
		srv := gateway.New(gw.HTTP, pool,
			gateway.WithCodec(c),
			gateway.WithStats(b.Stats),
			gateway.WithLogger(logger.Named("http")),
		)
		start("http", func() error { return srv.Run(ctx) })
	}
	if gw.Redis.Enable {
		rdb := redis.NewClient(&redis.Options{
			Addr:     gw.Redis.Addr,
			Password: gw.Redis.Password,
			DB:       gw.Redis.DB,
		})
		rg := redisgw.New(rdb, gw.Redis.Stream, gw.Redis.Group, pool,
			redisgw.WithMaxJobs(gw.Redis.MaxJobs),
			redisgw.WithStreamLength(gw.Redis.StreamMaxLen),
			redisgw.WithTimeout(timeout),
			redisgw.WithLogger(logger.Named("redis")),
		)
		start("redis", func() error {
			defer rdb.Close()
			defer rg.Close()
			return rg.Run(ctx)
		})
	}
	if gw.MQTT.Enable {
		mg := mqttgw.New(gw.MQTT, pool,
			mqttgw.WithCodec(c),
			mqttgw.WithTimeout(timeout),
			mqttgw.WithLogger(logger.Named("mqtt")),
		)
		start("mqtt", func() error { return mg.Run(ctx) })
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		_ = pool.Close()
	}()
}
