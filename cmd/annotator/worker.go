package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mrjvadi/go-lbbroker/annotate"
	"github.com/mrjvadi/go-lbbroker/codec"
	"github.com/mrjvadi/go-lbbroker/logging"
	"github.com/mrjvadi/go-lbbroker/supervisor"
	"github.com/mrjvadi/go-lbbroker/transport"
	"github.com/mrjvadi/go-lbbroker/worker"
)

// runWorker is the child process the supervisor starts for each worker. It
// logs JSON to stderr, which the parent relays into its own log.
func runWorker(opts Options) int {
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}
	cfg.Log.Outputs = []string{"stderr"}
	cfg.Log.Format = "json"
	cfg.Log.Rotation.Enable = false

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to setup logger:", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id := supervisor.WorkerID(opts.WorkerID)
	logger = logger.With(zap.String("worker", id), zap.Int("pid", os.Getpid()))

	router, err := annotate.BuildRouter(ctx, cfg.Annotate, logger)
	if err != nil {
		logger.Error("failed to load languages", zap.Error(err))
		return 1
	}
	svc := annotate.NewService(router, cfg.Annotate.Prefix, logger)
	c, _ := codec.Lookup(cfg.Service.Codec)

	tc := transport.NewContext(ctx, transport.WithLogger(logger))
	defer tc.Term()
	sock, err := tc.Req(cfg.Service.Backend, id)
	if err != nil {
		logger.Error("failed to connect to backend", zap.Error(err))
		return 1
	}

	err = worker.Run(ctx, sock, svc.Handle,
		worker.WithID(id),
		worker.WithCodec(c),
		worker.WithFailure(svc.Failure(c)),
		worker.WithLogger(logger),
	)
	if err != nil {
		logger.Error("worker stopped", zap.Error(err))
		return 1
	}
	return 0
}
