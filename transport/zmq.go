package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"
)

const dialRetry = 250 * time.Millisecond

func newZMQRouter(ctx context.Context, scheme, addr, endpoint string, logger *zap.Logger) (Socket, error) {
	if scheme == "ipc" {
		// a crashed broker leaves its socket file behind
		if err := os.Remove(addr); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("remove stale ipc file %s: %w", addr, err)
		}
	}
	sck := zmq4.NewRouter(ctx, zmq4.WithLogger(zap.NewStdLog(logger)))
	if err := sck.Listen(endpoint); err != nil {
		_ = sck.Close()
		return nil, fmt.Errorf("listen %s: %w", endpoint, err)
	}
	return sck, nil
}

func newZMQReq(ctx context.Context, endpoint, identity string, logger *zap.Logger) (Socket, error) {
	opts := []zmq4.Option{
		zmq4.WithLogger(zap.NewStdLog(logger)),
		zmq4.WithDialerRetry(dialRetry),
	}
	if identity != "" {
		opts = append(opts, zmq4.WithID(zmq4.SocketIdentity(identity)))
	}
	sck := zmq4.NewReq(ctx, opts...)
	if err := sck.Dial(endpoint); err != nil {
		_ = sck.Close()
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return sck, nil
}
