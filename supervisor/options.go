package supervisor

import (
	"io"
	"time"

	"go.uber.org/zap"
)

type Option func(*Supervisor)

func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGrace bounds how long Close waits for a worker before killing it.
func WithGrace(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithEnv sets the child environment (nil inherits the parent's).
func WithEnv(env []string) Option {
	return func(s *Supervisor) { s.env = env }
}

// WithStdout receives the children's stdout; without it the output is discarded.
func WithStdout(w io.Writer) Option {
	return func(s *Supervisor) { s.stdout = w }
}
