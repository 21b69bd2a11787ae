package broker

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
)

// Interrupt is a one-shot termination flag. Raising it never tears anything
// down by itself; the event loop observes it between dispatch cycles.
type Interrupt struct {
	raised atomic.Bool
	once   sync.Once
	done   chan struct{}

	stopOnce sync.Once
	stop     chan struct{}
}

func NewInterrupt() *Interrupt {
	return &Interrupt{done: make(chan struct{}), stop: make(chan struct{})}
}

// NotifyInterrupt raises the returned flag on the first of signals
// (os.Interrupt when none are given).
func NotifyInterrupt(signals ...os.Signal) *Interrupt {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt}
	}
	i := NewInterrupt()
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	go func() {
		defer signal.Stop(ch)
		select {
		case <-ch:
			i.Set()
		case <-i.stop:
		}
	}()
	return i
}

// Set raises the flag. Only the first call has an effect.
func (i *Interrupt) Set() {
	i.once.Do(func() {
		i.raised.Store(true)
		close(i.done)
	})
}

func (i *Interrupt) Raised() bool { return i.raised.Load() }

// Done is closed once the flag is raised, so a blocked loop wakes up.
func (i *Interrupt) Done() <-chan struct{} { return i.done }

// Stop releases the signal handler without raising the flag.
func (i *Interrupt) Stop() {
	i.stopOnce.Do(func() { close(i.stop) })
}
