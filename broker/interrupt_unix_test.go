//go:build unix

package broker

import (
	"os"
	"syscall"
	"testing"
	"time"
)

func TestNotifyInterruptOnSignal(t *testing.T) {
	i := NotifyInterrupt(syscall.SIGUSR1)
	defer i.Stop()

	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("find process: %v", err)
	}
	if err := p.Signal(syscall.SIGUSR1); err != nil {
		t.Fatalf("signal: %v", err)
	}
	select {
	case <-i.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("signal did not raise the flag")
	}
}
