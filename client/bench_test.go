package client

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// BenchmarkRequest_Parallel measures round trips through the broker to
// BENCH_WORKERS echo workers over mem://.
func BenchmarkRequest_Parallel(b *testing.B) {
	h := startBroker(b, fmt.Sprintf("bench-%d", time.Now().UnixNano()))
	for range getenvInt("BENCH_WORKERS", 4) {
		h.addWorker(b, echo)
	}
	p := New(h.tc, h.front, WithSize(getenvInt("BENCH_POOL", 32)))
	b.Cleanup(func() { _ = p.Close() })

	var failed atomic.Int64
	payload := []byte(`{"lang":"en","text":"i love my iphone"}`)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := p.Request(context.Background(), payload, 5*time.Second); err != nil {
				failed.Add(1)
			}
		}
	})
	b.StopTimer()
	if n := failed.Load(); n > 0 {
		b.Fatalf("%d requests failed", n)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	n, err := strconv.Atoi(getenv(key, ""))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
