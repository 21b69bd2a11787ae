package redisgw

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func newBenchGateways(b *testing.B) (consumer, producer *Gateway) {
	b.Helper()
	rdb := redisClient(b)
	stream := fmt.Sprintf("annotator:bench:%d", time.Now().UnixNano())

	consumer = New(rdb, stream, "annotators", upper{}, WithMaxJobs(1024), withPollBlock(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	producer = New(rdb, stream, "annotators", nil, WithStreamLength(100_000))
	b.Cleanup(func() {
		cancel()
		<-done
		_ = producer.Close()
		rdb.Del(context.Background(), stream)
	})
	time.Sleep(200 * time.Millisecond)
	return consumer, producer
}

func benchRPC(b *testing.B, call func(*Gateway, context.Context, []byte, time.Duration) ([]byte, error)) {
	_, producer := newBenchGateways(b)
	var failed atomic.Int64
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := call(producer, context.Background(), []byte("ping"), 5*time.Second); err != nil {
				failed.Add(1)
			}
		}
	})
	b.StopTimer()
	if n := failed.Load(); n > 0 {
		b.Fatalf("%d requests failed", n)
	}
}

func BenchmarkRequest(b *testing.B)     { benchRPC(b, (*Gateway).Request) }
func BenchmarkRequestFast(b *testing.B) { benchRPC(b, (*Gateway).RequestFast) }

func BenchmarkEnqueue(b *testing.B) {
	_, producer := newBenchGateways(b)
	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		if _, err := producer.Enqueue(context.Background(), []byte("task")); err != nil {
			b.Fatal(err)
		}
	}
}
