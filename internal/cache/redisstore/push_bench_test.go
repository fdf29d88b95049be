package redisstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func prep(b *testing.B) (*Client, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	cleanup := func() {
		cancel()
		_ = rc.Close()
		mr.Close()
	}
	return rc, cleanup
}

func benchPush(b *testing.B, window int) {
	rc, cleanup := prep(b)
	defer cleanup()

	ctx := context.Background()
	b.ReportAllocs()

	i := 0
	for b.Loop() {
		m := fmt.Sprintf("r%d", i%(window*2))
		i++
		err := rc.PushFront(ctx, ListPush{
			Key: "routes:bench", Member: m, Limit: window, TTL: time.Minute,
			Values: map[string][]byte{"route:" + m: []byte(m)},
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPushFront_Window1(b *testing.B)  { benchPush(b, 1) }
func BenchmarkPushFront_Window20(b *testing.B) { benchPush(b, 20) }
