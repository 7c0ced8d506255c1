package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocal_Exclusive(t *testing.T) {
	var l Local
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first Acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.Acquire(ctx); ok {
		t.Fatal("second Acquire succeeded while held")
	}
	release()
	release2, ok, _ := l.Acquire(ctx)
	if !ok {
		t.Fatal("Acquire after release failed")
	}
	release2()
}

func TestLocal_ConcurrentAcquire(t *testing.T) {
	var l Local
	var holders, maxHolders atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, ok, _ := l.Acquire(context.Background())
			if !ok {
				return
			}
			n := holders.Add(1)
			for {
				m := maxHolders.Load()
				if n <= m || maxHolders.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			holders.Add(-1)
			release()
		}()
	}
	wg.Wait()
	if maxHolders.Load() > 1 {
		t.Errorf("%d holders at once, want at most 1", maxHolders.Load())
	}
}

func TestNewRedis_BadURL(t *testing.T) {
	if _, err := NewRedis("not a url", "k", time.Second); err == nil {
		t.Error("expected error for malformed url")
	}
}

// Runs against a real server when CHALLENGEBOARD_TEST_REDIS_URL is set.
func TestRedis_Exclusive(t *testing.T) {
	url := os.Getenv("CHALLENGEBOARD_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CHALLENGEBOARD_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	key := "challengeboard:test:" + t.Name()

	a, err := NewRedis(url, key, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, _ := NewRedis(url, key, 10*time.Second)
	defer b.Close()
	if err := a.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	release, ok, err := a.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("a.Acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := b.Acquire(ctx); ok {
		t.Fatal("b acquired a held lock")
	}
	release()
	releaseB, ok, err := b.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("b.Acquire after release: ok=%v err=%v", ok, err)
	}
	releaseB()
}
