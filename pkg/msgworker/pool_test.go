package msgworker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_DispatchNonBlocking(t *testing.T) {
	pool := NewPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	start := time.Now()
	pool.Dispatch(Job{
		ChatJID: "123@s.whatsapp.net",
		Handler: func(ctx context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 10*time.Millisecond, "Dispatch must not block the caller")
}

func TestPool_SameChatSequentialProcessing(t *testing.T) {
	pool := NewPool(4, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	var results []int
	var mu sync.Mutex

	chatJID := "chat1@s.whatsapp.net"

	for i := 1; i <= 5; i++ {
		val := i
		pool.Dispatch(Job{
			ChatJID: chatJID,
			Handler: func(ctx context.Context) error {
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				results = append(results, val)
				mu.Unlock()
				return nil
			},
		})
	}

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	require.Equal(t, []int{1, 2, 3, 4, 5}, results, "jobs for the same chat must run in order")
}

func TestPool_DifferentChatsParallelProcessing(t *testing.T) {
	pool := NewPool(4, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	var activeCount int32

	for i := 0; i < 4; i++ {
		chatID := string(rune('A' + i))
		pool.Dispatch(Job{
			ChatJID: chatID,
			Handler: func(ctx context.Context) error {
				atomic.AddInt32(&activeCount, 1)
				time.Sleep(50 * time.Millisecond)
				atomic.AddInt32(&activeCount, -1)
				return nil
			},
		})
	}

	time.Sleep(10 * time.Millisecond)

	active := atomic.LoadInt32(&activeCount)
	assert.GreaterOrEqual(t, active, int32(2), "different chats should run in parallel")
}

func TestPool_GracefulShutdown(t *testing.T) {
	pool := NewPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())

	pool.Start(ctx)

	var completed int32

	for i := 0; i < 2; i++ {
		pool.Dispatch(Job{
			ChatJID: string(rune('A' + i)),
			Handler: func(ctx context.Context) error {
				time.Sleep(50 * time.Millisecond)
				atomic.AddInt32(&completed, 1)
				return nil
			},
		})
	}

	time.Sleep(10 * time.Millisecond)

	cancel()
	pool.Stop()

	assert.Equal(t, int32(2), atomic.LoadInt32(&completed), "in-flight jobs must finish on shutdown")
}

func TestPool_ConsistentHashing(t *testing.T) {
	pool := NewPool(4, 100)

	chatJID := "chat123@g.us"

	shard1 := pool.shardForChat(chatJID)
	shard2 := pool.shardForChat(chatJID)
	shard3 := pool.shardForChat(chatJID)

	assert.Equal(t, shard1, shard2)
	assert.Equal(t, shard2, shard3)

	assert.GreaterOrEqual(t, shard1, 0)
	assert.Less(t, shard1, 4)
}

func TestPool_FairDistribution(t *testing.T) {
	numWorkers := 4
	pool := NewPool(numWorkers, 100)

	shardCounts := make(map[int]int)

	for i := 0; i < 100; i++ {
		shard := pool.shardForChat(string(rune(i)))
		shardCounts[shard]++
	}

	for shard, count := range shardCounts {
		assert.Greater(t, count, 15, "worker %d should receive >15 chats", shard)
		assert.Less(t, count, 35, "worker %d should receive <35 chats", shard)
	}
}

func TestPool_TryDispatchReportsQueueFull(t *testing.T) {
	pool := NewPool(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	block := make(chan struct{})
	// First job occupies the worker, second fills the queue.
	pool.Dispatch(Job{ChatJID: "A", Handler: func(ctx context.Context) error {
		<-block
		return nil
	}})
	time.Sleep(10 * time.Millisecond)
	require.True(t, pool.TryDispatch(Job{ChatJID: "A", Handler: func(ctx context.Context) error { return nil }}))

	ok := pool.TryDispatch(Job{ChatJID: "A", Handler: func(ctx context.Context) error { return nil }})
	assert.False(t, ok, "full queue must be reported to the caller")

	close(block)
}
