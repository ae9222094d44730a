package worker

import (
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestPoolDefaultsToAtLeastOneWorker(t *testing.T) {
    assert.GreaterOrEqual(t, NewPool(0).Size(), 1)
    assert.Equal(t, 4, NewPool(4).Size())
}

func TestWorkerRunsTasksInOrder(t *testing.T) {
    pool := NewPool(1)
    pool.Start()
    defer pool.Stop()

    w := pool.Next()

    var mu sync.Mutex
    var order []int
    done := make(chan struct{})

    for i := 0; i < 100; i++ {
        i := i
        w.Submit(func() {
            mu.Lock()
            order = append(order, i)
            mu.Unlock()
            if i == 99 {
                close(done)
            }
        })
    }

    select {
    case <-done:
    case <-time.After(2 * time.Second):
        t.Fatal("tasks did not complete")
    }

    mu.Lock()
    defer mu.Unlock()
    require.Len(t, order, 100)
    for i, v := range order {
        assert.Equal(t, i, v)
    }
}

func TestPoolRoundRobin(t *testing.T) {
    pool := NewPool(3)

    seen := map[int]int{}
    for i := 0; i < 9; i++ {
        seen[pool.Next().Index()]++
    }

    assert.Equal(t, map[int]int{0: 3, 1: 3, 2: 3}, seen)
}

func TestStopDrainsQueuedTasks(t *testing.T) {
    pool := NewPool(2)
    pool.Start()

    var mu sync.Mutex
    count := 0
    for i := 0; i < 50; i++ {
        pool.Next().Submit(func() {
            mu.Lock()
            count++
            mu.Unlock()
        })
    }

    pool.Stop()

    mu.Lock()
    defer mu.Unlock()
    assert.Equal(t, 50, count)
}

func TestSubmitAfterStopDoesNotPanic(t *testing.T) {
    pool := NewPool(1)
    pool.Start()
    w := pool.Next()
    pool.Stop()

    assert.NotPanics(t, func() {
        w.Submit(func() {})
    })
}

func TestTaskPanicDoesNotKillWorker(t *testing.T) {
    pool := NewPool(1)
    pool.Start()
    defer pool.Stop()

    w := pool.Next()
    w.Submit(func() { panic("boom") })

    done := make(chan struct{})
    w.Submit(func() { close(done) })

    select {
    case <-done:
    case <-time.After(2 * time.Second):
        t.Fatal("worker died after panic")
    }
}
