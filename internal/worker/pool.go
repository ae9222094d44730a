package worker

import (
    "runtime"
    "sync"

    "github.com/rudilee/OrangeServer/pkg/logger"
)

// Pool runs N single-threaded event loops. A session is pinned to one
// worker for life, so everything submitted on its behalf executes
// sequentially and its state needs no locking.
type Pool struct {
    workers []*Worker
    mu      sync.Mutex
    current int
}

// Worker is one event loop. Tasks run in submission order.
type Worker struct {
    index int
    tasks chan func()
    quit  chan struct{}
    done  chan struct{}
}

// NewPool sizes the pool to max(1, NumCPU-1) when count is not positive
func NewPool(count int) *Pool {
    if count <= 0 {
        count = runtime.NumCPU() - 1
        if count < 1 {
            count = 1
        }
    }

    pool := &Pool{workers: make([]*Worker, count)}
    for i := range pool.workers {
        pool.workers[i] = &Worker{
            index: i,
            tasks: make(chan func(), 256),
            quit:  make(chan struct{}),
            done:  make(chan struct{}),
        }
    }

    return pool
}

func (p *Pool) Start() {
    for _, w := range p.workers {
        go w.run()
    }
    logger.WithField("count", len(p.workers)).Info("Workers started")
}

// Stop drains every worker and waits for the loops to exit
func (p *Pool) Stop() {
    for _, w := range p.workers {
        close(w.quit)
    }
    for _, w := range p.workers {
        <-w.done
    }
    logger.Info("Workers stopped")
}

// Next picks the worker for the next accepted socket by round-robin
func (p *Pool) Next() *Worker {
    p.mu.Lock()
    defer p.mu.Unlock()

    p.current = (p.current + 1) % len(p.workers)
    return p.workers[p.current]
}

func (p *Pool) Size() int {
    return len(p.workers)
}

func (w *Worker) Index() int {
    return w.index
}

// Submit enqueues a task onto this worker's loop. After Stop the task is
// silently dropped; sessions are already torn down at that point.
func (w *Worker) Submit(task func()) {
    select {
    case <-w.quit:
    case w.tasks <- task:
    }
}

func (w *Worker) run() {
    defer close(w.done)

    logger.WithField("worker", w.index).Debug("Worker running")

    for {
        select {
        case task := <-w.tasks:
            w.execute(task)
        case <-w.quit:
            // Drain what was already queued
            for {
                select {
                case task := <-w.tasks:
                    w.execute(task)
                default:
                    logger.WithField("worker", w.index).Debug("Worker finished")
                    return
                }
            }
        }
    }
}

func (w *Worker) execute(task func()) {
    defer func() {
        if r := recover(); r != nil {
            logger.WithFields(map[string]interface{}{
                "worker": w.index,
                "panic":  r,
            }).Error("Task panic recovered")
        }
    }()
    task()
}
