package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// MemoryQueue is an in-process QueueService backed by a buffered channel and
// a worker pool. Dispatch is best-effort: messages are lost on restart,
// which is fine for fan-out work whose source of truth stays in memory.
type MemoryQueue struct {
	cfg  QueueConfig
	jobs map[string]Job // keyed by message type

	ch     chan Message
	seq    uint64
	seqMu  sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewMemoryQueue creates a queue with the given worker/buffer configuration.
func NewMemoryQueue(cfg QueueConfig) *MemoryQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryQueue{
		cfg:    cfg,
		jobs:   make(map[string]Job),
		ch:     make(chan Message, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterJob registers the handler for a message type. Must be called
// before Start.
func (q *MemoryQueue) RegisterJob(j Job) {
	q.jobs[j.Type()] = j
}

// Start launches the worker pool.
func (q *MemoryQueue) Start() {
	q.once.Do(func() {
		for i := 0; i < q.cfg.Workers; i++ {
			q.wg.Add(1)
			go q.worker(i)
		}
	})
}

// Stop drains in-flight work and waits for workers, bounded by ctx.
func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.cancel()
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishMessage enqueues a message for async processing. A full queue is an
// error rather than a blocked request path.
func (q *MemoryQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	if _, ok := q.jobs[msgType]; !ok {
		return fmt.Errorf("queue: no job registered for type %q", msgType)
	}

	q.seqMu.Lock()
	q.seq++
	id := fmt.Sprintf("msg_%d_%d", time.Now().Unix(), q.seq)
	q.seqMu.Unlock()

	msg := Message{
		ID:        id,
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return fmt.Errorf("queue: buffer full, dropping %s message", msgType)
	}
}

func (q *MemoryQueue) worker(n int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			// drain whatever is already buffered before exiting
			for {
				select {
				case msg := <-q.ch:
					q.handle(msg)
				default:
					return
				}
			}
		case msg := <-q.ch:
			q.handle(msg)
		}
	}
}

func (q *MemoryQueue) handle(msg Message) {
	job, ok := q.jobs[msg.Type]
	if !ok {
		return
	}
	for {
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("job panic: %v", r)
				}
			}()
			return job.Handle(q.ctx, msg.Payload)
		}()
		if err == nil {
			return
		}
		msg.Attempts++
		if msg.Attempts > q.cfg.RetryLimit {
			log.Printf("queue: %s job %s failed after %d attempts: %v", msg.Type, msg.ID, msg.Attempts, err)
			return
		}
		select {
		case <-q.ctx.Done():
			return
		case <-time.After(q.cfg.RetryDelay):
		}
	}
}
