package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull is returned by TrySubmit when the shard's buffer is full.
	ErrQueueFull = errors.New("worker queue full")
	ErrStopped   = errors.New("worker pool stopped")
)

type Task func(ctx context.Context) error

// Pool runs tasks on a fixed set of shards. Tasks with the same key land on
// the same shard and run in submission order; the bot keys by Telegram user
// so two presses of one button never race. A panicking task is logged and
// the shard keeps going.
type Pool struct {
	shards []chan Task
	wg     sync.WaitGroup
	quit   chan struct{}
	once   sync.Once
	log    *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	shards := make([]chan Task, workers)
	for i := range shards {
		shards[i] = make(chan Task, 16)
	}
	l := logger.With().Str("component", "worker_pool").Logger()
	return &Pool{shards: shards, quit: make(chan struct{}), log: &l}
}

// Start launches one goroutine per shard. They exit on ctx cancellation or Stop.
func (p *Pool) Start(ctx context.Context) {
	for i, ch := range p.shards {
		p.wg.Add(1)
		go p.loop(ctx, i, ch)
	}
}

func (p *Pool) loop(ctx context.Context, shard int, ch <-chan Task) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case task := <-ch:
			p.run(ctx, shard, task)
		}
	}
}

func (p *Pool) run(ctx context.Context, shard int, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error().Int("shard", shard).Interface("panic", rec).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Warn().Err(err).Int("shard", shard).Msg("task failed")
	}
}

// Stop signals the shards and waits for running tasks to return. Queued
// tasks are dropped.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *Pool) shard(key int64) chan Task {
	if key < 0 {
		key = -key
	}
	return p.shards[key%int64(len(p.shards))]
}

// Submit queues task on key's shard, waiting for room until ctx is done.
func (p *Pool) Submit(ctx context.Context, key int64, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case p.shard(key) <- task:
		return nil
	case <-p.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues task on key's shard or fails with ErrQueueFull.
func (p *Pool) TrySubmit(key int64, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case p.shard(key) <- task:
		return nil
	default:
		return ErrQueueFull
	}
}
