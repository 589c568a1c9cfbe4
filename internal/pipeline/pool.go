package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"narrator/internal/logging"
)

var errPoolStopped = errors.New("synthesis pool is not running")

type jobKey struct {
	sessionID string
	index     int
}

type job struct {
	sessionID string
	ownerID   string
	index     int
	text      string
}

func (j job) key() jobKey { return jobKey{sessionID: j.sessionID, index: j.index} }

// pool runs segment jobs on a fixed number of workers. A (session, index)
// pair is never queued or running twice at the same time.
type pool struct {
	workers int
	run     func(ctx context.Context, j job)
	logger  *slog.Logger

	mu         sync.Mutex
	queue      []job
	tracked    map[jobKey]struct{}
	active     int
	running    bool
	cancel     context.CancelFunc
	workCancel context.CancelFunc
	group      *errgroup.Group
	wake       chan struct{}
}

func newPool(workers int, logger *slog.Logger, run func(ctx context.Context, j job)) *pool {
	if workers <= 0 {
		workers = 1
	}
	return &pool{
		workers: workers,
		run:     run,
		logger:  logger,
		tracked: make(map[jobKey]struct{}),
	}
}

func (p *pool) start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("synthesis pool already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	workCtx, workCancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.workCancel = workCancel
	wake := make(chan struct{}, p.workers)
	p.wake = wake
	p.running = true

	group := &errgroup.Group{}
	for i := 0; i < p.workers; i++ {
		group.Go(func() error {
			p.worker(runCtx, workCtx, wake)
			return nil
		})
	}
	p.group = group
	return nil
}

// stop stops handing out queued jobs, waits up to drain for running jobs, and
// drops whatever is still queued. Dropped jobs remain resumable from disk.
func (p *pool) stop(drain time.Duration) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, workCancel, group := p.cancel, p.workCancel, p.group
	dropped := len(p.queue)
	for _, j := range p.queue {
		delete(p.tracked, j.key())
	}
	p.queue = nil
	p.mu.Unlock()

	cancel()
	defer workCancel()

	waited := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(waited)
	}()

	if drain > 0 {
		timer := time.NewTimer(drain)
		defer timer.Stop()
		select {
		case <-waited:
		case <-timer.C:
			logging.WarnWithContext(p.logger, "drain timeout reached; cancelling segment synthesis", "pool_drain_timeout",
				logging.Duration("drain_timeout", drain),
				logging.String(logging.FieldErrorHint, "resume the affected sessions after restart"),
				logging.String(logging.FieldImpact, "in-flight segments are left for resume"),
			)
			workCancel()
			<-waited
		}
	} else {
		workCancel()
		<-waited
	}

	if dropped > 0 {
		p.logger.Info("queued segments left for resume",
			logging.Int("count", dropped),
			logging.String(logging.FieldEventType, "pool_jobs_dropped"),
		)
	}
}

// submit queues jobs that are not already queued or running and returns the
// indices it accepted.
func (p *pool) submit(jobs ...job) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil, errPoolStopped
	}
	accepted := make([]int, 0, len(jobs))
	for _, j := range jobs {
		if _, busy := p.tracked[j.key()]; busy {
			continue
		}
		p.tracked[j.key()] = struct{}{}
		p.queue = append(p.queue, j)
		accepted = append(accepted, j.index)
	}
	for i := 0; i < len(accepted) && i < p.workers; i++ {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
	return accepted, nil
}

// reserve marks key in flight for a caller running outside the pool. It
// reports false when the pool already holds the same key.
func (p *pool) reserve(key jobKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.tracked[key]; busy {
		return false
	}
	p.tracked[key] = struct{}{}
	return true
}

func (p *pool) release(key jobKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tracked, key)
}

func (p *pool) next() (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || len(p.queue) == 0 {
		return job{}, false
	}
	j := p.queue[0]
	p.queue = p.queue[1:]
	p.active++
	if len(p.queue) > 0 {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
	return j, true
}

func (p *pool) finish(j job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
	delete(p.tracked, j.key())
}

func (p *pool) worker(ctx, workCtx context.Context, wake <-chan struct{}) {
	for {
		j, ok := p.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-wake:
				continue
			}
		}
		p.run(workCtx, j)
		p.finish(j)
	}
}

// PoolStats describes synthesis pool occupancy.
type PoolStats struct {
	Running bool `json:"running"`
	Workers int  `json:"workers"`
	Queued  int  `json:"queued"`
	Active  int  `json:"active"`
}

func (p *pool) stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Running: p.running, Workers: p.workers, Queued: len(p.queue), Active: p.active}
}
