package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"cgmatch/internal/logging"
	"cgmatch/internal/match"
	"cgmatch/internal/report"
	"cgmatch/internal/storage"
)

// Processor executes one base/diff pair and returns its report item.
type Processor interface {
	Process(ctx context.Context, job match.PairJob) report.Item
}

// Pipeline orchestrates pair dispatch across workers.
type Pipeline struct {
	processor Processor
	log       *slog.Logger
	jobs      chan match.PairJob
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
	store     *storage.Store
	runID     string
	mu        sync.Mutex
	subs      map[int]chan report.Item
	nextSubID int
}

// New creates a Pipeline with the given concurrency and processor implementation.
// runID tags persisted pair outcomes; store may be nil.
func New(ctx context.Context, concurrency int, logger *slog.Logger, store *storage.Store, runID string, proc Processor) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		processor: proc,
		log:       logger,
		jobs:      make(chan match.PairJob, concurrency*2),
		cancel:    cancel,
		store:     store,
		runID:     runID,
		subs:      make(map[int]chan report.Item),
	}

	p.startOnce.Do(func() {
		for i := 0; i < concurrency; i++ {
			p.wg.Add(1)
			go p.worker(ctx)
		}
	})

	return p
}

// Submit adds a pair to the processing queue.
func (p *Pipeline) Submit(job match.PairJob) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return errors.New("job queue is full")
	}
}

// SubmitWait adds a pair to the queue, blocking until there is room or ctx
// is cancelled.
func (p *Pipeline) SubmitWait(ctx context.Context, job match.PairJob) error {
	// Checked up front so an already-cancelled ctx never races the queue send.
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- job:
		return nil
	}
}

// Stop signals workers to exit and waits for completion.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		close(p.jobs)
		p.wg.Wait()
		p.mu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	})
}

// Drain closes the queue and waits for in-flight pairs without cancelling them.
func (p *Pipeline) Drain() {
	p.stopOnce.Do(func() {
		close(p.jobs)
		p.wg.Wait()
		p.cancel()
		p.mu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	})
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			start := time.Now()

			logging.LogPairStart(p.log, job.BasePath, job.DiffPath, job.OutputRelPath)

			item := p.processor.Process(ctx, job)
			duration := time.Since(start)
			item.Elapsed = duration

			switch item.Status {
			case report.StatusSuccess:
				logging.LogPairComplete(p.log, job.DiffPath, duration, map[string]any{
					"dx":  item.DX,
					"dy":  item.DY,
					"fit": item.FitPercent,
				})
			case report.StatusSkipped:
				p.log.Warn("pair skipped", "diff", job.DiffPath, "reason", item.Reason, "detail", item.Detail)
			default:
				logging.LogPairError(p.log, job.DiffPath, duration, errors.New(item.Reason), map[string]any{
					"base":   job.BasePath,
					"detail": item.Detail,
				})
			}

			if p.store != nil {
				_ = p.store.RecordPair(storage.PairRecord{
					RunID:      p.runID,
					BasePath:   item.BasePath,
					DiffPath:   item.DiffPath,
					OutputPath: item.OutputPath,
					Status:     string(item.Status),
					Reason:     item.Reason,
					Detail:     item.Detail,
					DX:         item.DX,
					DY:         item.DY,
					FitPercent: item.FitPercent,
					ElapsedMS:  duration.Milliseconds(),
				})
			}

			p.broadcast(item)
		}
	}
}

// Subscribe returns a channel for receiving pair results and an unsubscribe function.
func (p *Pipeline) Subscribe() (<-chan report.Item, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan report.Item, 8)
	p.subs[id] = ch
	unsub := func() {
		p.mu.Lock()
		if c, ok := p.subs[id]; ok {
			close(c)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	}
	return ch, unsub
}

func (p *Pipeline) broadcast(item report.Item) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- item:
		default:
			p.log.Warn("result channel full", "subscriber", id, "diff", item.DiffPath)
		}
	}
}
