package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jing2uo/rufeng/logger"
	"github.com/jing2uo/rufeng/model"
	"github.com/jing2uo/rufeng/source"
)

var (
	ErrRunning     = errors.New("crawler is already running")
	ErrPollTimeout = errors.New("crawler poll timed out")
)

const maxCommitBatch = 20

// Store is the part of the repository the writer needs.
type Store interface {
	WriteStock(stock *model.Stock) error
	WriteIndex(index *model.Index) error
	WriteQuotes(quotes []model.Quote) error
	Commit() error
	Rollback() error
}

// FetchResult is what a worker hands to the writer for one task.
type FetchResult struct {
	Task     model.CrawlTask
	Quotes   []model.Quote
	Attempts int
	Err      error
}

// staged is a written but uncommitted task. base replaces the security's
// Base once the batch commits.
type staged struct {
	result FetchResult
	base   model.Base
}

type Options struct {
	PoolSize int
	Retry    RetryPolicy
	Now      func() time.Time
}

// Crawler fetches quote history for a worklist. Workers only fetch; one
// writer goroutine owns the store and commits in batches.
type Crawler struct {
	fetcher source.QuoteFetcher
	store   Store
	opts    Options
	log     *logger.Entry

	mu        sync.Mutex
	tasks     []model.CrawlTask
	succeeded []model.CrawlTask
	failed    []model.CrawlTask
	running   bool
	done      chan struct{}
	runID     string
	commits   int
}

func New(fetcher source.QuoteFetcher, store Store, opts Options) *Crawler {
	if opts.PoolSize < 1 {
		opts.PoolSize = 1
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Crawler{
		fetcher: fetcher,
		store:   store,
		opts:    opts,
		log:     logger.GetLogger().WithComponent("crawler"),
	}
}

// AddStock enqueues a task. Tasks added while running are picked up by the
// workers still draining the list.
func (c *Crawler) AddStock(sec model.Security, start, end time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, model.CrawlTask{Security: sec, Start: start, End: end})
}

// Start launches the workers and the writer and returns immediately.
func (c *Crawler) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrRunning
	}

	workers := min(c.opts.PoolSize, len(c.tasks))
	if workers < 1 {
		workers = 1
	}

	c.running = true
	c.done = make(chan struct{})
	c.runID = uuid.NewString()
	c.commits = 0

	log := c.log.WithFields(logger.Fields{"run_id": c.runID})
	log.WithFields(logger.Fields{"tasks": len(c.tasks), "workers": workers}).Info("crawl started")

	results := make(chan FetchResult, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.work(ctx, results)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	go c.write(results, c.done, log)
	return nil
}

func (c *Crawler) next() (model.CrawlTask, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tasks) == 0 {
		return model.CrawlTask{}, false
	}
	task := c.tasks[0]
	c.tasks = c.tasks[1:]
	return task, true
}

func (c *Crawler) work(ctx context.Context, results chan<- FetchResult) {
	for {
		if ctx.Err() != nil {
			return
		}
		task, ok := c.next()
		if !ok {
			return
		}
		results <- c.fetch(ctx, task)
	}
}

func (c *Crawler) fetch(ctx context.Context, task model.CrawlTask) FetchResult {
	var quotes []model.Quote
	attempts, err := c.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		quotes, err = c.fetcher.FetchQuotes(ctx, task.Security, task.Start, task.End)
		if err != nil {
			c.log.WithFields(logger.Fields{"symbol": task.Symbol()}).WithError(err).Debug("fetch attempt failed")
		}
		return err
	})
	if err != nil {
		return FetchResult{Task: task, Attempts: attempts, Err: err}
	}
	return FetchResult{Task: task, Quotes: quotes, Attempts: attempts}
}

// write is the only goroutine touching the store while a crawl runs.
func (c *Crawler) write(results <-chan FetchResult, done chan struct{}, log *logger.Entry) {
	started := c.opts.Now()
	batchSize := min(c.opts.PoolSize, maxCommitBatch)
	var pending []staged

	commit := func() {
		if len(pending) == 0 {
			return
		}
		err := c.store.Commit()
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"tasks": len(pending)}).Error("failed to commit batch")
			if rerr := c.store.Rollback(); rerr != nil {
				log.WithError(rerr).Error("failed to roll back batch")
			}
		}

		c.mu.Lock()
		c.commits++
		for _, p := range pending {
			if err != nil {
				c.failed = append(c.failed, p.result.Task)
				continue
			}
			*p.result.Task.Security.Common() = p.base
			c.succeeded = append(c.succeeded, p.result.Task)
		}
		c.mu.Unlock()

		pending = pending[:0]
	}

	for r := range results {
		entry := log.WithFields(logger.Fields{"symbol": r.Task.Symbol(), "attempts": r.Attempts})
		if r.Err != nil {
			entry.WithError(r.Err).Warn("giving up on task")
			c.markFailed(r.Task)
			continue
		}
		base, err := c.stage(r)
		if err != nil {
			entry.WithError(err).Error("failed to persist task")
			c.markFailed(r.Task)
			pending = c.restage(pending, log)
			continue
		}
		entry.WithFields(logger.Fields{"quotes": len(r.Quotes)}).Debug("task stored")

		pending = append(pending, staged{result: r, base: base})
		if len(pending) >= batchSize {
			commit()
		}
	}
	commit()

	c.mu.Lock()
	c.running = false
	succeeded, failed := len(c.succeeded), len(c.failed)
	c.mu.Unlock()

	logger.LogPerformanceEntry(log, "crawl", c.opts.Now().Sub(started), logger.Fields{
		"succeeded": succeeded,
		"failed":    failed,
	})
	close(done)
}

// stage writes one task into the open transaction. The security itself is
// left untouched, the returned Base is applied after commit.
func (c *Crawler) stage(r FetchResult) (model.Base, error) {
	base := *r.Task.Security.Common()
	base.History = MergeHistory(base.History, r.Quotes)
	if last, ok := base.LastQuote(); ok {
		base.Price = last.Close
	}
	base.LastUpdate = c.opts.Now().UTC()

	if len(r.Quotes) > 0 {
		if err := c.store.WriteQuotes(r.Quotes); err != nil {
			return base, err
		}
	}

	switch sec := r.Task.Security.(type) {
	case *model.Stock:
		row := *sec
		row.Base = base
		return base, c.store.WriteStock(&row)
	case *model.Index:
		row := *sec
		row.Base = base
		return base, c.store.WriteIndex(&row)
	default:
		return base, fmt.Errorf("unsupported security type %T", sec)
	}
}

// restage drops a failed task's partial writes: the transaction is rolled
// back and the rest of the batch is written again. A task failing on the
// second write is marked failed and the batch restarts without it.
func (c *Crawler) restage(pending []staged, log *logger.Entry) []staged {
	for {
		if err := c.store.Rollback(); err != nil {
			log.WithError(err).WithFields(logger.Fields{"tasks": len(pending)}).Error("failed to roll back batch")
			for _, p := range pending {
				c.markFailed(p.result.Task)
			}
			return pending[:0]
		}

		broken := -1
		for i := range pending {
			base, err := c.stage(pending[i].result)
			if err != nil {
				log.WithError(err).WithFields(logger.Fields{"symbol": pending[i].result.Task.Symbol()}).
					Error("failed to persist task")
				broken = i
				break
			}
			pending[i].base = base
		}
		if broken < 0 {
			return pending
		}
		c.markFailed(pending[broken].result.Task)
		pending = append(pending[:broken], pending[broken+1:]...)
	}
}

func (c *Crawler) markFailed(task model.CrawlTask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = append(c.failed, task)
}

// Poll waits for the running crawl to finish. On timeout the crawl keeps
// going and a later Poll can still wait for it.
func (c *Crawler) Poll(timeout time.Duration) error {
	c.mu.Lock()
	done := c.done
	runID := c.runID
	c.mu.Unlock()

	if done == nil {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		c.log.WithFields(logger.Fields{"run_id": runID, "remain": c.RemainCount()}).
			Warnf("crawl still running after %s", timeout)
		return ErrPollTimeout
	}
}

// Reset clears the worklist and the outcome lists.
func (c *Crawler) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrRunning
	}
	c.tasks = nil
	c.succeeded = nil
	c.failed = nil
	c.done = nil
	c.commits = 0
	return nil
}

// RemainCount is the number of tasks nobody has picked up yet.
func (c *Crawler) RemainCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

func (c *Crawler) Succeeded() []model.CrawlTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.CrawlTask(nil), c.succeeded...)
}

func (c *Crawler) Failed() []model.CrawlTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.CrawlTask(nil), c.failed...)
}

// Commits is how many batches the last run committed.
func (c *Crawler) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

// MergeHistory appends fresh bars to a date ascending history. Stored bars
// on or after the first fresh date are replaced.
func MergeHistory(history, fresh []model.Quote) []model.Quote {
	if len(fresh) == 0 {
		return history
	}
	first := fresh[0].Date
	cut := len(history)
	for cut > 0 && !history[cut-1].Date.Before(first) {
		cut--
	}
	merged := make([]model.Quote, 0, cut+len(fresh))
	merged = append(merged, history[:cut]...)
	return append(merged, fresh...)
}
