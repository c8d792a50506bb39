package checker

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"pulsewatch/internal/models"
	"pulsewatch/internal/probe"
)

// Task pairs a monitor with the strategy that probes it.
type Task struct {
	Monitor models.Monitor
	Prober  probe.Prober
}

// WorkerPool runs the probes of one tick on a bounded number of goroutines.
type WorkerPool struct {
	size int
	log  *logrus.Entry
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(maxConcurrency int, logger logrus.FieldLogger) *WorkerPool {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &WorkerPool{size: maxConcurrency, log: logger.WithField("component", "pool")}
}

// Run probes every task and waits for all of them. The returned outcomes are
// in task order. A probe that panics yields a down outcome.
func (p *WorkerPool) Run(ctx context.Context, tasks []Task) []probe.Outcome {
	outcomes := make([]probe.Outcome, len(tasks))
	jobs := make(chan int)

	workers := p.size
	if len(tasks) < workers {
		workers = len(tasks)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = p.performCheck(ctx, tasks[idx])
			}
		}()
	}

	for i := range tasks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return outcomes
}

// performCheck executes the probe for a single monitor.
func (p *WorkerPool) performCheck(ctx context.Context, t Task) (out probe.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithFields(logrus.Fields{"monitor_id": t.Monitor.ID, "panic": r}).Error("probe panicked")
			out = probe.Down(t.Monitor, probe.StatusNetworkError, fmt.Sprintf("probe failed: %v", r))
		}
	}()
	return t.Prober.Probe(ctx, t.Monitor)
}
