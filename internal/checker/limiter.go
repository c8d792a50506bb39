package checker

import "sync"

// JobLimiter ensures that only one run per job is in progress at any given time.
type JobLimiter struct {
	mu      sync.Mutex
	running map[string]struct{}
}

// NewJobLimiter creates a new JobLimiter.
func NewJobLimiter() *JobLimiter {
	return &JobLimiter{
		running: make(map[string]struct{}),
	}
}

// Acquire attempts to claim job.
// It returns true if the claim succeeded, and false if a run is already in progress.
func (l *JobLimiter) Acquire(job string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.running[job]; exists {
		return false
	}

	l.running[job] = struct{}{}
	return true
}

// Release releases the claim on job.
func (l *JobLimiter) Release(job string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.running, job)
}
