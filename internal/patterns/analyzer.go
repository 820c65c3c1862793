package patterns

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/pkg/models"
)

// Batch Analysis Runner
//
// Schedules the four detectors over a transaction batch on a bounded
// worker pool. Detectors are independent tasks; a panic in one is counted
// as an error while the others finish. Cancellation is honored between
// tasks, leaving partial results intact.

const DefaultWorkers = 4

// AnalysisJob tracks one batch analysis run.
type AnalysisJob struct {
	ID        uuid.UUID             `json:"id"`
	Name      string                `json:"name"`
	Status    models.BatchJobStatus `json:"status"`
	StartedAt time.Time             `json:"startedAt"`
	DoneAt    *time.Time            `json:"doneAt,omitempty"`

	total     int64
	processed atomic.Int64
	found     atomic.Int64
	errors    atomic.Int64

	mu       sync.Mutex
	cancel   context.CancelFunc
	patterns []models.DetectedPattern
}

// Progress returns the current counters. Total and Processed count
// detector tasks; MatchesFound counts emitted patterns.
func (j *AnalysisJob) Progress() models.BatchJobProgress {
	return models.BatchJobProgress{
		Total:        int(j.total),
		Processed:    int(j.processed.Load()),
		MatchesFound: int(j.found.Load()),
		Errors:       int(j.errors.Load()),
	}
}

// Cancel requests cancellation; workers notice between detector tasks.
func (j *AnalysisJob) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		j.cancel()
	}
}

// CurrentStatus reads the job status under the lock.
func (j *AnalysisJob) CurrentStatus() models.BatchJobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status
}

// Patterns returns the patterns collected so far.
func (j *AnalysisJob) Patterns() []models.DetectedPattern {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]models.DetectedPattern, len(j.patterns))
	copy(out, j.patterns)
	return out
}

func (j *AnalysisJob) setStatus(s models.BatchJobStatus) {
	j.mu.Lock()
	j.Status = s
	if s == models.JobCompleted || s == models.JobCancelled || s == models.JobFailed {
		now := time.Now().UTC()
		j.DoneAt = &now
	}
	j.mu.Unlock()
}

func (j *AnalysisJob) collect(patterns []models.DetectedPattern) {
	j.found.Add(int64(len(patterns)))
	j.mu.Lock()
	j.patterns = append(j.patterns, patterns...)
	j.mu.Unlock()
}

// Analyzer runs batch pattern analysis jobs.
type Analyzer struct {
	detector *Detector
	workers  int

	mu   sync.RWMutex
	jobs map[uuid.UUID]*AnalysisJob
}

// NewAnalyzer creates an analyzer with the given pool size (<=0 means
// DefaultWorkers).
func NewAnalyzer(detector *Detector, workers int) *Analyzer {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Analyzer{
		detector: detector,
		workers:  workers,
		jobs:     make(map[uuid.UUID]*AnalysisJob),
	}
}

// GetJob returns a job by ID.
func (a *Analyzer) GetJob(id uuid.UUID) (*AnalysisJob, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	job, ok := a.jobs[id]
	return job, ok
}

// Run starts analysis of the batch and returns immediately. onPattern, when
// set, is invoked once per detected pattern from worker goroutines.
func (a *Analyzer) Run(ctx context.Context, name string, txs []models.Transaction,
	onPattern func(models.DetectedPattern)) *AnalysisJob {

	tasks := []struct {
		name string
		fn   func([]models.Transaction) []models.DetectedPattern
	}{
		{"structuring", a.detector.DetectStructuring},
		{"layering", a.detector.DetectLayering},
		{"round_tripping", a.detector.DetectRoundTripping},
		{"rapid_movement", a.detector.DetectRapidMovement},
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &AnalysisJob{
		ID:        uuid.New(),
		Name:      name,
		Status:    models.JobRunning,
		StartedAt: time.Now().UTC(),
		total:     int64(len(tasks)),
		cancel:    cancel,
	}

	a.mu.Lock()
	a.jobs[job.ID] = job
	a.mu.Unlock()

	log.Printf("[Analyzer] Job %s (%q) started: %d transactions, %d detectors", job.ID, name, len(txs), len(tasks))

	go func() {
		defer cancel()

		queue := make(chan int)
		var wg sync.WaitGroup

		workers := a.workers
		if workers > len(tasks) {
			workers = len(tasks)
		}
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for idx := range queue {
					a.runDetector(job, tasks[idx].name, tasks[idx].fn, txs, onPattern)
				}
			}()
		}

		cancelled := false
	feed:
		for i := range tasks {
			select {
			case <-jobCtx.Done():
				cancelled = true
				break feed
			case queue <- i:
			}
		}
		close(queue)
		wg.Wait()

		if cancelled {
			job.setStatus(models.JobCancelled)
			log.Printf("[Analyzer] Job %s cancelled: %+v", job.ID, job.Progress())
			return
		}
		job.setStatus(models.JobCompleted)
		log.Printf("[Analyzer] Job %s completed: %+v", job.ID, job.Progress())
	}()

	return job
}

func (a *Analyzer) runDetector(job *AnalysisJob, name string,
	fn func([]models.Transaction) []models.DetectedPattern,
	txs []models.Transaction, onPattern func(models.DetectedPattern)) {

	defer func() {
		if r := recover(); r != nil {
			job.errors.Add(1)
			job.processed.Add(1)
			log.Printf("[Analyzer] Detector %s panicked: %v", name, r)
		}
	}()

	patterns := fn(txs)
	job.collect(patterns)
	if onPattern != nil {
		for _, p := range patterns {
			onPattern(p)
		}
	}
	job.processed.Add(1)
}
