package screening

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/pkg/models"
)

// Batch Screening
//
// The same screen operation scheduled across N subjects with a bounded
// worker pool. Each subject is an independent task; per-subject failures
// are counted, never fatal. Cancellation is checked between subjects and
// flips the job to cancelled with partial counters intact.

const DefaultWorkers = 4

// BatchJob tracks one batch screening run. Counters are updated atomically
// after each subject completes so progress reads never need the job lock.
type BatchJob struct {
	ID        uuid.UUID             `json:"id"`
	Name      string                `json:"name"`
	Status    models.BatchJobStatus `json:"status"`
	StartedAt time.Time             `json:"startedAt"`
	DoneAt    *time.Time            `json:"doneAt,omitempty"`

	total     int64
	processed atomic.Int64
	matches   atomic.Int64
	errors    atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Progress returns the current batch counters.
func (j *BatchJob) Progress() models.BatchJobProgress {
	return models.BatchJobProgress{
		Total:        int(j.total),
		Processed:    int(j.processed.Load()),
		MatchesFound: int(j.matches.Load()),
		Errors:       int(j.errors.Load()),
	}
}

// Cancel requests job cancellation. Workers notice between subjects.
func (j *BatchJob) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		j.cancel()
	}
}

func (j *BatchJob) setStatus(s models.BatchJobStatus) {
	j.mu.Lock()
	j.Status = s
	if s == models.JobCompleted || s == models.JobCancelled || s == models.JobFailed {
		now := time.Now().UTC()
		j.DoneAt = &now
	}
	j.mu.Unlock()
}

// CurrentStatus reads the job status under the lock.
func (j *BatchJob) CurrentStatus() models.BatchJobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status
}

// Runner executes batch screening jobs against the engine.
type Runner struct {
	engine  *Engine
	workers int

	mu   sync.RWMutex
	jobs map[uuid.UUID]*BatchJob
}

// NewRunner creates a batch runner with the given pool size (<=0 means
// DefaultWorkers).
func NewRunner(engine *Engine, workers int) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Runner{
		engine:  engine,
		workers: workers,
		jobs:    make(map[uuid.UUID]*BatchJob),
	}
}

// GetJob returns a job by ID.
func (r *Runner) GetJob(id uuid.UUID) (*BatchJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	return job, ok
}

// Run starts a batch screening job over the given subjects and returns
// immediately. onResult is invoked for every screened subject (including
// clear results) from worker goroutines.
func (r *Runner) Run(ctx context.Context, name string, subjects []models.ScreeningRequest,
	lists []*models.ScreeningList, onResult func(models.ScreeningResult)) *BatchJob {

	jobCtx, cancel := context.WithCancel(ctx)
	job := &BatchJob{
		ID:        uuid.New(),
		Name:      name,
		Status:    models.JobRunning,
		StartedAt: time.Now().UTC(),
		total:     int64(len(subjects)),
		cancel:    cancel,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	log.Printf("[BatchScreen] Job %s (%q) started: %d subjects, %d workers", job.ID, name, len(subjects), r.workers)

	go func() {
		defer cancel()

		queue := make(chan models.ScreeningRequest)
		var wg sync.WaitGroup

		for w := 0; w < r.workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for req := range queue {
					r.screenOne(job, req, lists, onResult)
				}
			}()
		}

		cancelled := false
	feed:
		for _, req := range subjects {
			select {
			case <-jobCtx.Done():
				cancelled = true
				break feed
			case queue <- req:
			}
		}
		close(queue)
		wg.Wait()

		if cancelled {
			job.setStatus(models.JobCancelled)
			log.Printf("[BatchScreen] Job %s cancelled: %+v", job.ID, job.Progress())
			return
		}
		job.setStatus(models.JobCompleted)
		log.Printf("[BatchScreen] Job %s completed: %+v", job.ID, job.Progress())
	}()

	return job
}

// screenOne screens a single subject, containing any panic as a counted
// per-subject error so one bad record never takes the job down.
func (r *Runner) screenOne(job *BatchJob, req models.ScreeningRequest,
	lists []*models.ScreeningList, onResult func(models.ScreeningResult)) {

	defer func() {
		if rec := recover(); rec != nil {
			job.errors.Add(1)
			job.processed.Add(1)
			log.Printf("[BatchScreen] Subject %s panicked: %v", req.SubjectID, rec)
		}
	}()

	result := r.engine.Screen(req, lists)
	if len(result.Matches) > 0 {
		job.matches.Add(1)
	}
	if onResult != nil {
		onResult(result)
	}
	job.processed.Add(1)
}
