// Package precompute warms the slot cache in the background. Requests are
// acknowledged immediately; jobs travel over a queue to workers, and at most
// one job per organizer runs at a time.
package precompute

import (
	"context"
	"errors"
	"sync"
	"time"
)

// JobStatus is the lifecycle state of a precompute job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ErrJobNotFound indicates the requested job id does not exist.
var ErrJobNotFound = errors.New("precompute: job not found")

const defaultJobTTL = 24 * time.Hour

// Job is the persisted state of one precompute run.
type Job struct {
	JobID          string    `dynamodbav:"jobId" json:"job_id"`
	OrganizerID    string    `dynamodbav:"organizerId" json:"organizer_id"`
	DaysAhead      int       `dynamodbav:"daysAhead" json:"days_ahead"`
	Status         JobStatus `dynamodbav:"status" json:"status"`
	EntriesWritten int       `dynamodbav:"entriesWritten" json:"entries_written"`
	ErrorMessage   string    `dynamodbav:"errorMessage,omitempty" json:"error,omitempty"`
	CreatedAt      string    `dynamodbav:"createdAt" json:"created_at"`
	UpdatedAt      string    `dynamodbav:"updatedAt" json:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// JobStore persists job status for the status endpoint.
type JobStore interface {
	PutPending(ctx context.Context, job *Job) error
	MarkRunning(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, entries int) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
}

// MemoryJobStore keeps jobs in process memory. Expired jobs are dropped on
// write.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryJobStore(ttl time.Duration) *MemoryJobStore {
	if ttl <= 0 {
		ttl = defaultJobTTL
	}
	return &MemoryJobStore{jobs: make(map[string]*Job), ttl: ttl, now: time.Now}
}

var _ JobStore = (*MemoryJobStore)(nil)

func (s *MemoryJobStore) PutPending(_ context.Context, job *Job) error {
	if job == nil {
		return errors.New("precompute: job cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	for id, j := range s.jobs {
		if j.ExpiresAt > 0 && j.ExpiresAt < now.Unix() {
			delete(s.jobs, id)
		}
	}
	if _, exists := s.jobs[job.JobID]; exists {
		return errors.New("precompute: job already exists")
	}
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	job.ExpiresAt = now.Add(s.ttl).Unix()
	stored := *job
	s.jobs[job.JobID] = &stored
	return nil
}

func (s *MemoryJobStore) update(jobID string, fn func(j *Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	fn(j)
	j.UpdatedAt = s.now().UTC().Format(time.RFC3339Nano)
	return nil
}

func (s *MemoryJobStore) MarkRunning(_ context.Context, jobID string) error {
	return s.update(jobID, func(j *Job) { j.Status = JobStatusRunning })
}

func (s *MemoryJobStore) MarkCompleted(_ context.Context, jobID string, entries int) error {
	return s.update(jobID, func(j *Job) {
		j.Status = JobStatusCompleted
		j.EntriesWritten = entries
		j.ErrorMessage = ""
	})
}

func (s *MemoryJobStore) MarkFailed(_ context.Context, jobID string, errMsg string) error {
	return s.update(jobID, func(j *Job) {
		j.Status = JobStatusFailed
		j.ErrorMessage = errMsg
	})
}

func (s *MemoryJobStore) GetJob(_ context.Context, jobID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	out := *j
	return &out, nil
}
