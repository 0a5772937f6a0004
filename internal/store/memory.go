package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps jobs in process memory. It serves the local web server
// and the CLI; records are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

var _ JobStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (m *MemoryStore) PutJob(_ context.Context, job *Job) error {
	now := time.Now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(job), nil
}

func (m *MemoryStore) PutRun(_ context.Context, jobID string, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		job = &Job{ID: jobID, CreatedAt: time.Now().Unix()}
		m.jobs[jobID] = job
	}
	r := *run
	r.Assets = slices.Clone(run.Assets)
	if r.UpdatedAt == 0 {
		r.UpdatedAt = time.Now().Unix()
	}
	for i := range job.Runs {
		if job.Runs[i].Index == r.Index {
			job.Runs[i] = r
			return nil
		}
	}
	job.Runs = append(job.Runs, r)
	slices.SortFunc(job.Runs, func(a, b Run) int { return a.Index - b.Index })
	return nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, jobID, status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		job = &Job{ID: jobID, CreatedAt: time.Now().Unix()}
		m.jobs[jobID] = job
	}
	job.Status = status
	job.Error = errMsg
	job.UpdatedAt = time.Now().Unix()
	return nil
}

func (m *MemoryStore) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func cloneJob(j *Job) *Job {
	c := *j
	c.Assets = slices.Clone(j.Assets)
	c.Runs = make([]Run, len(j.Runs))
	for i, r := range j.Runs {
		r.Assets = slices.Clone(r.Assets)
		c.Runs[i] = r
	}
	return &c
}
