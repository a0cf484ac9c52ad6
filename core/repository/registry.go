package repository

import (
	"errors"
	"sort"
	"sync"
	"time"

	"command-center/core/models"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already registered")
)

// JobRegistry holds the live state of every accepted job. One lock guards the
// whole map; each job's pipeline only ever mutates its own entry.
type JobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*models.JobState
	now  func() time.Time
}

// NewJobRegistry creates an empty registry
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{
		jobs: make(map[string]*models.JobState),
		now:  time.Now,
	}
}

// Create registers a new job. The stored copy is independent of state.
func (r *JobRegistry) Create(state models.JobState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[state.ID]; ok {
		return ErrJobExists
	}
	now := r.now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now
	r.jobs[state.ID] = cloneState(&state)
	return nil
}

// Get returns a snapshot of a job's state
func (r *JobRegistry) Get(id string) (models.JobState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.jobs[id]
	if !ok {
		return models.JobState{}, ErrJobNotFound
	}
	return *cloneState(state), nil
}

// List returns snapshots of all jobs, newest first
func (r *JobRegistry) List() []models.JobState {
	r.mu.Lock()
	out := make([]models.JobState, 0, len(r.jobs))
	for _, state := range r.jobs {
		out = append(out, *cloneState(state))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Update applies mutate to a job's state under the registry lock and returns
// the resulting snapshot. mutate must not block.
func (r *JobRegistry) Update(id string, mutate func(*models.JobState)) (models.JobState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.jobs[id]
	if !ok {
		return models.JobState{}, ErrJobNotFound
	}
	mutate(state)
	state.ID = id
	state.UpdatedAt = r.now()
	return *cloneState(state), nil
}

// EvictTerminated drops jobs that reached a terminal status more than
// olderThan ago and returns them.
func (r *JobRegistry) EvictTerminated(olderThan time.Duration) []models.JobState {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-olderThan)
	var evicted []models.JobState
	for id, state := range r.jobs {
		if state.Status.IsTerminal() && state.UpdatedAt.Before(cutoff) {
			evicted = append(evicted, *state)
			delete(r.jobs, id)
		}
	}
	return evicted
}

// CountByStatus returns the number of registered jobs per status
func (r *JobRegistry) CountByStatus() map[models.JobStatus]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[models.JobStatus]int)
	for _, state := range r.jobs {
		counts[state.Status]++
	}
	return counts
}

func cloneState(s *models.JobState) *models.JobState {
	c := *s
	if s.SessionID != nil {
		id := *s.SessionID
		c.SessionID = &id
	}
	if s.LastPoll != nil {
		t := *s.LastPoll
		c.LastPoll = &t
	}
	if s.PR != nil {
		pr := *s.PR
		c.PR = &pr
	}
	return &c
}
