package cron

import "context"

// Job is a unit of scheduled work run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs the worker sweeps through each tick.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry from the given jobs, skipping nil entries.
func NewRegistry(jobs ...Job) *Registry {
	reg := &Registry{jobs: make([]Job, 0, len(jobs))}
	for _, j := range jobs {
		reg.Register(j)
	}
	return reg
}

// Register appends a job. Nil jobs are ignored.
func (reg *Registry) Register(j Job) {
	if j == nil {
		return
	}
	reg.jobs = append(reg.jobs, j)
}

// Jobs returns a copy of the registered jobs in registration order.
func (reg *Registry) Jobs() []Job {
	out := make([]Job, len(reg.jobs))
	copy(out, reg.jobs)
	return out
}
