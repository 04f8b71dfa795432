package cron

import (
	"context"
	"slices"
)

// Job is one unit of periodic work. Run must honor ctx cancellation.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry keeps jobs in the order a cycle runs them. Names are unique; a
// later job reusing a name is dropped.
type Registry struct {
	jobs []Job
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register appends job and reports whether it was accepted.
func (r *Registry) Register(job Job) bool {
	if job == nil || slices.Contains(r.Names(), job.Name()) {
		return false
	}
	r.jobs = append(r.jobs, job)
	return true
}

// Jobs returns the jobs in run order. The slice is a copy.
func (r *Registry) Jobs() []Job { return slices.Clone(r.jobs) }

func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		names[i] = job.Name()
	}
	return names
}
