package cron

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Job is one unit of scheduled work. Run must be safe to repeat: a cycle can
// be retried after a crash before its effects are committed.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs keyed by name, preserving registration order.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

// NewRegistry registers jobs in order. Nil jobs are skipped; a repeated name
// is an error.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{names: map[string]struct{}{}}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := job.Name()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("cron job name is required")
	}
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("cron job %q registered twice", name)
	}
	r.names[name] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, job.Name())
	}
	return names
}

// Select narrows the registry to the named jobs, keeping registration order.
// An empty selection keeps everything.
func (r *Registry) Select(names ...string) (*Registry, error) {
	wanted := map[string]struct{}{}
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			wanted[name] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return r, nil
	}

	var unknown []string
	for name := range wanted {
		if _, ok := r.names[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown cron jobs: %s (known: %s)", strings.Join(unknown, ", "), strings.Join(r.Names(), ", "))
	}

	selected := &Registry{names: map[string]struct{}{}}
	for _, job := range r.jobs {
		if _, ok := wanted[job.Name()]; ok {
			_ = selected.Register(job)
		}
	}
	return selected, nil
}
