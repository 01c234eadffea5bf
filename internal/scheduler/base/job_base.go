// Package base provides a base implementation for scheduler jobs.
package base

// JobBase provides a default embeddable implementation for jobs that don't
// need any state of their own beyond a name. Jobs can embed this to satisfy
// the scheduler.Job interface's common bits.
type JobBase struct {
	name string
}

// NewJobBase returns a JobBase reporting the given name.
func NewJobBase(name string) JobBase {
	return JobBase{name: name}
}

// Name returns the job's registered name.
func (j JobBase) Name() string {
	return j.name
}
