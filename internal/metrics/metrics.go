// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from a load run.
//
// A global, pluggable backend defaults to a no-op implementation, so the
// Record* helpers are always safe to call. Concrete systems live in
// subpackages (prompush, datadog) and are installed once from main.
package metrics

import "time"

// Metric names shared by every backend.
const (
	StepTotal    = "afl_step_total"
	StepDuration = "afl_step_duration_seconds"
	RowsTotal    = "afl_rows_total"
	FilesTotal   = "afl_files_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep counts one run step (provision, players, lineups, ...) and its
// duration, labelled by outcome.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow adds delta rows of the given kind (inserted, ignored, failed,
// skipped) for a loader. Non-positive deltas are dropped.
func RecordRow(job, loader, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{
		"job":    job,
		"loader": loader,
		"kind":   kind,
	})
}

// RecordFiles adds delta processed source files for a loader.
func RecordFiles(job, loader string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(FilesTotal, float64(delta), Labels{
		"job":    job,
		"loader": loader,
	})
}
