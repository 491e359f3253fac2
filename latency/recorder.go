// Package latency accumulates critical-section timing statistics.
package latency

// A Recorder tracks the durations of the critical sections run by one actor
// and how often that actor failed to get the lock.
//
// A Recorder has exactly one writer, the actor that owns it, and therefore
// carries no lock. Anyone else may only look at the Stats the actor hands out
// after it has stopped.
type Recorder struct {
	maxNs    uint64
	totalNs  uint64
	samples  uint64
	failures uint64
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Observe adds one critical-section duration.
func (r *Recorder) Observe(durationNs uint64) {
	if durationNs > r.maxNs {
		r.maxNs = durationNs
	}

	r.totalNs += durationNs
	r.samples++
}

// RecordFailure counts one failed best-effort acquisition.
func (r *Recorder) RecordFailure() {
	r.failures++
}

// Stats returns a copy of the accumulated statistics.
func (r *Recorder) Stats() Stats {
	return Stats{
		MaxNs:        r.maxNs,
		TotalNs:      r.totalNs,
		Samples:      r.samples,
		LockFailures: r.failures,
	}
}

// Stats is a copy of the values accumulated by a Recorder.
type Stats struct {
	MaxNs        uint64 `json:"max_duration_ns"`
	TotalNs      uint64 `json:"total_duration_ns"`
	Samples      uint64 `json:"sample_count"`
	LockFailures uint64 `json:"lock_failures"`
}

// AverageNs returns TotalNs / Samples using integer division, or 0 if no
// sample has been recorded.
func (s Stats) AverageNs() uint64 {
	if s.Samples == 0 {
		return 0
	}

	return s.TotalNs / s.Samples
}

// Attempts returns the number of acquisitions tried, successful or not.
func (s Stats) Attempts() uint64 {
	return s.Samples + s.LockFailures
}

// Merge combines two Stats as if they were recorded by one actor.
func (s Stats) Merge(o Stats) Stats {
	merged := Stats{
		MaxNs:        s.MaxNs,
		TotalNs:      s.TotalNs + o.TotalNs,
		Samples:      s.Samples + o.Samples,
		LockFailures: s.LockFailures + o.LockFailures,
	}

	if o.MaxNs > merged.MaxNs {
		merged.MaxNs = o.MaxNs
	}

	return merged
}
