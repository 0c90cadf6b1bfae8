package domain

// ScanReport summarises a single SLA job run.
type ScanReport struct {
	Job          string `json:"job"`
	Scanned      int    `json:"scanned"`
	Flagged      int    `json:"flagged,omitempty"`
	Emitted      int    `json:"emitted,omitempty"`
	Triggered    int    `json:"triggered,omitempty"`
	Recalculated int    `json:"recalculated,omitempty"`
	Failed       int    `json:"failed"`
	// Skipped is set when another process held the job's scan lock.
	Skipped bool `json:"skipped,omitempty"`
}

// Merge adds the counters of other into r.
func (r *ScanReport) Merge(other ScanReport) {
	r.Scanned += other.Scanned
	r.Flagged += other.Flagged
	r.Emitted += other.Emitted
	r.Triggered += other.Triggered
	r.Recalculated += other.Recalculated
	r.Failed += other.Failed
}
