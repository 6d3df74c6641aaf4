package model

// Progress tracks how far a running job has advanced. It is best effort:
// readers may observe a slightly stale value, never a torn one, because the
// whole pair is written in a single statement at chunk boundaries.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Percent returns completion as 0-100. A zero total reports 0.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	pct := p.Current * 100 / p.Total
	if pct > 100 {
		pct = 100
	}
	return pct
}
