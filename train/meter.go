package train

// AverageMeter tracks the latest value and the running average of a scalar
// series, e.g. per-step loss or timing.
type AverageMeter struct {
	Val   float64
	Sum   float64
	Count int
	Avg   float64
}

// Update records one observation.
func (m *AverageMeter) Update(v float64) {
	m.Val = v
	m.Sum += v
	m.Count++
	m.Avg = m.Sum / float64(m.Count)
}

// Reset clears the meter for a new epoch.
func (m *AverageMeter) Reset() {
	*m = AverageMeter{}
}
