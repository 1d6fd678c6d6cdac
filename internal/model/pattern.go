package model

import "time"

// PayeePattern is the learned mapping from a normalized payee name to the
// category a human most recently reinforced for it. Counters only ever grow;
// confidence is derived on read, never stored.
type PayeePattern struct {
	LastUsed       time.Time
	PayeeName      string
	CategoryID     string
	CategoryName   string
	CorrectCount   int
	IncorrectCount int
}

// Observations returns the total number of recorded decisions for the pattern.
func (p *PayeePattern) Observations() int {
	return p.CorrectCount + p.IncorrectCount
}

// Accuracy returns the fraction of decisions that confirmed the pattern, or 0
// when nothing has been recorded yet.
func (p *PayeePattern) Accuracy() float64 {
	total := p.Observations()
	if total == 0 {
		return 0
	}
	return float64(p.CorrectCount) / float64(total)
}
