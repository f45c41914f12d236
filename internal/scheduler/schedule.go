package scheduler

import "time"

// fixedRate fires every interval, aligned to anchor. Unlike
// cron.ConstantDelaySchedule it keeps sub-second intervals and does not
// drift when a tick runs late.
type fixedRate struct {
	anchor   time.Time
	interval time.Duration
}

// Next returns the first anchor+k*interval strictly after t (k >= 1).
func (s fixedRate) Next(t time.Time) time.Time {
	elapsed := t.Sub(s.anchor)
	if elapsed < 0 {
		return s.anchor.Add(s.interval)
	}
	k := elapsed/s.interval + 1
	return s.anchor.Add(k * s.interval)
}
