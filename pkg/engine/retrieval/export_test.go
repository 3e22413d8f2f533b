package retrieval

import "time"

// SetNow replaces the clock used for recency decay
func (s *Hybrid) SetNow(now func() time.Time) {
	s.now = now
}
