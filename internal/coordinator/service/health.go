package service

import (
	"fmt"
	"slices"
	"time"

	"github.com/nemanja-m/gotransform/internal/coordinator/core"
)

const (
	minLeaseCheckInterval = 10 * time.Millisecond
	maxLeaseCheckInterval = time.Second
)

// leaseCheckInterval is a quarter of the shortest lease in use, bounded to
// [10ms, 1s].
func (s *scheduler) leaseCheckInterval() time.Duration {
	shortest := s.taskTimeout
	if shortest == 0 || (s.remoteLease > 0 && s.remoteLease < shortest) {
		shortest = s.remoteLease
	}
	if shortest == 0 {
		return maxLeaseCheckInterval
	}
	return min(max(shortest/4, minLeaseCheckInterval), maxLeaseCheckInterval)
}

// expireLeases fails every InFlight file whose deadline passed. The worker
// holding it is presumed lost; whatever it reports later is ignored.
func (s *scheduler) expireLeases(now time.Time) {
	var expired []int
	for _, idx := range s.byTask {
		ft := s.files[idx]
		if ft.State == core.FileStateInFlight && !ft.Deadline.IsZero() && now.After(ft.Deadline) {
			expired = append(expired, idx)
		}
	}
	slices.Sort(expired)

	for _, idx := range expired {
		ft := s.files[idx]
		lease := s.leases[idx]
		s.logger.Warn("File lease expired",
			"path", ft.File.Path,
			"worker_id", ft.WorkerID,
			"attempt", ft.Attempts,
			"lease", lease.String(),
		)
		s.release(ft)
		s.fail(ft, fmt.Errorf("lease expired after %s on worker %s", lease, ft.WorkerID), true)
	}
}
