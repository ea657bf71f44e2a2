package cleanup

import (
	"context"
	"time"

	"eventsite/internal/data"
	"eventsite/internal/logger"
)

const cleanupHour = 4 // 4 AM, after the night is over

// nextRun returns the next occurrence of cleanupHour after now.
func nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), cleanupHour, 0, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// StartCleanupRoutine prunes the revision history once a day, keeping the
// newest keep revisions, until ctx is cancelled.
func StartCleanupRoutine(ctx context.Context, loc *time.Location, keep int) {
	go func() {
		logger.LogInfo("Cleanup routine started - will run daily at %d:00, keeping %d revisions", cleanupHour, keep)

		for {
			now := time.Now().In(loc)
			next := nextRun(now)
			logger.LogInfo("Next cleanup scheduled for %v (in %v)", next.Format("2006-01-02 15:04:05"), next.Sub(now))

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			RunCleanup(keep)
		}
	}()
}

// RunCleanup performs a single pruning pass.
func RunCleanup(keep int) int {
	logger.LogInfo("Starting revision history cleanup")

	removed, err := data.PruneRevisions(keep)
	if err != nil {
		logger.LogError("Failed to prune config revisions: %v", err)
		return 0
	}

	if removed == 0 {
		logger.LogInfo("Cleanup completed - nothing to prune")
	} else {
		logger.LogInfo("Cleanup completed - %d old revisions removed", removed)
	}
	return removed
}
