package coursewire

import (
	"context"
	"log/slog"
	"sync"
)

// completionThreshold is the watched ratio past which a lesson counts as
// finished.
const completionThreshold = 0.95

// CompletionTracker marks a lesson complete once the viewer has watched
// most of it. The mark-complete call fires at most once per lesson: a
// sticky completed flag plus an in-flight guard keep repeated time updates,
// seeks, and replays from firing it again.
type CompletionTracker struct {
	client *Client
	logger *slog.Logger

	mu        sync.Mutex
	lessonID  string
	completed bool
	inFlight  bool

	// OnComplete is called once when the lesson is first marked complete.
	OnComplete func(lessonID string)
	// Invalidate is called after a successful mark so callers can refresh
	// any cached course state.
	Invalidate func()
}

// NewCompletionTracker creates a tracker with no lesson bound. Call
// SetLesson before feeding it time updates.
func NewCompletionTracker(client *Client) *CompletionTracker {
	return &CompletionTracker{
		client: client,
		logger: slog.Default().With("component", "completion"),
	}
}

// SetLesson binds the tracker to a lesson and resets all completion state.
// alreadyCompleted seeds the sticky flag for lessons the subject finished
// in an earlier session.
func (c *CompletionTracker) SetLesson(lessonID string, alreadyCompleted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lessonID = lessonID
	c.completed = alreadyCompleted
	c.inFlight = false
}

// Completed reports whether the current lesson has been marked complete.
func (c *CompletionTracker) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

// CheckCompletion is called on every playback time update. It fires the
// mark-complete call when the watched ratio crosses the threshold, exactly
// once per lesson. On failure the guard clears so a later update can retry.
func (c *CompletionTracker) CheckCompletion(ctx context.Context, currentTime, duration float64) {
	if duration <= 0 || currentTime <= 0 {
		return
	}
	if currentTime/duration <= completionThreshold {
		return
	}

	c.mu.Lock()
	if c.lessonID == "" || c.completed || c.inFlight {
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	lessonID := c.lessonID
	c.mu.Unlock()

	err := c.client.MarkLessonComplete(ctx, lessonID)

	c.mu.Lock()
	c.inFlight = false
	if err == nil {
		c.completed = true
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("failed to mark lesson complete", "lesson_id", lessonID, "error", err)
		return
	}

	if c.Invalidate != nil {
		c.Invalidate()
	}
	if c.OnComplete != nil {
		c.OnComplete(lessonID)
	}
}
