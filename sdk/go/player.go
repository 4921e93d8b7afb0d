package coursewire

import "context"

// PlayerSession wires the streaming controller, progress tracker, and
// completion tracker together for one video viewing session. Feed it
// playback time updates from the player; it keeps progress saved and marks
// the lesson complete at the right moment.
type PlayerSession struct {
	Stream     *StreamController
	Progress   *ProgressTracker
	Completion *CompletionTracker

	playhead PlayheadFunc
}

// PlayerSessionConfig configures a viewing session.
type PlayerSessionConfig struct {
	// VideoID identifies the video being played.
	VideoID string
	// LessonID is the lesson this video belongs to. Empty disables
	// completion tracking.
	LessonID string
	// LessonCompleted seeds the completion state for lessons finished in an
	// earlier session.
	LessonCompleted bool
	// Playhead reports the player's current position and duration.
	Playhead PlayheadFunc
}

// NewPlayerSession composes the three engines for one video.
func NewPlayerSession(client *Client, cfg PlayerSessionConfig) *PlayerSession {
	completion := NewCompletionTracker(client)
	completion.SetLesson(cfg.LessonID, cfg.LessonCompleted)

	return &PlayerSession{
		Stream:     NewStreamController(client, cfg.VideoID),
		Progress:   NewProgressTracker(client, cfg.VideoID, cfg.Playhead),
		Completion: completion,
		playhead:   cfg.Playhead,
	}
}

// Start loads the manifest and saved progress, then launches the periodic
// progress saver. The manifest load failing does not block progress
// tracking; the returned error is the stream error for the caller to
// surface.
func (ps *PlayerSession) Start(ctx context.Context) error {
	streamErr := ps.Stream.Load(ctx)

	_, duration := ps.playhead()
	ps.Progress.Load(ctx, duration)
	ps.Progress.Start(ctx)

	return streamErr
}

// OnTimeUpdate fans a playback time update into the completion tracker.
// The progress saver runs on its own ticker and does not need per-update
// notification.
func (ps *PlayerSession) OnTimeUpdate(ctx context.Context, currentTime, duration float64) {
	ps.Completion.CheckCompletion(ctx, currentTime, duration)
}

// Close tears the session down: stops the saver with a final best-effort
// progress flush and releases the parsed manifest state.
func (ps *PlayerSession) Close() {
	ps.Progress.Close()
	ps.Stream.Close()
}
