package coursewire

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Playback states for a ProgressTracker.
const (
	StateLoading                = "loading"
	StateAwaitingResumeDecision = "awaiting_resume_decision"
	StatePlaying                = "playing"
)

const (
	// resumeMinSaved is the minimum saved position worth prompting about.
	resumeMinSaved = 5.0
	// resumeEndWindow and saveEndWindow keep resume prompts and saves away
	// from the final seconds of a video.
	resumeEndWindow = 10.0
	saveEndWindow   = 10.0
	// saveMinPlayhead is the minimum playhead position worth saving.
	saveMinPlayhead = 10.0
	// saveInterval is how often the periodic saver persists the playhead.
	saveInterval = 10 * time.Second
	// finalSaveTimeout bounds the best-effort save on Close.
	finalSaveTimeout = 2 * time.Second
)

// PlayheadFunc reports the player's current position and total duration in
// seconds. Duration 0 means unknown.
type PlayheadFunc func() (currentTime, duration float64)

// ProgressTracker manages playback progress for one video: it loads the
// saved position, decides whether to offer resuming, and periodically
// persists the playhead while playing.
type ProgressTracker struct {
	client   *Client
	videoID  string
	playhead PlayheadFunc
	logger   *slog.Logger

	mu        sync.Mutex
	state     string
	savedTime float64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  bool
}

// NewProgressTracker creates a tracker for one video. playhead is consulted
// by the periodic saver and by Close's final flush.
func NewProgressTracker(client *Client, videoID string, playhead PlayheadFunc) *ProgressTracker {
	return &ProgressTracker{
		client:   client,
		videoID:  videoID,
		playhead: playhead,
		logger:   slog.Default().With("component", "progress", "video_id", videoID),
		state:    StateLoading,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// State returns the current playback state.
func (p *ProgressTracker) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SavedTime returns the loaded saved position in seconds.
func (p *ProgressTracker) SavedTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.savedTime
}

// ShouldPromptResume reports whether a saved position merits asking the
// viewer to resume: it must be past the opening seconds and, when the
// duration is known, not within the final stretch of the video.
func ShouldPromptResume(savedTime, duration float64) bool {
	if savedTime <= resumeMinSaved {
		return false
	}
	return duration <= 0 || savedTime < duration-resumeEndWindow
}

// Load fetches the saved position and decides the initial state. A fetch
// failure degrades to "no saved position" rather than blocking playback.
// duration may be 0 when the player has not reported it yet.
func (p *ProgressTracker) Load(ctx context.Context, duration float64) error {
	saved, err := p.client.GetVideoProgress(ctx, p.videoID)
	if err != nil {
		p.logger.Warn("failed to load saved progress, starting from zero", "error", err)
		saved = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.savedTime = saved
	if ShouldPromptResume(saved, duration) {
		p.state = StateAwaitingResumeDecision
	} else {
		p.state = StatePlaying
	}
	return nil
}

// Resume accepts the saved position and returns the time to seek to.
func (p *ProgressTracker) Resume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StatePlaying
	return p.savedTime
}

// StartOver declines the saved position; playback starts at zero.
func (p *ProgressTracker) StartOver() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StatePlaying
	return 0
}

// Start launches the periodic saver. Saves are fire-and-forget: failures
// are logged and playback is never interrupted.
func (p *ProgressTracker) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(saveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				currentTime, duration := p.playhead()
				if err := p.SaveCurrentProgress(ctx, currentTime, duration); err != nil {
					p.logger.Warn("periodic progress save failed", "error", err)
				}
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// SaveCurrentProgress persists the playhead if it is worth saving: past the
// opening seconds and more than a few seconds from the end. Positions
// outside that window return nil without a network call.
func (p *ProgressTracker) SaveCurrentProgress(ctx context.Context, currentTime, duration float64) error {
	if !shouldSave(currentTime, duration) {
		return nil
	}
	return p.client.SaveVideoProgress(ctx, p.videoID, currentTime)
}

// shouldSave is the save guard: skip the opening seconds so accidental
// clicks don't clobber a real position, and skip the final seconds so a
// finished video restarts from the beginning next time. With the duration
// unknown (live or still-loading media) only the opening guard applies.
func shouldSave(currentTime, duration float64) bool {
	if currentTime <= saveMinPlayhead {
		return false
	}
	return duration <= 0 || duration-currentTime > saveEndWindow
}

// Close stops the periodic saver and attempts one final best-effort save
// with a short timeout. The final save may be lost; callers needing a
// guaranteed flush should call SaveCurrentProgress themselves first.
func (p *ProgressTracker) Close() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		<-p.done
	}

	ctx, cancel := context.WithTimeout(context.Background(), finalSaveTimeout)
	defer cancel()
	currentTime, duration := p.playhead()
	if err := p.SaveCurrentProgress(ctx, currentTime, duration); err != nil {
		p.logger.Warn("final progress save failed", "error", err)
	}
}
