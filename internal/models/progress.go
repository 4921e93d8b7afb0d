package models

import "time"

// VideoProgress maps (subject, video) to the last watched playhead position.
// Saves are last-write-wins; the row is upserted on every save.
type VideoProgress struct {
	Subject         string    `json:"-"`
	VideoID         string    `json:"videoId"`
	LastWatchedTime float64   `json:"lastWatchedTime"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// LessonCompletion records that a subject finished a lesson. Completion is
// sticky: once recorded, repeat completion calls are idempotent no-ops.
type LessonCompletion struct {
	Subject     string    `json:"-"`
	LessonID    string    `json:"lessonId"`
	CompletedAt time.Time `json:"completedAt"`
}

// VideoProgressDto is the body returned by the video progress endpoints. A
// video with no saved progress reports lastWatchedTime 0.
type VideoProgressDto struct {
	VideoID         string  `json:"videoId"`
	LastWatchedTime float64 `json:"lastWatchedTime"`
}

// CompleteResponse is the body of POST /api/lessons/{lessonId}/complete.
type CompleteResponse struct {
	Completed bool `json:"completed"`
}
