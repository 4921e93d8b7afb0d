package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coursewire/coursewire/internal/database"
	"github.com/coursewire/coursewire/internal/metrics"
	"github.com/coursewire/coursewire/internal/middleware"
	"github.com/coursewire/coursewire/internal/models"
)

// maxPlayheadSeconds bounds lastWatchedTime to something sane (1 week of video).
const maxPlayheadSeconds = 604800

// VideoProgressHandler handles GET and POST /api/video-progress/{videoId}.
// POST saves the playhead passed as the lastWatchedTime query parameter; GET
// returns the saved playhead, or 0 when nothing has been saved yet.
func VideoProgressHandler(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videoID := strings.TrimPrefix(r.URL.Path, "/api/video-progress/")
		if videoID == "" || strings.ContainsRune(videoID, '/') {
			sendError(w, "Invalid video id", "INVALID_VIDEO_ID", http.StatusBadRequest)
			return
		}

		subject := middleware.Subject(r.Context())

		switch r.Method {
		case http.MethodGet:
			progress, err := database.GetVideoProgress(db, subject, videoID)
			if err != nil {
				slog.Error("failed to get video progress", "error", err)
				sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
				return
			}

			var t float64
			if progress != nil {
				t = progress.LastWatchedTime
			}
			sendData(w, models.VideoProgressDto{VideoID: videoID, LastWatchedTime: t}, http.StatusOK)

		case http.MethodPost:
			raw := r.URL.Query().Get("lastWatchedTime")
			t, err := strconv.ParseFloat(raw, 64)
			if err != nil || t < 0 || t > maxPlayheadSeconds {
				metrics.ProgressSavesTotal.WithLabelValues("invalid").Inc()
				sendError(w, "lastWatchedTime must be a non-negative number of seconds", "INVALID_WATCH_TIME", http.StatusBadRequest)
				return
			}

			if err := database.SaveVideoProgress(db, subject, videoID, t, time.Now().UTC()); err != nil {
				metrics.ProgressSavesTotal.WithLabelValues("error").Inc()
				slog.Error("failed to save video progress", "error", err)
				sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
				return
			}

			metrics.ProgressSavesTotal.WithLabelValues("saved").Inc()
			slog.Debug("video progress saved",
				"video_id", videoID,
				"last_watched_time", t,
			)
			sendData(w, models.VideoProgressDto{VideoID: videoID, LastWatchedTime: t}, http.StatusOK)

		default:
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
		}
	}
}

// LessonCompleteHandler handles POST /api/lessons/{lessonId}/complete.
// Marking a lesson complete is idempotent; repeats return completed: true
// without touching the stored row.
func LessonCompleteHandler(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/api/lessons/")
		lessonID, ok := strings.CutSuffix(path, "/complete")
		if !ok || lessonID == "" || strings.ContainsRune(lessonID, '/') {
			sendError(w, "Invalid lesson id", "INVALID_LESSON_ID", http.StatusBadRequest)
			return
		}

		subject := middleware.Subject(r.Context())

		if err := database.MarkLessonComplete(db, subject, lessonID, time.Now().UTC()); err != nil {
			metrics.LessonCompletionsTotal.WithLabelValues("error").Inc()
			slog.Error("failed to mark lesson complete", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		metrics.LessonCompletionsTotal.WithLabelValues("completed").Inc()
		slog.Info("lesson marked complete",
			"lesson_id", lessonID,
			"client_ip", getClientIP(r),
		)
		sendData(w, models.CompleteResponse{Completed: true}, http.StatusOK)
	}
}
