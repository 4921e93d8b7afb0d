package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coursewire/coursewire/internal/metrics"
	"github.com/coursewire/coursewire/internal/storage"
)

// ManifestHandler handles GET /api/videos/{videoId}/master.m3u8.
// The manifest is served raw (not enveloped) so players can consume it
// directly: an HLS master playlist listing one EXT-X-STREAM-INF entry per
// available rendition.
func ManifestHandler(backend storage.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			sendError(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/api/videos/")
		videoID, ok := strings.CutSuffix(path, "/master.m3u8")
		if !ok || videoID == "" || strings.ContainsRune(videoID, '/') {
			sendError(w, "Invalid video id", "INVALID_VIDEO_ID", http.StatusBadRequest)
			return
		}

		rc, err := backend.Retrieve(r.Context(), "videos/"+videoID+"/master.m3u8")
		if err != nil {
			metrics.ManifestRequestsTotal.WithLabelValues("not_found").Inc()
			sendError(w, "Video not found", "VIDEO_NOT_FOUND", http.StatusNotFound)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := io.Copy(w, rc); err != nil {
			slog.Error("failed to stream manifest", "error", err, "video_id", videoID)
			return
		}

		metrics.ManifestRequestsTotal.WithLabelValues("served").Inc()
		slog.Debug("manifest served", "video_id", videoID)
	}
}
