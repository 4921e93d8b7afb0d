package coursewire

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	resolutionAttr = regexp.MustCompile(`RESOLUTION=\d+x(\d+)`)
	bandwidthAttr  = regexp.MustCompile(`BANDWIDTH=(\d+)`)
)

// variant is one rendition parsed from the master manifest.
type variant struct {
	height    int
	bandwidth int
	uri       string
}

// StreamController loads a video's HLS master manifest and exposes its
// renditions as selectable quality levels. Players that handle HLS natively
// can skip Load entirely and hand ManifestURL straight to the player; the
// controller then publishes no levels.
type StreamController struct {
	client  *Client
	videoID string

	mu       sync.Mutex
	loading  bool
	loaded   bool
	variants []variant
	levels   []QualityLevel
	current  QualityLevel
	lastErr  *StreamError
}

// NewStreamController creates a controller for one video.
func NewStreamController(client *Client, videoID string) *StreamController {
	return &StreamController{
		client:  client,
		videoID: videoID,
		current: AutoQuality,
	}
}

// ManifestURL returns the authenticated master manifest URL for players that
// consume HLS directly.
func (s *StreamController) ManifestURL() string {
	return s.client.BaseURL() + "/api/videos/" + url.PathEscape(s.videoID) + "/master.m3u8"
}

// Loading reports whether a Load call is in progress.
func (s *StreamController) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Levels returns the available quality levels: one per rendition, highest
// first, with Auto appended. Empty until Load succeeds.
func (s *StreamController) Levels() []QualityLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]QualityLevel(nil), s.levels...)
}

// CurrentQuality returns the selected quality level.
func (s *StreamController) CurrentQuality() QualityLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Err returns the classified error from the last failed Load, if any.
func (s *StreamController) Err() *StreamError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Load fetches and parses the master manifest, publishing the quality
// levels. Failures are classified into the StreamError taxonomy and
// retained until Retry or a successful Load.
func (s *StreamController) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.lastErr = nil
	s.mu.Unlock()

	streamErr := s.fetchAndParse(ctx)

	s.mu.Lock()
	s.loading = false
	s.lastErr = streamErr
	s.loaded = streamErr == nil
	s.mu.Unlock()

	if streamErr != nil {
		return streamErr
	}
	return nil
}

func (s *StreamController) fetchAndParse(ctx context.Context) *StreamError {
	resp, err := s.client.request(ctx, http.MethodGet, "/api/videos/"+url.PathEscape(s.videoID)+"/master.m3u8", nil, "")
	if err != nil {
		return &StreamError{Kind: StreamErrorNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &StreamError{
			Kind: StreamErrorNetwork,
			Err:  fmt.Errorf("manifest request failed with status %d", resp.StatusCode),
		}
	}

	variants, err := parseMasterManifest(resp.Body)
	if err != nil {
		return &StreamError{Kind: StreamErrorMedia, Err: err}
	}

	levels := make([]QualityLevel, 0, len(variants)+1)
	for _, v := range variants {
		levels = append(levels, QualityLevel{Value: v.height, Label: strconv.Itoa(v.height) + "p"})
	}
	levels = append(levels, AutoQuality)

	s.mu.Lock()
	s.variants = variants
	s.levels = levels
	s.mu.Unlock()
	return nil
}

// SetCurrentQuality selects a rendition by level value (-1 returns to
// automatic selection) and returns the playlist URL to feed the player.
// Automatic selection resolves to the highest-bandwidth rendition.
func (s *StreamController) SetCurrentQuality(level int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return "", fmt.Errorf("manifest not loaded")
	}

	if level == AutoQuality.Value {
		s.current = AutoQuality
		return s.resolveURI(s.variants[0].uri), nil
	}

	for _, v := range s.variants {
		if v.height == level {
			s.current = QualityLevel{Value: v.height, Label: strconv.Itoa(v.height) + "p"}
			return s.resolveURI(v.uri), nil
		}
	}
	return "", fmt.Errorf("no rendition with level %d", level)
}

// resolveURI resolves a playlist URI relative to the master manifest URL.
func (s *StreamController) resolveURI(uri string) string {
	if strings.Contains(uri, "://") {
		return uri
	}
	return s.client.BaseURL() + "/api/videos/" + url.PathEscape(s.videoID) + "/" + uri
}

// Retry discards all parsed state and reloads the manifest.
func (s *StreamController) Retry(ctx context.Context) error {
	s.mu.Lock()
	s.variants = nil
	s.levels = nil
	s.loaded = false
	s.lastErr = nil
	s.current = AutoQuality
	s.mu.Unlock()

	return s.Load(ctx)
}

// Close releases the parsed manifest state.
func (s *StreamController) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants = nil
	s.levels = nil
	s.loaded = false
	s.lastErr = nil
}

// parseMasterManifest extracts the variant streams from an HLS master
// playlist. Variants are returned highest bandwidth first.
func parseMasterManifest(r io.Reader) ([]variant, error) {
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		return nil, fmt.Errorf("empty manifest")
	}
	if !strings.HasPrefix(strings.TrimSpace(scanner.Text()), "#EXTM3U") {
		return nil, fmt.Errorf("not an HLS manifest: missing #EXTM3U header")
	}

	var variants []variant
	var pending *variant
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			v := variant{}
			if m := resolutionAttr.FindStringSubmatch(line); m != nil {
				v.height, _ = strconv.Atoi(m[1])
			}
			if m := bandwidthAttr.FindStringSubmatch(line); m != nil {
				v.bandwidth, _ = strconv.Atoi(m[1])
			}
			pending = &v
		case line == "" || strings.HasPrefix(line, "#"):
			// other tags and blanks carry no variant info
		default:
			if pending != nil {
				pending.uri = line
				variants = append(variants, *pending)
				pending = nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("manifest contains no variant streams")
	}

	sort.Slice(variants, func(i, j int) bool {
		return variants[i].bandwidth > variants[j].bandwidth
	})
	return variants, nil
}
