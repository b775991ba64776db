package services

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/utils"
)

// VideoCandidate is one result from the external video search.
type VideoCandidate struct {
	VideoID     string   `json:"video_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Tags        []string `json:"tags,omitempty"`
	DurationSec int      `json:"duration_sec"`
}

type VideoSearch interface {
	Search(ctx context.Context, query string, maxResults int) ([]VideoCandidate, error)
}

type CaptionFetcher interface {
	FetchCaptions(ctx context.Context, videoID string) (string, error)
}

const (
	// Accepted duration window for tutorial candidates.
	minVideoDurationSec = 10 * 60
	maxVideoDurationSec = 60 * 60
)

type youtubeClient struct {
	log         *logger.Logger
	apiKey      string
	apiBaseURL  string
	captionsURL string
	httpClient  *http.Client
}

// NewYouTubeClient builds the Data API v3 search client, which also serves
// captions from the timedtext endpoint.
func NewYouTubeClient(log *logger.Logger) (*youtubeClient, error) {
	apiKey := utils.GetEnv("YOUTUBE_API_KEY", "", nil)
	if apiKey == "" {
		return nil, fmt.Errorf("missing YOUTUBE_API_KEY")
	}

	return &youtubeClient{
		log:         log.With("service", "YouTubeClient"),
		apiKey:      apiKey,
		apiBaseURL:  utils.GetEnv("YOUTUBE_API_BASE_URL", "https://www.googleapis.com/youtube/v3", nil),
		captionsURL: utils.GetEnv("YOUTUBE_CAPTIONS_BASE_URL", "https://www.youtube.com", nil),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string   `json:"title"`
			Description string   `json:"description"`
			Tags        []string `json:"tags"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

func (c *youtubeClient) Search(ctx context.Context, query string, maxResults int) ([]VideoCandidate, error) {
	ctx = defaultCtx(ctx)

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", query)
	params.Set("type", "video")
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("key", c.apiKey)

	var search searchResponse
	if err := c.getJSON(ctx, c.apiBaseURL+"/search?"+params.Encode(), &search); err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}

	ids := make([]string, 0, len(search.Items))
	for _, item := range search.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	detailsParams := url.Values{}
	detailsParams.Set("part", "snippet,contentDetails")
	detailsParams.Set("id", strings.Join(ids, ","))
	detailsParams.Set("key", c.apiKey)

	var details videosResponse
	if err := c.getJSON(ctx, c.apiBaseURL+"/videos?"+detailsParams.Encode(), &details); err != nil {
		return nil, fmt.Errorf("youtube video details: %w", err)
	}

	results := make([]VideoCandidate, 0, len(details.Items))
	for _, item := range details.Items {
		durationStr := item.ContentDetails.Duration
		if durationStr == "" {
			c.log.Warn("Skipping video with missing duration", "video_id", item.ID)
			continue
		}
		duration, err := ParseISODuration(durationStr)
		if err != nil {
			c.log.Warn("Skipping video with unparsable duration", "video_id", item.ID, "duration", durationStr, "error", err)
			continue
		}
		if duration < minVideoDurationSec || duration > maxVideoDurationSec {
			continue
		}
		results = append(results, VideoCandidate{
			VideoID:     item.ID,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
			Tags:        item.Snippet.Tags,
			URL:         "https://www.youtube.com/watch?v=" + item.ID,
			DurationSec: duration,
		})
	}
	return results, nil
}

func (c *youtubeClient) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}

type timedTextResponse struct {
	XMLName xml.Name `xml:"transcript"`
	Texts   []struct {
		Value string `xml:",chardata"`
	} `xml:"text"`
}

// FetchCaptions pulls English captions from the timedtext endpoint. A video
// without captions returns an error so the caller falls back to local
// transcription.
func (c *youtubeClient) FetchCaptions(ctx context.Context, videoID string) (string, error) {
	ctx = defaultCtx(ctx)

	captionsURL := fmt.Sprintf("%s/api/timedtext?lang=en&v=%s", c.captionsURL, url.QueryEscape(videoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, captionsURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("timedtext http %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed timedTextResponse
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("timedtext parse: %w", err)
	}

	parts := make([]string, 0, len(parsed.Texts))
	for _, t := range parsed.Texts {
		trimmed := strings.TrimSpace(t.Value)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no caption text for video %s", videoID)
	}
	return strings.Join(parts, " "), nil
}

// ExtractVideoID pulls the external video id out of watch, youtu.be and
// embed URL forms. Returns "" when no id can be found.
func ExtractVideoID(videoURL string) string {
	if videoURL == "" {
		return ""
	}
	parsed, err := url.Parse(videoURL)
	if err != nil {
		return ""
	}
	if v := parsed.Query().Get("v"); v != "" {
		return v
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// ParseISODuration converts an ISO-8601 duration like "PT1H2M3S" to seconds.
func ParseISODuration(s string) (int, error) {
	orig := s
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("invalid duration %q", orig)
	}
	s = s[1:]

	total := 0
	inTime := false
	num := ""
	for _, r := range s {
		switch {
		case r == 'T':
			inTime = true
		case r >= '0' && r <= '9':
			num += string(r)
		default:
			if num == "" {
				return 0, fmt.Errorf("invalid duration %q", orig)
			}
			n, err := strconv.Atoi(num)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q", orig)
			}
			num = ""
			switch r {
			case 'D':
				total += n * 86400
			case 'H':
				if !inTime {
					return 0, fmt.Errorf("invalid duration %q", orig)
				}
				total += n * 3600
			case 'M':
				if !inTime {
					return 0, fmt.Errorf("unsupported duration unit in %q", orig)
				}
				total += n * 60
			case 'S':
				if !inTime {
					return 0, fmt.Errorf("invalid duration %q", orig)
				}
				total += n
			default:
				return 0, fmt.Errorf("unsupported duration unit %q in %q", r, orig)
			}
		}
	}
	if num != "" {
		return 0, fmt.Errorf("invalid duration %q", orig)
	}
	return total, nil
}
