package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	ytapi "github.com/hightemp/youtube-transcript-api-go/api"
	yt "github.com/kkdai/youtube/v2"
	"go.uber.org/zap"

	"studymate-backend/internal/models"
)

// seconds assigned to each caption line when the source carries no timing
const captionLineSeconds = 4.0

type YouTubeService struct {
	httpClient    *http.Client
	transcriptAPI *ytapi.YouTubeTranscriptApi
	ytClient      *yt.Client
	log           *zap.Logger
}

type timedTextXML struct {
	XMLName xml.Name  `xml:"transcript"`
	Texts   []textXML `xml:"text"`
}

type textXML struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Text  string `xml:",chardata"`
}

func NewYouTubeService(log *zap.Logger) *YouTubeService {
	return &YouTubeService{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		transcriptAPI: ytapi.NewYouTubeTranscriptApi(),
		ytClient:      &yt.Client{},
		log:           log,
	}
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID accepts a watch URL, a short link or a bare id. The
// library passes unrecognised input through, so the result is checked
// against the id shape.
func (s *YouTubeService) ExtractVideoID(input string) (string, error) {
	id, err := yt.ExtractVideoID(strings.TrimSpace(input))
	if err != nil {
		return "", fmt.Errorf("invalid YouTube link: %w", err)
	}
	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("invalid YouTube link: %q", input)
	}
	return id, nil
}

func (s *YouTubeService) GetVideoMetadata(ctx context.Context, videoID string) (*models.YouTubeMetadata, error) {
	video, err := s.ytClient.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch YouTube video metadata: %w", err)
	}

	meta := &models.YouTubeMetadata{
		VideoID:         videoID,
		Title:           video.Title,
		ChannelName:     video.Author,
		ThumbnailURL:    fmt.Sprintf("https://img.youtube.com/vi/%s/maxresdefault.jpg", videoID),
		DurationSeconds: int(video.Duration.Seconds()),
	}
	if n := len(video.Thumbnails); n > 0 {
		meta.ThumbnailURL = video.Thumbnails[n-1].URL
	}
	return meta, nil
}

// Transcript returns the caption lines of a video. The caption timedtext
// track is used when the transcript API has nothing.
func (s *YouTubeService) Transcript(ctx context.Context, videoID string) ([]models.TranscriptLine, error) {
	transcript, err := s.transcriptAPI.GetTranscript(videoID, []string{"en", "en-US", "en-GB"})
	if err != nil {
		transcript, err = s.transcriptAPI.GetTranscript(videoID, nil)
		if err != nil {
			lines, legacyErr := s.transcriptViaTimedText(ctx, videoID)
			if legacyErr == nil {
				return lines, nil
			}
			return nil, fmt.Errorf("no subtitles available via transcript API (%v) and timedtext fallback failed (%v)", err, legacyErr)
		}
	}

	lines := make([]models.TranscriptLine, 0, len(transcript.Entries))
	for _, entry := range transcript.Entries {
		text := strings.TrimSpace(html.UnescapeString(entry.Text))
		if text == "" {
			continue
		}
		lines = append(lines, models.TranscriptLine{
			Start: float64(len(lines)) * captionLineSeconds,
			Text:  text,
		})
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("subtitle track is empty")
	}
	return lines, nil
}

func (s *YouTubeService) transcriptViaTimedText(ctx context.Context, videoID string) ([]models.TranscriptLine, error) {
	pageURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch YouTube page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read YouTube page: %w", err)
	}
	s.log.Debug("timedtext fallback fetched watch page", zap.String("video_id", videoID), zap.Int("bytes", len(body)))

	captionURL, err := extractCaptionURL(string(body))
	if err != nil {
		return nil, err
	}

	captionReq, err := http.NewRequestWithContext(ctx, http.MethodGet, captionURL, nil)
	if err != nil {
		return nil, err
	}
	captionResp, err := s.httpClient.Do(captionReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch captions: %w", err)
	}
	defer captionResp.Body.Close()

	captionBody, err := io.ReadAll(captionResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read captions: %w", err)
	}

	lines, err := parseCaptionsXML(captionBody)
	if err != nil {
		return nil, fmt.Errorf("failed to parse captions XML: %w", err)
	}
	return lines, nil
}

var (
	captionTracksRe = regexp.MustCompile(`"captionTracks"\s*:\s*\[(.*?)\],\s*"`)
	trackListRe     = regexp.MustCompile(`"playerCaptionsTracklistRenderer"\s*:\s*\{(?:.*?,)?\s*"captionTracks"\s*:\s*\[(.*?)\],\s*"`)
	baseURLRe       = regexp.MustCompile(`"baseUrl"\s*:\s*"(.*?)"`)
)

func extractCaptionURL(pageHTML string) (string, error) {
	matches := captionTracksRe.FindStringSubmatch(pageHTML)
	if len(matches) < 2 {
		matches = trackListRe.FindStringSubmatch(pageHTML)
		if len(matches) < 2 {
			return "", fmt.Errorf("no captions available for this video")
		}
	}

	urlMatches := baseURLRe.FindStringSubmatch(matches[1])
	if len(urlMatches) < 2 {
		return "", fmt.Errorf("caption track found but baseUrl missing")
	}

	u := strings.ReplaceAll(urlMatches[1], `\u0026`, "&")
	return strings.ReplaceAll(u, `\/`, "/"), nil
}

func parseCaptionsXML(data []byte) ([]models.TranscriptLine, error) {
	var tt timedTextXML
	if err := xml.Unmarshal(data, &tt); err != nil {
		return nil, err
	}

	var lines []models.TranscriptLine
	for _, t := range tt.Texts {
		text := strings.TrimSpace(html.UnescapeString(t.Text))
		if text == "" {
			continue
		}
		start, err := strconv.ParseFloat(t.Start, 64)
		if err != nil {
			start = float64(len(lines)) * captionLineSeconds
		}
		lines = append(lines, models.TranscriptLine{Start: start, Text: text})
	}

	if len(lines) == 0 {
		return nil, fmt.Errorf("captions XML empty")
	}
	return lines, nil
}
