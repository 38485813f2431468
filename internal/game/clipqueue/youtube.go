package clipqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// YouTubeResolver resolves clip metadata through the YouTube Data API v3.
// Lookups run with their own timeout so a slow API call cannot stall a
// lobby for long.
type YouTubeResolver struct {
	APIKey  string
	Client  *http.Client
	Logger  *logrus.Logger
	Timeout time.Duration
}

// NewYouTubeResolver returns a resolver using the given API key.
func NewYouTubeResolver(apiKey string, logger *logrus.Logger) *YouTubeResolver {
	return &YouTubeResolver{
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Logger:  logger,
		Timeout: 5 * time.Second,
	}
}

type videosResponse struct {
	Items []struct {
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
			Thumbnails   struct {
				Medium struct {
					URL string `json:"url"`
				} `json:"medium"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Status struct {
			Embeddable    bool   `json:"embeddable"`
			PrivacyStatus string `json:"privacyStatus"`
		} `json:"status"`
	} `json:"items"`
}

// Resolve implements Resolver.
func (r *YouTubeResolver) Resolve(videoID string) (ClipMeta, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	q := url.Values{}
	q.Set("part", "snippet,contentDetails,status")
	q.Set("id", videoID)
	q.Set("key", r.APIKey)
	endpoint := "https://www.googleapis.com/youtube/v3/videos?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ClipMeta{}, err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Warnf("youtube lookup failed for %s: %v", videoID, err)
		}
		return ClipMeta{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ClipMeta{}, fmt.Errorf("youtube api status %d", resp.StatusCode)
	}
	var body videosResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ClipMeta{}, err
	}
	if len(body.Items) == 0 {
		return ClipMeta{}, ErrNotFound
	}
	item := body.Items[0]
	if !item.Status.Embeddable || item.Status.PrivacyStatus != "public" {
		return ClipMeta{}, ErrNotFound
	}
	return ClipMeta{
		Title:           item.Snippet.Title,
		ChannelTitle:    item.Snippet.ChannelTitle,
		DurationISO8601: item.ContentDetails.Duration,
		ThumbnailURL:    item.Snippet.Thumbnails.Medium.URL,
	}, nil
}
