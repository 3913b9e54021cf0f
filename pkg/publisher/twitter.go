// Package publisher posts formatted content to social platforms.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dghubble/go-twitter/twitter"
	"github.com/dghubble/oauth1"
	"github.com/go-resty/resty/v2"
	"github.com/sipeed/picopost/pkg/logger"
	"github.com/sipeed/picopost/pkg/pipeline"
	"github.com/sipeed/picopost/pkg/utils"
	"golang.org/x/time/rate"
)

const (
	defaultUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	uploadTimeout    = 60 * time.Second
)

type TwitterConfig struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
	// MinInterval spaces consecutive posts; zero disables spacing.
	MinInterval time.Duration
	// HTTPClient is the transport under the OAuth1 signer. Nil uses http.DefaultClient.
	HTTPClient *http.Client
	UploadURL  string
}

// Twitter publishes statuses, optionally with one image, via the v1.1 API.
type Twitter struct {
	client    *twitter.Client
	upload    *resty.Client
	media     *MediaFetcher
	limiter   *rate.Limiter
	uploadURL string
}

func NewTwitter(cfg TwitterConfig) *Twitter {
	ctx := oauth1.NoContext
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, cfg.HTTPClient)
	}

	signed := oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret).
		Client(ctx, oauth1.NewToken(cfg.AccessToken, cfg.AccessTokenSecret))

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	uploadURL := cfg.UploadURL
	if uploadURL == "" {
		uploadURL = defaultUploadURL
	}

	return &Twitter{
		client:    twitter.NewClient(signed),
		upload:    resty.NewWithClient(detachedClient(signed)).SetTimeout(uploadTimeout),
		media:     NewMediaFetcher(cfg.HTTPClient),
		limiter:   rate.NewLimiter(limit, 1),
		uploadURL: uploadURL,
	}
}

func (t *Twitter) Name() string {
	return "twitter"
}

func (t *Twitter) Publish(ctx context.Context, content pipeline.Content, mediaRef string) error {
	if content.Text == "" && mediaRef == "" {
		return pipeline.PublishError("twitter", errors.New("nothing to publish"))
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return pipeline.PublishError("twitter rate limit", err)
	}

	params := &twitter.StatusUpdateParams{}
	if mediaRef != "" {
		id, err := t.uploadMedia(ctx, mediaRef)
		if err != nil {
			return err
		}
		params.MediaIds = []int64{id}
	}

	tweet, resp, err := t.client.Statuses.Update(content.Text, params)
	if err == nil && resp != nil && resp.StatusCode >= http.StatusMultipleChoices {
		err = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err != nil {
		return pipeline.PublishError("twitter status update", describeTwitterError(err))
	}

	logger.InfoCF("twitter", "Tweet posted", map[string]any{
		"tweet_id":  tweet.IDStr,
		"has_media": mediaRef != "",
		"preview":   utils.Truncate(content.Text, 50),
	})
	return nil
}

type mediaUploadResponse struct {
	MediaID       int64  `json:"media_id"`
	MediaIDString string `json:"media_id_string"`
}

func (t *Twitter) uploadMedia(ctx context.Context, ref string) (int64, error) {
	m, err := t.media.Fetch(ctx, ref)
	if err != nil {
		return 0, pipeline.PublishError("twitter fetch media", err)
	}

	var out mediaUploadResponse
	resp, err := t.upload.R().
		SetContext(ctx).
		SetFileReader("media", m.Filename, m.Reader()).
		SetResult(&out).
		Post(t.uploadURL)
	if err != nil {
		return 0, pipeline.PublishError("twitter upload media", err)
	}
	if resp.IsError() {
		return 0, pipeline.PublishError("twitter upload media",
			fmt.Errorf("status %d: %s", resp.StatusCode(), utils.Truncate(resp.String(), 200)))
	}
	if out.MediaID == 0 {
		return 0, pipeline.PublishError("twitter upload media", errors.New("response has no media id"))
	}

	logger.DebugCF("twitter", "Media uploaded", map[string]any{
		"media_id": out.MediaIDString,
		"bytes":    len(m.Data),
	})
	return out.MediaID, nil
}

// Twitter API error codes worth naming in logs.
const (
	codeInvalidToken   = 89
	codeAuthFailed     = 32
	codeRateLimited    = 88
	codeDailyLimit     = 185
	codeDuplicate      = 187
	codeInvalidMediaID = 324
)

func describeTwitterError(err error) error {
	var apiErr twitter.APIError
	if !errors.As(err, &apiErr) || len(apiErr.Errors) == 0 {
		return err
	}
	switch apiErr.Errors[0].Code {
	case codeInvalidToken, codeAuthFailed:
		return fmt.Errorf("auth rejected: %w", err)
	case codeRateLimited, codeDailyLimit:
		return fmt.Errorf("rate limited: %w", err)
	case codeDuplicate:
		return fmt.Errorf("duplicate status: %w", err)
	case codeInvalidMediaID:
		return fmt.Errorf("media rejected: %w", err)
	default:
		return err
	}
}
