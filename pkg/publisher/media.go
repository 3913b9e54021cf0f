package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/sipeed/picopost/pkg/logger"
)

const (
	// Twitter rejects images above 5 MB.
	maxMediaBytes     = 5 << 20
	mediaFetchRetries = 3
	mediaFetchTimeout = 30 * time.Second
)

// Media is a downloaded attachment.
type Media struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (m Media) Reader() io.Reader {
	return bytes.NewReader(m.Data)
}

// MediaFetcher downloads media references with bounded retries.
type MediaFetcher struct {
	client      *resty.Client
	maxRetries  uint64
	initialWait time.Duration
}

func NewMediaFetcher(hc *http.Client) *MediaFetcher {
	return &MediaFetcher{
		client:      resty.NewWithClient(detachedClient(hc)).SetTimeout(mediaFetchTimeout),
		maxRetries:  mediaFetchRetries,
		initialWait: 500 * time.Millisecond,
	}
}

// Fetch downloads ref. Server errors and 429s are retried with exponential
// backoff; other client errors fail immediately.
func (f *MediaFetcher) Fetch(ctx context.Context, ref string) (Media, error) {
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Media{}, fmt.Errorf("invalid media reference %q", ref)
	}

	var media Media
	op := func() error {
		resp, err := f.client.R().SetContext(ctx).Get(ref)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		status := resp.StatusCode()
		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			return fmt.Errorf("media server returned %d", status)
		}
		if resp.IsError() {
			return backoff.Permanent(fmt.Errorf("media server returned %d", status))
		}
		body := resp.Body()
		if len(body) == 0 {
			return backoff.Permanent(errors.New("media body is empty"))
		}
		if len(body) > maxMediaBytes {
			return backoff.Permanent(fmt.Errorf("media is %d bytes, limit is %d", len(body), maxMediaBytes))
		}
		media = Media{
			Filename:    mediaFilename(u),
			ContentType: resp.Header().Get("Content-Type"),
			Data:        body,
		}
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.initialWait
	bo := backoff.WithContext(backoff.WithMaxRetries(eb, f.maxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		logger.WarnCF("media", "Media download failed, retrying", map[string]any{
			"url":   ref,
			"error": err.Error(),
			"wait":  wait.String(),
		})
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return Media{}, fmt.Errorf("failed to download media: %w", err)
	}
	return media, nil
}

// detachedClient shares hc's transport but not its settings, so resty's
// SetTimeout never changes hc or http.DefaultClient.
func detachedClient(hc *http.Client) *http.Client {
	if hc == nil {
		return &http.Client{}
	}
	return &http.Client{
		Transport:     hc.Transport,
		CheckRedirect: hc.CheckRedirect,
		Jar:           hc.Jar,
	}
}

func mediaFilename(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "media.png"
	}
	return name
}
