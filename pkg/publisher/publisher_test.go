package publisher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sipeed/picopost/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rewriteTransport sends every request to target, keeping the path.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

type fakeTwitter struct {
	mu          sync.Mutex
	statuses    []url.Values
	uploads     int
	statusCode  int
	statusBody  string
	mediaStatus []int
	mediaHits   atomic.Int32
}

func (f *fakeTwitter) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/1.1/statuses/update.json", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.statuses = append(f.statuses, r.PostForm)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if f.statusCode != 0 {
			w.WriteHeader(f.statusCode)
			_, _ = io.WriteString(w, f.statusBody)
			return
		}
		_, _ = io.WriteString(w, `{"id": 42, "id_str": "42", "text": "ok"}`)
	})
	mux.HandleFunc("/1.1/media/upload.json", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("media"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.uploads++
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"media_id": 777, "media_id_string": "777"}`)
	})
	mux.HandleFunc("/cdn/grid.png", func(w http.ResponseWriter, r *http.Request) {
		n := int(f.mediaHits.Add(1))
		if n <= len(f.mediaStatus) {
			w.WriteHeader(f.mediaStatus[n-1])
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG fake"))
	})
	return mux
}

func newTestTwitter(t *testing.T, fake *fakeTwitter) (*Twitter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	tw := NewTwitter(TwitterConfig{
		ConsumerKey:       "ck",
		ConsumerSecret:    "cs",
		AccessToken:       "at",
		AccessTokenSecret: "as",
		HTTPClient:        &http.Client{Transport: rewriteTransport{target: target}},
	})
	tw.media.initialWait = time.Millisecond
	return tw, srv
}

func TestTwitterPublishText(t *testing.T) {
	fake := &fakeTwitter{}
	tw, _ := newTestTwitter(t, fake)

	err := tw.Publish(context.Background(), pipeline.Content{Text: "minds scale"}, "")
	require.NoError(t, err)
	require.Len(t, fake.statuses, 1)
	assert.Equal(t, "minds scale", fake.statuses[0].Get("status"))
	assert.Empty(t, fake.statuses[0].Get("media_ids"))
	assert.Zero(t, fake.uploads)
}

func TestTwitterPublishWithMedia(t *testing.T) {
	fake := &fakeTwitter{}
	tw, srv := newTestTwitter(t, fake)

	err := tw.Publish(context.Background(), pipeline.Content{Text: "look"}, srv.URL+"/cdn/grid.png")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.uploads)
	require.Len(t, fake.statuses, 1)
	assert.Equal(t, "777", fake.statuses[0].Get("media_ids"))
}

func TestTwitterPublishRetriesMediaServerErrors(t *testing.T) {
	fake := &fakeTwitter{mediaStatus: []int{http.StatusBadGateway, http.StatusTooManyRequests}}
	tw, srv := newTestTwitter(t, fake)

	err := tw.Publish(context.Background(), pipeline.Content{Text: "look"}, srv.URL+"/cdn/grid.png")
	require.NoError(t, err)
	assert.Equal(t, int32(3), fake.mediaHits.Load())
}

func TestTwitterPublishMediaNotFoundIsPermanent(t *testing.T) {
	fake := &fakeTwitter{mediaStatus: []int{http.StatusNotFound}}
	tw, srv := newTestTwitter(t, fake)

	err := tw.Publish(context.Background(), pipeline.Content{Text: "look"}, srv.URL+"/cdn/grid.png")
	require.Error(t, err)
	assert.Equal(t, pipeline.KindPublish, pipeline.KindOf(err))
	assert.Equal(t, int32(1), fake.mediaHits.Load())
	assert.Empty(t, fake.statuses)
}

func TestTwitterPublishMapsAPIErrors(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		want string
	}{
		{"auth", http.StatusUnauthorized, `{"errors": [{"code": 89, "message": "Invalid or expired token."}]}`, "auth rejected"},
		{"rate limit", http.StatusTooManyRequests, `{"errors": [{"code": 88, "message": "Rate limit exceeded"}]}`, "rate limited"},
		{"media", http.StatusBadRequest, `{"errors": [{"code": 324, "message": "Invalid media"}]}`, "media rejected"},
		{"bare status", http.StatusForbidden, `{}`, "unexpected status 403"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeTwitter{statusCode: tt.code, statusBody: tt.body}
			tw, _ := newTestTwitter(t, fake)

			err := tw.Publish(context.Background(), pipeline.Content{Text: "x"}, "")
			require.Error(t, err)
			assert.Equal(t, pipeline.KindPublish, pipeline.KindOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTwitterPublishRejectsEmptyPost(t *testing.T) {
	tw, _ := newTestTwitter(t, &fakeTwitter{})
	err := tw.Publish(context.Background(), pipeline.Content{}, "")
	assert.Equal(t, pipeline.KindPublish, pipeline.KindOf(err))
}

func TestTwitterRateLimiterHonoursContext(t *testing.T) {
	fake := &fakeTwitter{}
	tw, _ := newTestTwitter(t, fake)
	tw.limiter.SetLimit(0.001)

	require.NoError(t, tw.Publish(context.Background(), pipeline.Content{Text: "one"}, ""))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tw.Publish(ctx, pipeline.Content{Text: "two"}, "")
	require.Error(t, err)
	assert.Equal(t, pipeline.KindPublish, pipeline.KindOf(err))
	assert.Len(t, fake.statuses, 1)
}

func TestMediaFetcherRejectsBadReference(t *testing.T) {
	_, err := NewMediaFetcher(nil).Fetch(context.Background(), "ftp://example.com/a.png")
	assert.Error(t, err)
}

type fakeTarget struct {
	name  string
	err   error
	calls int
}

func (f *fakeTarget) Name() string { return f.name }

func (f *fakeTarget) Publish(context.Context, pipeline.Content, string) error {
	f.calls++
	return f.err
}

func TestMultiMirrorFailureDoesNotFailPublish(t *testing.T) {
	primary := &fakeTarget{name: "twitter"}
	mirror := &fakeTarget{name: "telegram", err: errors.New("chat not found")}

	err := NewMulti(primary, mirror).Publish(context.Background(), pipeline.Content{Text: "x"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, mirror.calls)
}

func TestMultiPrimaryFailureSkipsMirrors(t *testing.T) {
	primary := &fakeTarget{name: "twitter", err: errors.New("403")}
	mirror := &fakeTarget{name: "telegram"}

	err := NewMulti(primary, mirror).Publish(context.Background(), pipeline.Content{Text: "x"}, "")
	require.Error(t, err)
	assert.Equal(t, pipeline.KindPublish, pipeline.KindOf(err))
	assert.Zero(t, mirror.calls)
}

func TestParseChatID(t *testing.T) {
	assert.Equal(t, "-100123", parseChatID("-100123").String())
	assert.Equal(t, "@picopost", parseChatID("picopost").String())
	assert.True(t, strings.HasPrefix(parseChatID("@news").String(), "@"))
}

func TestConstructorsLeaveSharedClientsAlone(t *testing.T) {
	before := http.DefaultClient.Timeout
	shared := &http.Client{Transport: http.DefaultTransport}

	NewTwitter(TwitterConfig{ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessTokenSecret: "as"})
	NewTwitter(TwitterConfig{HTTPClient: shared})
	NewMediaFetcher(nil)
	NewMediaFetcher(shared)

	assert.Equal(t, before, http.DefaultClient.Timeout)
	assert.Zero(t, shared.Timeout)
}
