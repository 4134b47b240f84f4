package connector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// igTestServer fakes the Graph API for one account: account insights reject
// the "impressions" metric set the way newer accounts do, media listing spans
// two pages, and one media item's insights endpoint is broken.
type igTestServer struct {
	*httptest.Server

	mu                sync.Mutex
	insightProbes     []string
	mediaInsightCalls int
}

func newIGTestServer(t *testing.T) *igTestServer {
	t.Helper()
	s := &igTestServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ext-1/insights", func(w http.ResponseWriter, r *http.Request) {
		metric := r.URL.Query().Get("metric")
		s.mu.Lock()
		s.insightProbes = append(s.insightProbes, metric)
		s.mu.Unlock()

		if strings.Contains(metric, "impressions") {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"impressions metric is no longer supported","type":"OAuthException","code":100}}`)
			return
		}
		fmt.Fprint(w, `{"data":[
			{"name":"views","values":[{"value":100,"end_time":"2026-08-29T07:00:00Z"}]},
			{"name":"reach","values":[{"value":80,"end_time":"2026-08-29T07:00:00Z"}]},
			{"name":"follower_count","values":[{"value":5,"end_time":"2026-08-29T07:00:00Z"}]}
		]}`)
	})
	mux.HandleFunc("/ext-1/media", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "page2" {
			fmt.Fprint(w, `{"data":[
				{"id":"media-3","caption":"third","media_type":"IMAGE","permalink":"https://instagram.com/p/3","timestamp":"2026-08-25T10:00:00Z","like_count":3,"comments_count":1}
			],"paging":{}}`)
			return
		}
		fmt.Fprintf(w, `{"data":[
			{"id":"media-1","caption":"first","media_type":"VIDEO","permalink":"https://instagram.com/p/1","timestamp":"2026-08-27T10:00:00Z","like_count":10,"comments_count":2},
			{"id":"media-2","caption":"second","media_type":"IMAGE","permalink":"https://instagram.com/p/2","timestamp":"2026-08-26T10:00:00Z","like_count":7,"comments_count":0}
		],"paging":{"next":"%s/ext-1/media?after=page2"}}`, s.URL)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Per-media insights. media-3 is broken on the provider side.
		if !strings.HasSuffix(r.URL.Path, "/insights") {
			http.NotFound(w, r)
			return
		}
		s.mu.Lock()
		s.mediaInsightCalls++
		s.mu.Unlock()

		if strings.HasPrefix(r.URL.Path, "/media-3/") {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"message":"An unknown error occurred","code":1}}`)
			return
		}
		fmt.Fprint(w, `{"data":[
			{"name":"impressions","values":[{"value":500}]},
			{"name":"saved","values":[{"value":4}]}
		]}`)
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *igTestServer) probes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.insightProbes...)
}

func TestInstagramSyncNegotiatesMetricVariant(t *testing.T) {
	server := newIGTestServer(t)
	conn := NewInstagram(testOptions(t))
	conn.SetBaseURL(server.URL)

	result, err := conn.Sync(context.Background(), testParams())
	require.NoError(t, err)

	require.Len(t, result.DailyMetrics, 1)
	metric := result.DailyMetrics[0]
	assert.Equal(t, time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), metric.Date)
	assert.Nil(t, metric.Impressions)
	assert.Equal(t, int64(100), *metric.Views)
	assert.Equal(t, int64(80), *metric.Reach)
	assert.Equal(t, int64(5), *metric.Followers)

	// The rejected variant was probed once, then the accepted one used.
	probes := server.probes()
	require.Len(t, probes, 2)
	assert.Contains(t, probes[0], "impressions")
	assert.NotContains(t, probes[1], "impressions")

	// A second sync reuses the negotiated variant without re-probing.
	_, err = conn.Sync(context.Background(), testParams())
	require.NoError(t, err)
	probes = server.probes()
	require.Len(t, probes, 3)
	assert.NotContains(t, probes[2], "impressions")
}

func TestInstagramSyncKeepsPostWhenInsightsFail(t *testing.T) {
	server := newIGTestServer(t)
	conn := NewInstagram(testOptions(t))
	conn.SetBaseURL(server.URL)

	result, err := conn.Sync(context.Background(), testParams())
	require.NoError(t, err)

	require.Len(t, result.Posts, 3)
	byID := make(map[string]int, len(result.Posts))
	for i, post := range result.Posts {
		byID[post.ExternalPostID] = i
	}
	require.Contains(t, byID, "media-1")
	require.Contains(t, byID, "media-3")

	enriched := result.Posts[byID["media-1"]]
	assert.Equal(t, "video", enriched.MediaType)
	assert.Equal(t, int64(500), enriched.Metrics["impressions"])
	assert.Equal(t, int64(4), enriched.Metrics["saves"])
	assert.Equal(t, int64(10), enriched.Metrics["likes"])

	// The broken item survives with its listing-level counters only.
	degraded := result.Posts[byID["media-3"]]
	assert.Equal(t, int64(3), degraded.Metrics["likes"])
	assert.Equal(t, int64(1), degraded.Metrics["comments"])
	assert.NotContains(t, degraded.Metrics, "impressions")
}

func TestInstagramSyncRequiresAccessToken(t *testing.T) {
	conn := NewInstagram(testOptions(t))

	params := testParams()
	params.AccessToken = ""
	_, err := conn.Sync(context.Background(), params)
	assert.Error(t, err)
}
