package serpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"

	"adintel/internal/config"
	"adintel/internal/domain/serp"
)

const testKey = "abcdef0123456789abcdef0123456789"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.SerpAPIConfig{
		BaseURL:        srv.URL,
		APIKey:         testKey,
		Timeout:        5 * time.Second,
		RequestsPerSec: 1000,
		Burst:          10,
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
	}, zaptest.NewLogger(t))
}

const searchPayload = `{
  "search_metadata": {"status": "Success"},
  "ads": [
    {"position": 1, "block_position": "top", "title": "Acme Plumbing", "link": "https://www.acme.com/lp", "displayed_link": "www.acme.com/plumbing", "description": "24/7 service"},
    {"title": "Rival Pipes", "link": "https://rival.io", "snippet": "Cheap"},
    {"position": 7, "block": "bottom", "headline": "Late Ad", "destination_link": "https://late.net"}
  ]
}`

func TestFetchAdSightings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "google", q.Get("engine"))
		assert.Equal(t, "plumber", q.Get("q"))
		assert.Equal(t, "New York, New York, United States", q.Get("location"))
		assert.Equal(t, "mobile", q.Get("device"))
		assert.Equal(t, "us", q.Get("gl"))
		assert.Equal(t, testKey, q.Get("api_key"))
		w.Write([]byte(searchPayload))
	})

	res, err := c.FetchAdSightings(context.Background(), serp.Query{
		Keyword: "plumber", Location: "10001", Device: serp.DeviceMobile,
	})
	require.NoError(t, err)
	require.Len(t, res.Observations, 3)
	assert.JSONEq(t, searchPayload, string(res.Raw))

	first := res.Observations[0]
	assert.Equal(t, serp.BlockTop, first.Block)
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, "acme.com", first.Advertiser())

	second := res.Observations[1]
	assert.Equal(t, 2, second.Rank)
	assert.Equal(t, "Cheap", second.Description)
	assert.Equal(t, "rival.io", second.Advertiser())

	third := res.Observations[2]
	assert.Equal(t, serp.BlockBottom, third.Block)
	assert.Equal(t, 7, third.Rank)
	assert.Equal(t, "Late Ad", third.Headline)
}

func TestExtractAdsFallsBackToPaid(t *testing.T) {
	obs := ExtractAds(gjson.Parse(`{"paid":[{"title":"A","link":"https://a.com"},{},{},{},{"title":"E"}]}`))
	require.Len(t, obs, 5)
	assert.Equal(t, serp.BlockTop, obs[3].Block)
	assert.Equal(t, serp.BlockBottom, obs[4].Block)
	assert.Equal(t, 5, obs[4].Rank)
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ads":[]}`))
	})

	res, err := c.FetchAdSightings(context.Background(), serp.Query{Keyword: "x", Device: serp.DeviceDesktop})
	require.NoError(t, err)
	assert.Empty(t, res.Observations)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSearchErrorRedactsKeyAndDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Invalid api_key=` + testKey + `"}`))
	})

	_, err := c.FetchAdSightings(context.Background(), serp.Query{Keyword: "x", Device: serp.DeviceDesktop})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testKey)
	assert.Contains(t, err.Error(), "REDACTED")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSearchBodyError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Google hasn't returned any results for this query."}`))
	})

	_, err := c.FetchAdSightings(context.Background(), serp.Query{Keyword: "x", Device: serp.DeviceDesktop})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hasn't returned any results")
}

func TestSearchWithoutKey(t *testing.T) {
	c := NewClient(config.SerpAPIConfig{BaseURL: "http://unused"}, nil)
	_, err := c.FetchAdSightings(context.Background(), serp.Query{Keyword: "x"})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestNormalizeLocation(t *testing.T) {
	assert.Equal(t, "United States", NormalizeLocation("", "us"))
	assert.Equal(t, "", NormalizeLocation("", "de"))
	assert.Equal(t, "Phoenix, Arizona, United States", NormalizeLocation("85001", "us"))
	assert.Equal(t, "United States", NormalizeLocation("12345", "us"))
	assert.Equal(t, "United States", NormalizeLocation("123456789", "us"))
	assert.Equal(t, "Austin, Texas", NormalizeLocation(" Austin, Texas ", "us"))
}

func TestRegionCode(t *testing.T) {
	assert.Equal(t, "2840", RegionCode("us"))
	assert.Equal(t, "2840", RegionCode(""))
	assert.Equal(t, "2826", RegionCode("2826"))
}

func TestStrategies(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		ids     []string
	}{
		{"top level list", `{"ads":[{"ad_id":"CR1","title":"A"},{"creative_id":"CR2"}]}`, []string{"CR1", "CR2"}},
		{"map of lists", `{"advertiser_ads":{"AR1":[{"id":"CR3"}],"AR2":[{"id":"CR4"}]}}`, []string{"CR3", "CR4"}},
		{"wrapped", `{"advertisers":[{"name":"Acme","creatives":[{"ad_id":"CR5"}]}]}`, []string{"CR5"}},
		{"numeric ids", `{"results":[{"id":42}]}`, []string{"42"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := gjson.Parse(tc.payload)
			var got []string
			for _, s := range Strategies {
				if creatives, ok := s.Extract(doc); ok {
					for _, c := range creatives {
						got = append(got, c.ID)
					}
					break
				}
			}
			assert.ElementsMatch(t, tc.ids, got)
		})
	}
}

func TestDeepScan(t *testing.T) {
	doc := gjson.Parse(`{"meta":{"page":1},"data":{"payload":{"items":[{"creative_id":"CR9","format":"video","start_date":"2026-01-01"}]}}}`)

	for _, s := range Strategies {
		_, ok := s.Extract(doc)
		assert.False(t, ok, s.Name)
	}

	creatives, ok := deepScan(doc)
	require.True(t, ok)
	require.Len(t, creatives, 1)
	assert.Equal(t, "CR9", creatives[0].ID)
	assert.Equal(t, "video", creatives[0].Format)
	assert.Equal(t, "2026-01-01", creatives[0].FirstSeen)
}

func TestFetchCreativeInventoryFollowsUpByAdvertiserID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "google_ads_transparency_center", q.Get("engine"))
		assert.Equal(t, "2840", q.Get("region"))
		if q.Get("advertiser_id") == "AR123" {
			w.Write([]byte(`{"ads":[{"ad_id":"CR1","title":"One","format":"text"},{"ad_id":"CR2"}]}`))
			return
		}
		assert.Equal(t, "acme.com", q.Get("text"))
		w.Write([]byte(`{"advertisers":[{"advertiser_id":"AR123","name":"Acme"}]}`))
	})

	fetched, err := c.FetchCreativeInventory(context.Background(), "acme.com", "US")
	require.NoError(t, err)
	require.Len(t, fetched.Creatives, 2)
	assert.Equal(t, "CR1", fetched.Creatives[0].ID)
	assert.Equal(t, "text", fetched.Creatives[0].Format)
	assert.Equal(t, "unknown", fetched.Creatives[1].Format)
}

func TestFetchCreativeInventoryUnknownShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"search_metadata":{"status":"Success"},"total_results":0}`))
	})

	fetched, err := c.FetchCreativeInventory(context.Background(), "acme.com", "US")
	require.NoError(t, err)
	assert.Empty(t, fetched.Creatives)
}
