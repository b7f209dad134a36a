package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/axellelanca/affiliatelinks/internal/attribution"
	"github.com/axellelanca/affiliatelinks/internal/changefeed"
	"github.com/axellelanca/affiliatelinks/internal/clock"
	"github.com/axellelanca/affiliatelinks/internal/database/dbtest"
	"github.com/axellelanca/affiliatelinks/internal/metrics"
	"github.com/axellelanca/affiliatelinks/internal/models"
	"github.com/axellelanca/affiliatelinks/internal/repository"
	"github.com/axellelanca/affiliatelinks/internal/services"
	"github.com/axellelanca/affiliatelinks/internal/workers"
)

type testServer struct {
	router *gin.Engine
	links  *services.LinkService
	repo   *repository.GormLinkRepository
	broker *changefeed.MemoryBroker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.New(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	linkRepo := repository.NewLinkRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	broker := changefeed.NewMemoryBroker()
	engine := attribution.NewEngine(linkRepo, clk, log, m, attribution.Options{Timeout: 5 * time.Second, MaxRetries: 1, InitialBackoff: time.Millisecond})

	pool := workers.NewPool(100, activityRepo, engine, nil, log, m)
	pool.Start(1)
	t.Cleanup(pool.Stop)

	linkService := services.NewLinkService(linkRepo, repository.NewDailyStatRepository(db), broker, clk, log, 6)
	router := gin.New()
	router.Use(RequestLogger(log))
	SetupRoutes(router, Dependencies{
		Links:    linkService,
		Resolver: services.NewResolver(linkRepo, engine, pool, broker, clk, log, m, time.Second),
		Activity: services.NewActivityService(activityRepo, clk, log),
		Broker:   broker,
		Gatherer: reg,
		BaseURL:  "https://go.example.com",
		Log:      log,
	})
	return &testServer{router: router, links: linkService, repo: linkRepo, broker: broker}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createPromo(t *testing.T) {
	t.Helper()
	w := s.do(http.MethodPost, "/api/v1/links", gin.H{
		"original_url": "https://shop.example.com/spring",
		"alias":        "promo",
		"name":         "Spring",
		"ratio":        2,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCreateLink(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/links", gin.H{"original_url": "https://shop.example.com", "ratio": 3})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ShortID        string `json:"short_id"`
		ShortURL       string `json:"short_url"`
		ConversionRate string `json:"conversion_rate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Len(t, created.ShortID, 6)
	assert.Equal(t, "https://go.example.com/"+created.ShortID, created.ShortURL)
	assert.Equal(t, "0.00", created.ConversionRate)
}

func TestCreateLinkErrors(t *testing.T) {
	s := newTestServer(t)
	s.createPromo(t)

	cases := []struct {
		name string
		body gin.H
		want int
	}{
		{"alias taken", gin.H{"original_url": "https://x.example.com", "alias": "promo", "ratio": 2}, http.StatusConflict},
		{"alias invalid", gin.H{"original_url": "https://x.example.com", "alias": "no way", "ratio": 2}, http.StatusBadRequest},
		{"url invalid", gin.H{"original_url": "nope", "ratio": 2}, http.StatusBadRequest},
		{"policy invalid", gin.H{"original_url": "https://x.example.com", "mode": "smart"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/v1/links", tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestRedirect(t *testing.T) {
	s := newTestServer(t)
	s.createPromo(t)

	for _, path := range []string{"/promo", "/r/?l=promo", "/r?l=promo"} {
		w := s.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusFound, w.Code, path)
		assert.Equal(t, "https://shop.example.com/spring", w.Header().Get("Location"), path)
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	}

	link, err := s.repo.GetLinkByShortID(context.Background(), "promo")
	require.NoError(t, err)
	assert.Equal(t, int64(3), link.Clicks)
	assert.Equal(t, int64(1), link.Conversions)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/unknown", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/r/?l=", nil).Code)
}

func TestStatsEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.createPromo(t)
	for i := 0; i < 4; i++ {
		require.Equal(t, http.StatusFound, s.do(http.MethodGet, "/promo", nil).Code)
	}

	w := s.do(http.MethodGet, "/api/v1/links/promo/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 4, stats["clicks"])
	assert.EqualValues(t, 2, stats["conversions"])
	assert.Equal(t, "50.00", stats["conversion_rate"])

	w = s.do(http.MethodGet, "/api/v1/links/promo/daily?from=2026-05-01&to=2026-05-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var daily struct {
		Days []models.DailyStat `json:"days"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &daily))
	require.Len(t, daily.Days, 1)
	assert.Equal(t, int64(4), daily.Days[0].Clicks)
	assert.Equal(t, int64(2), daily.Days[0].Conversions)

	w = s.do(http.MethodGet, "/api/v1/stats/daily?from=2026-05-01&to=2026-05-02", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/stats/daily?from=yesterday", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/links/missing/stats", nil).Code)
}

func TestUpdateAndDeleteLink(t *testing.T) {
	s := newTestServer(t)
	s.createPromo(t)

	w := s.do(http.MethodPatch, "/api/v1/links/promo", gin.H{"name": "Renamed", "clicks": 999})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Link
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "Renamed", updated.Name)
	assert.Zero(t, updated.Clicks)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/links/promo", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/links/promo", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/promo", nil).Code)
}

func TestListLinks(t *testing.T) {
	s := newTestServer(t)
	s.createPromo(t)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/v1/links", gin.H{
		"original_url": "https://x.example.com", "affiliate_email": "ann@example.com", "ratio": 2,
	}).Code)

	w := s.do(http.MethodGet, "/api/v1/links?affiliate=ann@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Links []models.Link `json:"links"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Links, 1)
	assert.Equal(t, "ann@example.com", list.Links[0].AffiliateEmail)
}

func TestActivityEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/activity", gin.H{"type": "login", "subject": "admin@example.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/activity", gin.H{"type": "click"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/activity", gin.H{}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/activity?limit=abc", nil).Code)

	w = s.do(http.MethodGet, "/api/v1/activity?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var feed struct {
		Activity []models.Activity `json:"activity"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &feed))
	require.Len(t, feed.Activity, 1)
	assert.Equal(t, models.ActivityLogin, feed.Activity[0].Type)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.createPromo(t)
	s.do(http.MethodGet, "/promo", nil)
	s.do(http.MethodGet, "/missing", nil)

	w := s.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `affiliate_redirects_total{result="redirected"} 1`)
	assert.Contains(t, body, `affiliate_redirects_total{result="not_found"} 1`)
	assert.Contains(t, body, "affiliate_clicks_total 1")
}

func TestWatchLinkStreamsSnapshots(t *testing.T) {
	s := newTestServer(t)
	s.createPromo(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/links/promo/watch", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	nextData := func() changefeed.LinkSnapshot {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data:") {
				var snap changefeed.LinkSnapshot
				require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &snap))
				return snap
			}
		}
	}

	initial := nextData()
	assert.Equal(t, "promo", initial.ShortID)
	assert.Zero(t, initial.Clicks)

	redirect, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/promo", nil)
	require.NoError(t, err)
	noFollow := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	rr, err := noFollow.Do(redirect)
	require.NoError(t, err)
	rr.Body.Close()
	require.Equal(t, http.StatusFound, rr.StatusCode)

	snap := nextData()
	assert.Equal(t, int64(1), snap.Clicks)
}
