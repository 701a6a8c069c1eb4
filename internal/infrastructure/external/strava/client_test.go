package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:         baseURL,
		PerPage:         2,
		MaxAttempts:     3,
		BreakerFailures: 10,
		RateLimiterConfig: RateLimiterConfig{
			RequestsPerSecond: 1000,
			BurstSize:         100,
			RetryAfter:        time.Millisecond,
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil)
}

func activityJSON(id int64, sport string, start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":          id,
		"name":        fmt.Sprintf("activity %d", id),
		"type":        "Run",
		"sport_type":  sport,
		"distance":    5000.0,
		"moving_time": 1500,
		"start_date":  start.Format(time.RFC3339),
	}
}

func TestFetchActivities_Paginates(t *testing.T) {
	start := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	var pages []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/athlete/activities", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))
		pages = append(pages, r.URL.Query().Get("page"))

		var body []map[string]interface{}
		switch r.URL.Query().Get("page") {
		case "1":
			body = append(body, activityJSON(1, "Run", start), activityJSON(2, "GravelRide", start))
		case "2":
			body = append(body, activityJSON(3, "Swim", start))
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	ctx := WithAccessToken(context.Background(), "tok")
	got, err := testClient(srv.URL).FetchActivities(ctx, "u1", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, pages)
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "Ride", got[1].Type)
	assert.Equal(t, "Swim", got[2].Type)
	assert.Equal(t, 5000.0, got[2].Distance)
}

func TestFetchActivities_SendsAfter(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, strconv.FormatInt(since.Unix(), 10), r.URL.Query().Get("after"))
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).FetchActivities(WithAccessToken(context.Background(), "tok"), "u1", since)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchActivities_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
		case 2:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte("[]"))
		}
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchActivities(WithAccessToken(context.Background(), "tok"), "u1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchActivities_UnauthorizedIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Authorization Error","errors":[{"resource":"Athlete","field":"access_token","code":"invalid"}]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.FetchActivities(WithAccessToken(context.Background(), "bad"), "u1", time.Time{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Authorization Error", apiErr.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, c.breaker.IsClosed())
}

func TestFetchActivities_NoToken(t *testing.T) {
	_, err := testClient("http://127.0.0.1:0").FetchActivities(context.Background(), "u1", time.Time{})
	assert.ErrorIs(t, err, ErrNoAccessToken)
}

func TestRateLimiter_PauseHonoursContext(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 100, BurstSize: 1})
	rl.OnRateLimited(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(ctx), context.DeadlineExceeded)
}
